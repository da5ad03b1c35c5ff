package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const StatusPending = "pending"

type Order struct {
	ID        string          `json:"order_id"`
	CreatedBy string          `json:"created_by"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	Lines     []Line          `json:"lines"`
}

// Line snapshots the quantity and unit price at the time the order was placed.
type Line struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"-"`
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (o *Order) computeTotal() {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	o.Total = total
}
