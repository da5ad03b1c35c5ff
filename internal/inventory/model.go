package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits kept for prices.
const PriceScale = 2

type Item struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  string          `json:"category_id"`
	CreatedBy   string          `json:"created_by"`
	Suppliers   []string        `json:"suppliers"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Query filters item listings. Empty fields do not filter.
type Query struct {
	SKU        string
	Name       string
	CategoryID string
	OwnerID    string
	Limit      int
	Offset     int
}

// Normalized applies the default and maximum page size.
func (q Query) Normalized() Query {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	SKU         *string
	Name        *string
	Description *string
	Quantity    *int
	Price       *decimal.Decimal
	CategoryID  *string
}

// Summary aggregates the stock value of a set of items.
type Summary struct {
	TotalItems          int             `json:"total_items"`
	TotalInventoryValue decimal.Decimal `json:"total_inventory_value"`
}

// ListResponse represents the paginated response of items.
// swagger:model
type ListResponse struct {
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Items  []Item `json:"items"`
}

// CreateItemRequest payload of creation.
// swagger:model CreateItemRequest
type CreateItemRequest struct {
	SKU         string `json:"sku"         example:"KB-60-RGB"`
	Name        string `json:"name"        example:"Mechanical Keyboard"`
	Description string `json:"description" example:"RGB 60%"`
	Quantity    int    `json:"quantity"    example:"25"`
	Price       string `json:"price"       example:"199.90"`
	CategoryID  string `json:"category_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Supplier    string `json:"supplier"    example:"Keychron"`
}

// UpdateItemRequest payload of partial update.
// swagger:model UpdateItemRequest
type UpdateItemRequest struct {
	SKU         *string `json:"sku"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Quantity    *int    `json:"quantity"`
	Price       *string `json:"price"`
	CategoryID  *string `json:"category_id"`
}

// ParsePrice reads a non-negative decimal price rounded to PriceScale digits.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	return d.Round(PriceScale), nil
}

// Value is quantity times price.
func (it Item) Value() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}
