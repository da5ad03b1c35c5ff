package order

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/inventario/internal/auth"
	"github.com/MikeMC777/inventario/internal/inventory"
)

// parsedLine is a structurally valid request line. price is nil when the caller
// left it to the item's current price.
type parsedLine struct {
	itemID   string
	quantity int
	price    *decimal.Decimal
}

// Validator is the read-only pre-check run before any stock is touched. A
// pass does not guarantee the result still holds when the order executes.
type Validator struct {
	items ItemReader
}

func NewValidator(items ItemReader) *Validator { return &Validator{items: items} }

// parseLines checks shape only: non-empty, positive quantities, sane prices.
func parseLines(lines []CreateOrderLine) ([]parsedLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	out := make([]parsedLine, 0, len(lines))
	for i, l := range lines {
		id := strings.TrimSpace(l.ItemID)
		if id == "" {
			return nil, &LineError{Line: i, Err: &ItemNotFoundError{ItemID: l.ItemID}}
		}
		if l.Quantity <= 0 {
			return nil, &LineError{Line: i, Err: ErrInvalidQuantity}
		}
		pl := parsedLine{itemID: id, quantity: l.Quantity}
		if s := strings.TrimSpace(l.Price); s != "" {
			p, err := inventory.ParsePrice(s)
			if err != nil {
				return nil, &LineError{Line: i, Err: ErrInvalidPrice}
			}
			pl.price = &p
		}
		out = append(out, pl)
	}
	return out, nil
}

// visible reports whether p may order from it.
func visible(p auth.Principal, it *inventory.Item) bool {
	return auth.Authorize(p, it.CreatedBy) == nil
}

// Validate rejects empty orders, bad quantities or prices, and items the
// principal cannot see.
func (v *Validator) Validate(ctx context.Context, p auth.Principal, lines []CreateOrderLine) ([]parsedLine, error) {
	parsed, err := parseLines(lines)
	if err != nil {
		return nil, err
	}
	for i, s := range parsed {
		it, err := v.items.Get(ctx, s.itemID)
		if errors.Is(err, inventory.ErrNotFound) || (err == nil && !visible(p, it)) {
			return nil, &LineError{Line: i, Err: &ItemNotFoundError{ItemID: s.itemID}}
		}
		if err != nil {
			return nil, err
		}
	}
	return parsed, nil
}
