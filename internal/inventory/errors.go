package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("item not found")
	ErrDuplicateSKU      = errors.New("sku already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be a non-negative integer")
	ErrInvalidPrice      = errors.New("price must be a non-negative decimal")
	ErrInvalidItem       = errors.New("sku, name and category are required")
	ErrInUse             = errors.New("item is referenced by existing orders")
	ErrUnknownCategory   = errors.New("category does not exist")
	// ErrConflict marks a transient store failure; the operation may be retried.
	ErrConflict = errors.New("concurrent update conflict")
)

// InsufficientStockError names the item that could not cover a debit.
type InsufficientStockError struct {
	ItemID    string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %q (%s): available %d, requested %d",
		e.Name, e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
