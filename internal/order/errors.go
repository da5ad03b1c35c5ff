package order

import (
	"errors"
	"fmt"

	"github.com/MikeMC777/inventario/internal/inventory"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrEmptyOrder      = errors.New("order must contain at least one line")
	ErrInvalidQuantity = errors.New("line quantity must be a positive integer")
	ErrInvalidPrice    = errors.New("line price must be a non-negative decimal")
	ErrItemNotFound    = errors.New("item not found")
	// ErrTimeout is retryable; nothing was committed.
	ErrTimeout = errors.New("order placement timed out")
	// ErrDebitFailed means the store kept reporting conflicts for one item.
	ErrDebitFailed = errors.New("stock could not be debited")

	ErrInsufficientStock = inventory.ErrInsufficientStock
)

// LineError ties a validation failure to the offending line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line+1, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// ItemNotFoundError names an item that does not exist or is not visible to the caller.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string        { return fmt.Sprintf("item %s not found", e.ItemID) }
func (e *ItemNotFoundError) Is(target error) bool { return target == ErrItemNotFound }
