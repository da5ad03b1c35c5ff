package order

import (
	"context"

	"github.com/MikeMC777/inventario/internal/inventory"
)

// Tx is the unit of work of one order: ledger calls plus the order insert.
// Either everything it did becomes visible, or none of it does.
type Tx interface {
	inventory.Ledger
	Create(ctx context.Context, o *Order) error
}

// Store persists orders. InTx commits when fn returns nil; on any error
// (including context expiry) every debit made through the Tx is undone.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, ownerID string) ([]Order, error)
}

// ItemReader is the read side of the ledger used for pre-checks.
type ItemReader interface {
	Get(ctx context.Context, id string) (*inventory.Item, error)
}

// Notifier receives low-stock events. Notify must not block.
type Notifier interface {
	Notify(item inventory.Item, remaining int)
}
