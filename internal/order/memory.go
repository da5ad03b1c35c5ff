package order

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/inventory"
)

// MemoryStore keeps orders in process memory over any Ledger. There is no
// enclosing transaction, so an aborted unit of work is undone by crediting
// back every debit it made, newest first.
type MemoryStore struct {
	ledger inventory.Ledger
	logger *zap.Logger

	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryStore(ledger inventory.Ledger, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{ledger: ledger, logger: logger, orders: make(map[string]Order)}
}

type debit struct {
	itemID string
	amount int
}

type memTx struct {
	ledger  inventory.Ledger
	debits  []debit
	pending *Order
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{ledger: s.ledger}
	err := fn(ctx, tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.compensate(tx.debits)
		return err
	}
	if tx.pending != nil {
		s.mu.Lock()
		s.orders[tx.pending.ID] = cloneOrder(*tx.pending)
		s.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) compensate(debits []debit) {
	// detached from the request context: a cancelled caller must not leave stock consumed
	ctx := context.Background()
	for i := len(debits) - 1; i >= 0; i-- {
		d := debits[i]
		var err error
		if d.amount > 0 {
			_, err = s.ledger.Credit(ctx, d.itemID, d.amount)
		} else {
			_, err = s.ledger.TryDebit(ctx, d.itemID, -d.amount)
		}
		if err != nil {
			s.logger.Error("credit-back failed",
				zap.String("item_id", d.itemID),
				zap.Int("amount", d.amount),
				zap.Error(err),
			)
		}
	}
}

func (t *memTx) Get(ctx context.Context, id string) (*inventory.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.ledger.Get(ctx, id)
}

func (t *memTx) TryDebit(ctx context.Context, id string, amount int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	left, err := t.ledger.TryDebit(ctx, id, amount)
	if err != nil {
		return 0, err
	}
	t.debits = append(t.debits, debit{itemID: id, amount: amount})
	return left, nil
}

func (t *memTx) Credit(ctx context.Context, id string, amount int) (int, error) {
	now, err := t.ledger.Credit(ctx, id, amount)
	if err != nil {
		return 0, err
	}
	t.debits = append(t.debits, debit{itemID: id, amount: -amount})
	return now, nil
}

func (t *memTx) Create(_ context.Context, o *Order) error {
	if len(o.Lines) == 0 {
		return ErrEmptyOrder
	}
	cp := cloneOrder(*o)
	t.pending = &cp
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]Order, error) {
	s.mu.RLock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if ownerID == "" || o.CreatedBy == ownerID {
			out = append(out, cloneOrder(o))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneOrder(o Order) Order {
	o.Lines = append([]Line(nil), o.Lines...)
	return o
}
