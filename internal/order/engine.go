// Package order places orders against the stock ledger and records them.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/auth"
	"github.com/MikeMC777/inventario/internal/inventory"
)

type Options struct {
	// LowStockThreshold triggers a notification when a debit leaves an item
	// at or below it.
	LowStockThreshold int
	// TxTimeout bounds the whole debit-and-persist unit of work.
	TxTimeout time.Duration
	// DebitMaxRetries is how many times a conflicting debit is retried.
	DebitMaxRetries int
}

func (o Options) withDefaults() Options {
	if o.TxTimeout <= 0 {
		o.TxTimeout = 5 * time.Second
	}
	if o.DebitMaxRetries < 0 {
		o.DebitMaxRetries = 0
	}
	return o
}

// Engine validates, debits and persists orders atomically and emits
// low-stock events after commit.
type Engine struct {
	store     Store
	validator *Validator
	notifier  Notifier
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

func NewEngine(store Store, items ItemReader, notifier Notifier, logger *zap.Logger, opts Options) *Engine {
	return &Engine{
		store:     store,
		validator: NewValidator(items),
		notifier:  notifier,
		logger:    logger,
		opts:      opts.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type lowStock struct {
	item      inventory.Item
	remaining int
}

// PlaceOrder is all-or-nothing: if any line fails, no stock stays debited and
// no order exists. It is not idempotent; a resubmission is a new order.
func (e *Engine) PlaceOrder(ctx context.Context, p auth.Principal, lines []CreateOrderLine) (*Order, error) {
	parsed, err := e.validator.Validate(ctx, p, lines)
	if err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, e.opts.TxTimeout)
	defer cancel()

	var (
		placed *Order
		alerts []lowStock
	)
	err = e.store.InTx(txCtx, func(ctx context.Context, tx Tx) error {
		alerts = alerts[:0]
		o := &Order{
			ID:        uuid.NewString(),
			CreatedBy: p.ID,
			Status:    StatusPending,
			CreatedAt: e.now(),
			Lines:     make([]Line, 0, len(parsed)),
		}
		for i, s := range parsed {
			it, err := tx.Get(ctx, s.itemID)
			if errors.Is(err, inventory.ErrNotFound) || (err == nil && !visible(p, it)) {
				return &LineError{Line: i, Err: &ItemNotFoundError{ItemID: s.itemID}}
			}
			if err != nil {
				return err
			}

			left, err := e.debit(ctx, tx, s)
			switch {
			case errors.Is(err, inventory.ErrNotFound):
				return &LineError{Line: i, Err: &ItemNotFoundError{ItemID: s.itemID}}
			case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrDebitFailed):
				return &LineError{Line: i, Err: err}
			case err != nil:
				return err
			}

			price := it.Price
			if s.price != nil {
				price = *s.price
			}
			o.Lines = append(o.Lines, Line{
				ID:       uuid.NewString(),
				OrderID:  o.ID,
				ItemID:   s.itemID,
				Quantity: s.quantity,
				Price:    price,
			})
			if left <= e.opts.LowStockThreshold {
				alerts = addAlert(alerts, *it, left)
			}
		}
		o.computeTotal()
		if err := tx.Create(ctx, o); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		err = e.classify(txCtx, err)
		e.logger.Info("order rejected",
			zap.String("principal", p.ID),
			zap.Int("lines", len(parsed)),
			zap.Error(err),
		)
		return nil, err
	}

	// only committed debits produce alerts
	for _, a := range alerts {
		e.notifier.Notify(a.item, a.remaining)
	}
	e.logger.Info("order placed",
		zap.String("order_id", placed.ID),
		zap.String("principal", p.ID),
		zap.Int("lines", len(placed.Lines)),
		zap.String("total", placed.Total.StringFixed(inventory.PriceScale)),
	)
	return placed, nil
}

// addAlert keeps one alert per item, carrying the latest remaining quantity.
func addAlert(alerts []lowStock, it inventory.Item, left int) []lowStock {
	it.Quantity = left
	for i := range alerts {
		if alerts[i].item.ID == it.ID {
			alerts[i] = lowStock{item: it, remaining: left}
			return alerts
		}
	}
	return append(alerts, lowStock{item: it, remaining: left})
}

// debit retries a single item's debit while the store reports conflicts.
func (e *Engine) debit(ctx context.Context, tx Tx, s parsedLine) (int, error) {
	var err error
	for attempt := 0; attempt <= e.opts.DebitMaxRetries; attempt++ {
		var left int
		left, err = tx.TryDebit(ctx, s.itemID, s.quantity)
		if err == nil {
			return left, nil
		}
		if !inventory.IsConflict(err) {
			return 0, err
		}
		e.logger.Warn("debit conflict, retrying",
			zap.String("item_id", s.itemID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return 0, fmt.Errorf("%w: item %s: %v", ErrDebitFailed, s.itemID, err)
}

// classify turns deadline expiry into the retryable ErrTimeout.
func (e *Engine) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// ListOrders returns every order to admins and only their own to everyone else.
func (e *Engine) ListOrders(ctx context.Context, p auth.Principal) ([]Order, error) {
	return e.store.List(ctx, p.OwnerFilter())
}

// GetOrder returns ErrNotFound for unknown ids and auth.ErrForbidden for
// orders the principal does not own.
func (e *Engine) GetOrder(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, o.CreatedBy); err != nil {
		return nil, err
	}
	return o, nil
}
