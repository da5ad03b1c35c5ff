package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ledger owns item quantities. Every stock mutation goes through it.
//
// TryDebit is a single atomic read-check-write: concurrent debits on one item
// can never jointly take it below zero. It returns the quantity left.
type Ledger interface {
	Get(ctx context.Context, id string) (*Item, error)
	TryDebit(ctx context.Context, id string, amount int) (int, error)
	Credit(ctx context.Context, id string, amount int) (int, error)
}

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGLedger runs ledger operations on whatever Querier it is given. Bound to a
// pgx.Tx the debits join that transaction.
type PGLedger struct{ q Querier }

func NewPGLedger(q Querier) *PGLedger { return &PGLedger{q: q} }

func (l *PGLedger) Get(ctx context.Context, id string) (*Item, error) {
	return getItem(ctx, l.q, id)
}

func (l *PGLedger) TryDebit(ctx context.Context, id string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidQuantity
	}
	var left int
	err := l.q.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity
	`, id, amount).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, mapPGError(err)
	}

	// No row updated: either the item is gone or it is short.
	var (
		name      string
		available int
	)
	err = l.q.QueryRow(ctx, `SELECT name, quantity FROM inventory_items WHERE id = $1`, id).Scan(&name, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, mapPGError(err)
	}
	return 0, &InsufficientStockError{ItemID: id, Name: name, Available: available, Requested: amount}
}

func (l *PGLedger) Credit(ctx context.Context, id string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidQuantity
	}
	var now int
	err := l.q.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING quantity
	`, id, amount).Scan(&now)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, mapPGError(err)
	}
	return now, nil
}

// mapPGError folds retryable SQLSTATEs into ErrConflict.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return errors.Join(ErrConflict, err)
		case "23505":
			return ErrDuplicateSKU
		case "23503": // foreign_key_violation
			if pgErr.TableName == "order_items" {
				return ErrInUse
			}
			return ErrUnknownCategory
		}
	}
	return err
}

// IsConflict reports whether err is a transient, retryable store failure.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
