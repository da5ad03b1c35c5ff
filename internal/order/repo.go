package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/inventario/internal/inventory"
)

// PGStore runs each order in a single Postgres transaction: the line debits
// and the order rows commit or roll back together.
type PGStore struct{ db *pgxpool.Pool }

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{db: db} }

type pgTx struct {
	tx pgx.Tx
}

func (s *PGStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (t *pgTx) Get(ctx context.Context, id string) (*inventory.Item, error) {
	return inventory.NewPGLedger(t.tx).Get(ctx, id)
}

// TryDebit runs inside a savepoint so a failed attempt leaves the enclosing
// transaction usable for a retry.
func (t *pgTx) TryDebit(ctx context.Context, id string, amount int) (int, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	left, err := inventory.NewPGLedger(sp).TryDebit(ctx, id, amount)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, err
	}
	return left, nil
}

func (t *pgTx) Credit(ctx context.Context, id string, amount int) (int, error) {
	return inventory.NewPGLedger(t.tx).Credit(ctx, id, amount)
}

func (t *pgTx) Create(ctx context.Context, o *Order) error {
	if len(o.Lines) == 0 {
		return ErrEmptyOrder
	}
	if err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (id, created_by, status, total, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, o.ID, o.CreatedBy, o.Status, o.Total.StringFixed(inventory.PriceScale), o.CreatedAt).Scan(&o.CreatedAt); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, l := range o.Lines {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, item_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
		`, l.ID, o.ID, l.ItemID, l.Quantity, l.Price.StringFixed(inventory.PriceScale))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		o     Order
		total string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, created_by, status, total::text, created_at
		FROM orders WHERE id=$1
	`, id).Scan(&o.ID, &o.CreatedBy, &o.Status, &total, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	lines, err := s.lines(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[o.ID]
	return &o, nil
}

func (s *PGStore) List(ctx context.Context, ownerID string) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT id, created_by, status, total::text, created_at
		FROM orders
		WHERE ($1 = '' OR created_by = $1)
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	var ids []string
	for rows.Next() {
		var (
			o     Order
			total string
		)
		if err := rows.Scan(&o.ID, &o.CreatedBy, &o.Status, &total, &o.CreatedAt); err != nil {
			return nil, err
		}
		if o.Total, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := s.lines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (s *PGStore) lines(ctx context.Context, orderIDs []string) (map[string][]Line, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, item_id, quantity, price::text
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Line, len(orderIDs))
	for rows.Next() {
		var (
			l     Line
			price string
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.Quantity, &price); err != nil {
			return nil, err
		}
		if l.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}
