// Package inventory holds stocked items and the stock ledger that owns their quantities.
package inventory

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, it *Item, supplier string) error
	GetByID(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, q Query) ([]Item, error)
	Update(ctx context.Context, id string, p Patch) (*Item, error)
	Delete(ctx context.Context, id string) (bool, error)
	Summary(ctx context.Context, ownerID string) (Summary, error)
	LowStock(ctx context.Context, ownerID string, threshold int) ([]Item, error)
}

// Validate checks the invariants every stored item must satisfy.
func (it *Item) Validate() error {
	if strings.TrimSpace(it.SKU) == "" || strings.TrimSpace(it.Name) == "" || it.CategoryID == "" {
		return ErrInvalidItem
	}
	if hasControl(it.SKU) || hasControl(it.Name) {
		return ErrInvalidItem
	}
	if it.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if it.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

func (p Patch) apply(it *Item) {
	if p.SKU != nil {
		it.SKU = *p.SKU
	}
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.Price != nil {
		it.Price = p.Price.Round(PriceScale)
	}
	if p.CategoryID != nil {
		it.CategoryID = *p.CategoryID
	}
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const itemColumns = `
	i.id, i.sku, i.name, COALESCE(i.description, ''), i.quantity, i.price::text,
	i.category_id, i.created_by, i.created_at, i.updated_at,
	COALESCE(ARRAY(
		SELECT s.name FROM item_suppliers isup
		JOIN suppliers s ON s.id = isup.supplier_id
		WHERE isup.item_id = i.id ORDER BY s.name
	), '{}')`

func scanItem(row pgx.Row) (*Item, error) {
	var (
		it    Item
		price string
	)
	if err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.Description, &it.Quantity, &price,
		&it.CategoryID, &it.CreatedBy, &it.CreatedAt, &it.UpdatedAt, &it.Suppliers); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	it.Price = d
	return &it, nil
}

func getItem(ctx context.Context, q Querier, id string) (*Item, error) {
	it, err := scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items i WHERE i.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

func (r *PGRepo) Create(ctx context.Context, it *Item, supplier string) error {
	if err := it.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `
		INSERT INTO inventory_items (id, sku, name, description, quantity, price, category_id, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
		RETURNING created_at, updated_at
	`, it.ID, it.SKU, it.Name, it.Description, it.Quantity, it.Price.StringFixed(PriceScale), it.CategoryID, it.CreatedBy,
	).Scan(&it.CreatedAt, &it.UpdatedAt); err != nil {
		return mapPGError(err)
	}

	it.Suppliers = []string{}
	if name := strings.TrimSpace(supplier); name != "" {
		var supplierID string
		// supplier is found by name or created on the fly
		if err := tx.QueryRow(ctx, `
			INSERT INTO suppliers (id, name, contact_details, created_at)
			VALUES (gen_random_uuid()::text, $1, '', NOW())
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, name).Scan(&supplierID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO item_suppliers (item_id, supplier_id, created_at) VALUES ($1,$2,NOW())
		`, it.ID, supplierID); err != nil {
			return err
		}
		it.Suppliers = []string{name}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return getItem(ctx, r.db, id)
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q = q.Normalized()
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM inventory_items i
		WHERE ($1 = '' OR i.sku ILIKE '%'||$1||'%')
		  AND ($2 = '' OR i.name ILIKE '%'||$2||'%')
		  AND ($3 = '' OR i.category_id::text = $3)
		  AND ($4 = '' OR i.created_by::text = $4)
		ORDER BY i.created_at DESC
		LIMIT $5 OFFSET $6
	`, strings.TrimSpace(q.SKU), strings.TrimSpace(q.Name), q.CategoryID, q.OwnerID, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *PGRepo) Update(ctx context.Context, id string, p Patch) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// FOR UPDATE keeps a concurrent debit from interleaving with the rewrite.
	cur, err := scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items i WHERE i.id = $1 FOR UPDATE OF i`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.apply(cur)
	if err := cur.Validate(); err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET sku = $2, name = $3, description = $4, quantity = $5, price = $6, category_id = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, id, cur.SKU, cur.Name, cur.Description, cur.Quantity, cur.Price.StringFixed(PriceScale), cur.CategoryID,
	).Scan(&cur.UpdatedAt); err != nil {
		return nil, mapPGError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return cur, nil
}

func (r *PGRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM inventory_items WHERE id=$1`, id)
	if err != nil {
		return false, mapPGError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *PGRepo) Summary(ctx context.Context, ownerID string) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		s     Summary
		value string
	)
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity * price), 0)::text
		FROM inventory_items
		WHERE ($1 = '' OR created_by::text = $1)
	`, ownerID).Scan(&s.TotalItems, &value)
	if err != nil {
		return Summary{}, err
	}
	if s.TotalInventoryValue, err = decimal.NewFromString(value); err != nil {
		return Summary{}, err
	}
	return s, nil
}

func (r *PGRepo) LowStock(ctx context.Context, ownerID string, threshold int) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM inventory_items i
		WHERE ($1 = '' OR i.created_by::text = $1) AND i.quantity < $2
		ORDER BY i.quantity ASC, i.name
	`, ownerID, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}
