package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CategoryRepository interface {
	Create(ctx context.Context, c *Category) error
	GetByID(ctx context.Context, id string) (*Category, error)
	List(ctx context.Context, q Query) ([]Category, error)
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id string) (bool, error)
}

type SupplierRepository interface {
	Create(ctx context.Context, s *Supplier) error
	GetByID(ctx context.Context, id string) (*Supplier, error)
	List(ctx context.Context, q Query) ([]Supplier, error)
	Update(ctx context.Context, s *Supplier) error
	Delete(ctx context.Context, id string) (bool, error)
	Ensure(ctx context.Context, name string) error
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503":
			return ErrInUse
		}
	}
	return err
}

type PGCategories struct{ db *pgxpool.Pool }

func NewPGCategories(db *pgxpool.Pool) *PGCategories { return &PGCategories{db: db} }

func (r *PGCategories) Create(ctx context.Context, c *Category) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return mapErr(r.db.QueryRow(ctx, `
		INSERT INTO categories (id, name, description, created_at)
		VALUES ($1,$2,$3,NOW())
		RETURNING created_at
	`, c.ID, c.Name, c.Description).Scan(&c.CreatedAt))
}

func (r *PGCategories) GetByID(ctx context.Context, id string) (*Category, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var c Category
	err := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at FROM categories WHERE id=$1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *PGCategories) List(ctx context.Context, q Query) ([]Category, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q = q.normalized()
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at
		FROM categories
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%')
		ORDER BY name LIMIT $2 OFFSET $3
	`, strings.TrimSpace(q.Search), q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGCategories) Update(ctx context.Context, c *Category) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `UPDATE categories SET name = $2, description = $3 WHERE id = $1`, c.ID, c.Name, c.Description)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGCategories) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() > 0, nil
}

type PGSuppliers struct{ db *pgxpool.Pool }

func NewPGSuppliers(db *pgxpool.Pool) *PGSuppliers { return &PGSuppliers{db: db} }

func (r *PGSuppliers) Create(ctx context.Context, s *Supplier) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return mapErr(r.db.QueryRow(ctx, `
		INSERT INTO suppliers (id, name, contact_details, created_at)
		VALUES ($1,$2,$3,NOW())
		RETURNING created_at
	`, s.ID, s.Name, s.ContactDetails).Scan(&s.CreatedAt))
}

func (r *PGSuppliers) GetByID(ctx context.Context, id string) (*Supplier, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s Supplier
	err := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(contact_details, ''), created_at FROM suppliers WHERE id=$1
	`, id).Scan(&s.ID, &s.Name, &s.ContactDetails, &s.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *PGSuppliers) List(ctx context.Context, q Query) ([]Supplier, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q = q.normalized()
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(contact_details, ''), created_at
		FROM suppliers
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%')
		ORDER BY name LIMIT $2 OFFSET $3
	`, strings.TrimSpace(q.Search), q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Supplier{}
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.ContactDetails, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGSuppliers) Update(ctx context.Context, s *Supplier) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET name = $2, contact_details = $3 WHERE id = $1`, s.ID, s.Name, s.ContactDetails)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGSuppliers) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *PGSuppliers) Ensure(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO suppliers (id, name, contact_details, created_at)
		VALUES (gen_random_uuid()::text, $1, '', NOW())
		ON CONFLICT (name) DO NOTHING
	`, name)
	return err
}
