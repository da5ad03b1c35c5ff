// Package schema creates the Postgres tables the service needs.
package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Statements are idempotent and run in order.
var Statements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		role          TEXT NOT NULL DEFAULT 'user',
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE,
		contact_details TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_items (
		id          TEXT PRIMARY KEY,
		sku         TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		description TEXT,
		quantity    INTEGER NOT NULL CHECK (quantity >= 0),
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE RESTRICT,
		created_by  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_items_created_by_idx ON inventory_items (created_by)`,
	`CREATE TABLE IF NOT EXISTS item_suppliers (
		item_id     TEXT NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
		supplier_id TEXT NOT NULL REFERENCES suppliers(id) ON DELETE RESTRICT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (item_id, supplier_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         TEXT PRIMARY KEY,
		created_by TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status     TEXT NOT NULL DEFAULT 'pending',
		total      NUMERIC(14,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_created_by_idx ON orders (created_by, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id       TEXT PRIMARY KEY,
		line_no  BIGSERIAL,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		item_id  TEXT NOT NULL REFERENCES inventory_items(id) ON DELETE RESTRICT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price    NUMERIC(12,2) NOT NULL CHECK (price >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id, line_no)`,
}

// Migrate applies Statements one by one.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for i, stmt := range Statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
