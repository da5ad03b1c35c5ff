package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// table is a name-unique in-memory collection shared by both memory repos.
type table[T any] struct {
	mu   sync.RWMutex
	rows map[string]T
	id   func(T) string
	name func(T) string
}

func newTable[T any](id, name func(T) string) *table[T] {
	return &table[T]{rows: make(map[string]T), id: id, name: name}
}

func (t *table[T]) nameTaken(name, except string) bool {
	for id, row := range t.rows {
		if id != except && strings.EqualFold(t.name(row), name) {
			return true
		}
	}
	return false
}

func (t *table[T]) create(row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nameTaken(t.name(row), "") {
		return ErrAlreadyExists
	}
	t.rows[t.id(row)] = row
	return nil
}

func (t *table[T]) get(id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return row, nil
}

func (t *table[T]) list(q Query) []T {
	q = q.normalized()
	t.mu.RLock()
	out := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		if q.Search == "" || strings.Contains(strings.ToLower(t.name(row)), strings.ToLower(strings.TrimSpace(q.Search))) {
			out = append(out, row)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return t.name(out[i]) < t.name(out[j]) })
	if q.Offset >= len(out) {
		return []T{}
	}
	end := q.Offset + q.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[q.Offset:end]
}

// replace keeps the stored creation data the caller does not send back.
func (t *table[T]) replace(row T, keep func(old, next T) T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.rows[t.id(row)]
	if !ok {
		return ErrNotFound
	}
	if t.nameTaken(t.name(row), t.id(row)) {
		return ErrAlreadyExists
	}
	t.rows[t.id(row)] = keep(old, row)
	return nil
}

func (t *table[T]) delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

type MemoryCategories struct{ t *table[Category] }

func NewMemoryCategories() *MemoryCategories {
	return &MemoryCategories{t: newTable(
		func(c Category) string { return c.ID },
		func(c Category) string { return c.Name },
	)}
}

func (r *MemoryCategories) Create(_ context.Context, c *Category) error {
	c.CreatedAt = time.Now().UTC()
	return r.t.create(*c)
}

func (r *MemoryCategories) GetByID(_ context.Context, id string) (*Category, error) {
	c, err := r.t.get(id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MemoryCategories) List(_ context.Context, q Query) ([]Category, error) {
	return r.t.list(q), nil
}

func (r *MemoryCategories) Update(_ context.Context, c *Category) error {
	return r.t.replace(*c, func(old, next Category) Category {
		next.CreatedAt = old.CreatedAt
		return next
	})
}

func (r *MemoryCategories) Delete(_ context.Context, id string) (bool, error) {
	return r.t.delete(id), nil
}

type MemorySuppliers struct{ t *table[Supplier] }

func NewMemorySuppliers() *MemorySuppliers {
	return &MemorySuppliers{t: newTable(
		func(s Supplier) string { return s.ID },
		func(s Supplier) string { return s.Name },
	)}
}

func (r *MemorySuppliers) Create(_ context.Context, s *Supplier) error {
	s.CreatedAt = time.Now().UTC()
	return r.t.create(*s)
}

func (r *MemorySuppliers) GetByID(_ context.Context, id string) (*Supplier, error) {
	s, err := r.t.get(id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MemorySuppliers) List(_ context.Context, q Query) ([]Supplier, error) {
	return r.t.list(q), nil
}

func (r *MemorySuppliers) Update(_ context.Context, s *Supplier) error {
	return r.t.replace(*s, func(old, next Supplier) Supplier {
		next.CreatedAt = old.CreatedAt
		return next
	})
}

func (r *MemorySuppliers) Delete(_ context.Context, id string) (bool, error) {
	return r.t.delete(id), nil
}

func (r *MemorySuppliers) Ensure(ctx context.Context, name string) error {
	err := r.Create(ctx, &Supplier{ID: uuid.NewString(), Name: name})
	if err == ErrAlreadyExists {
		return nil
	}
	return err
}
