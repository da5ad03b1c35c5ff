package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SupplierEnsurer finds or creates a supplier by name.
type SupplierEnsurer interface {
	Ensure(ctx context.Context, name string) error
}

type slot struct {
	mu   sync.Mutex
	item Item
}

// MemoryStore is an in-process Repository and Ledger. The map lock only
// guards membership; each item has its own lock, so debits on different
// items never wait on each other.
type MemoryStore struct {
	mu        sync.RWMutex
	slots     map[string]*slot
	skus      map[string]string
	suppliers SupplierEnsurer
	now       func() time.Time
}

func NewMemoryStore(suppliers SupplierEnsurer) *MemoryStore {
	return &MemoryStore{
		slots:     make(map[string]*slot),
		skus:      make(map[string]string),
		suppliers: suppliers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) lookup(id string) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	return sl, ok
}

func (s *MemoryStore) snapshot(sl *slot) Item {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	it := sl.item
	it.Suppliers = append([]string{}, sl.item.Suppliers...)
	return it
}

func (s *MemoryStore) Create(ctx context.Context, it *Item, supplier string) error {
	if err := it.Validate(); err != nil {
		return err
	}
	it.Price = it.Price.Round(PriceScale)
	it.Suppliers = []string{}
	if name := strings.TrimSpace(supplier); name != "" {
		if s.suppliers != nil {
			if err := s.suppliers.Ensure(ctx, name); err != nil {
				return err
			}
		}
		it.Suppliers = []string{name}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.skus[it.SKU]; ok {
		return ErrDuplicateSKU
	}
	it.CreatedAt = s.now()
	it.UpdatedAt = it.CreatedAt
	cp := *it
	cp.Suppliers = append([]string{}, it.Suppliers...)
	s.slots[it.ID] = &slot{item: cp}
	s.skus[it.SKU] = it.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Item, error) {
	sl, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	it := s.snapshot(sl)
	return &it, nil
}

func (s *MemoryStore) all(ownerID string) []Item {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	out := make([]Item, 0, len(slots))
	for _, sl := range slots {
		it := s.snapshot(sl)
		if ownerID != "" && it.CreatedBy != ownerID {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s *MemoryStore) List(_ context.Context, q Query) ([]Item, error) {
	q = q.Normalized()
	matched := []Item{}
	for _, it := range s.all(q.OwnerID) {
		if q.SKU != "" && !containsFold(it.SKU, q.SKU) {
			continue
		}
		if q.Name != "" && !containsFold(it.Name, q.Name) {
			continue
		}
		if q.CategoryID != "" && it.CategoryID != q.CategoryID {
			continue
		}
		matched = append(matched, it)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if q.Offset >= len(matched) {
		return []Item{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], nil
}

func (s *MemoryStore) Update(_ context.Context, id string, p Patch) (*Item, error) {
	// the map lock is taken for the whole rewrite because the sku index may change
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return nil, ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	next := sl.item
	p.apply(&next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if next.SKU != sl.item.SKU {
		if other, taken := s.skus[next.SKU]; taken && other != id {
			return nil, ErrDuplicateSKU
		}
		delete(s.skus, sl.item.SKU)
		s.skus[next.SKU] = id
	}
	next.UpdatedAt = s.now()
	sl.item = next
	out := next
	out.Suppliers = append([]string{}, next.Suppliers...)
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return false, nil
	}
	delete(s.skus, sl.item.SKU)
	delete(s.slots, id)
	return true, nil
}

func (s *MemoryStore) Summary(_ context.Context, ownerID string) (Summary, error) {
	sum := Summary{TotalInventoryValue: decimal.Zero}
	for _, it := range s.all(ownerID) {
		sum.TotalItems++
		sum.TotalInventoryValue = sum.TotalInventoryValue.Add(it.Value())
	}
	return sum, nil
}

func (s *MemoryStore) LowStock(_ context.Context, ownerID string, threshold int) ([]Item, error) {
	out := []Item{}
	for _, it := range s.all(ownerID) {
		if it.Quantity < threshold {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity == out[j].Quantity {
			return out[i].Name < out[j].Name
		}
		return out[i].Quantity < out[j].Quantity
	})
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Item, error) {
	return s.GetByID(ctx, id)
}

func (s *MemoryStore) TryDebit(_ context.Context, id string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidQuantity
	}
	sl, ok := s.lookup(id)
	if !ok {
		return 0, ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.item.Quantity < amount {
		return 0, &InsufficientStockError{
			ItemID: id, Name: sl.item.Name, Available: sl.item.Quantity, Requested: amount,
		}
	}
	sl.item.Quantity -= amount
	sl.item.UpdatedAt = s.now()
	return sl.item.Quantity, nil
}

func (s *MemoryStore) Credit(_ context.Context, id string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidQuantity
	}
	sl, ok := s.lookup(id)
	if !ok {
		return 0, ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.item.Quantity += amount
	sl.item.UpdatedAt = s.now()
	return sl.item.Quantity, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}
