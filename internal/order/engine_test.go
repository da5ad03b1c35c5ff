package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/auth"
	"github.com/MikeMC777/inventario/internal/inventory"
	"github.com/MikeMC777/inventario/internal/user"
)

var (
	alice = auth.Principal{ID: "alice", Username: "alice", Role: user.RoleStandard}
	bob   = auth.Principal{ID: "bob", Username: "bob", Role: user.RoleStandard}
	root  = auth.Principal{ID: "root", Username: "root", Role: user.RoleAdmin}
)

type alert struct {
	itemID    string
	remaining int
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []alert
}

func (f *fakeNotifier) Notify(it inventory.Item, remaining int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert{itemID: it.ID, remaining: remaining})
}

func (f *fakeNotifier) got() []alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alert(nil), f.alerts...)
}

type fixture struct {
	items  *inventory.MemoryStore
	orders *MemoryStore
	notif  *fakeNotifier
	engine *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	items := inventory.NewMemoryStore(nil)
	orders := NewMemoryStore(items, zap.NewNop())
	notif := &fakeNotifier{}
	if opts.LowStockThreshold == 0 {
		opts.LowStockThreshold = 10
	}
	return &fixture{
		items:  items,
		orders: orders,
		notif:  notif,
		engine: NewEngine(orders, items, notif, zap.NewNop(), opts),
	}
}

func (f *fixture) seed(t *testing.T, id string, qty int, owner, price string) {
	t.Helper()
	require.NoError(t, f.items.Create(context.Background(), &inventory.Item{
		ID: id, SKU: "SKU-" + id, Name: "Item " + id, Quantity: qty,
		Price: decimal.RequireFromString(price), CategoryID: "cat", CreatedBy: owner,
	}, ""))
}

func (f *fixture) qty(t *testing.T, id string) int {
	t.Helper()
	it, err := f.items.Get(context.Background(), id)
	require.NoError(t, err)
	return it.Quantity
}

func TestPlaceOrder_DebitsAndNotifiesBelowThreshold(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "A", 12, "alice", "10.00")

	o, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 3}})
	require.NoError(t, err)

	assert.Equal(t, 9, f.qty(t, "A"))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "alice", o.CreatedBy)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "10.00", o.Lines[0].Price.StringFixed(2))
	assert.Equal(t, "30.00", o.Total.StringFixed(2))
	assert.Equal(t, []alert{{itemID: "A", remaining: 9}}, f.notif.got())

	stored, err := f.engine.GetOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)
}

func TestPlaceOrder_NoNotificationAboveThreshold(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "A", 50, "alice", "1.00")

	_, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 5, Price: "0.75"}})
	require.NoError(t, err)
	assert.Empty(t, f.notif.got())
}

func TestPlaceOrder_OneAlertPerItem(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "A", 12, "alice", "1.00")
	f.seed(t, "B", 8, "alice", "1.00")

	_, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{
		{ItemID: "A", Quantity: 3},
		{ItemID: "B", Quantity: 1},
		{ItemID: "A", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []alert{{itemID: "A", remaining: 7}, {itemID: "B", remaining: 7}}, f.notif.got())
}

func TestPlaceOrder_CallerPriceIsSnapshotted(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "A", 50, "alice", "1.00")

	o, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 4, Price: "2.50"}})
	require.NoError(t, err)
	assert.Equal(t, "2.50", o.Lines[0].Price.StringFixed(2))
	assert.Equal(t, "10.00", o.Total.StringFixed(2))
}

func TestPlaceOrder_InsufficientStockLeavesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "B", 5, "alice", "3.00")

	_, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "B", Quantity: 7}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var ise *inventory.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 5, ise.Available)
	assert.Equal(t, 7, ise.Requested)

	assert.Equal(t, 5, f.qty(t, "B"))
	orders, err := f.engine.ListOrders(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.notif.got())
}

func TestPlaceOrder_LaterLineFailureRollsBackEarlierDebits(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "A", 20, "alice", "1.00")
	f.seed(t, "B", 1, "alice", "1.00")

	_, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{
		{ItemID: "A", Quantity: 15},
		{ItemID: "B", Quantity: 2},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var le *LineError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 1, le.Line)

	assert.Equal(t, 20, f.qty(t, "A"))
	assert.Equal(t, 1, f.qty(t, "B"))
	assert.Empty(t, f.notif.got(), "an aborted order must not notify")
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "A", 5, "alice", "1.00")
	f.seed(t, "X", 5, "bob", "1.00")

	tests := []struct {
		name  string
		p     auth.Principal
		lines []CreateOrderLine
		want  error
	}{
		{"empty", alice, nil, ErrEmptyOrder},
		{"zero quantity", alice, []CreateOrderLine{{ItemID: "A", Quantity: 0}}, ErrInvalidQuantity},
		{"negative quantity", alice, []CreateOrderLine{{ItemID: "A", Quantity: -2}}, ErrInvalidQuantity},
		{"bad price", alice, []CreateOrderLine{{ItemID: "A", Quantity: 1, Price: "abc"}}, ErrInvalidPrice},
		{"negative price", alice, []CreateOrderLine{{ItemID: "A", Quantity: 1, Price: "-1"}}, ErrInvalidPrice},
		{"unknown item", alice, []CreateOrderLine{{ItemID: "nope", Quantity: 1}}, ErrItemNotFound},
		{"someone else's item", alice, []CreateOrderLine{{ItemID: "X", Quantity: 1}}, ErrItemNotFound},
		{"structural errors win over lookups", alice, []CreateOrderLine{{ItemID: "nope", Quantity: 1}, {ItemID: "A", Quantity: 0}}, ErrInvalidQuantity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.PlaceOrder(context.Background(), tc.p, tc.lines)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 5, f.qty(t, "A"))
	assert.Equal(t, 5, f.qty(t, "X"))
}

func TestPlaceOrder_AdminSeesEveryItem(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "X", 5, "bob", "1.00")

	o, err := f.engine.PlaceOrder(context.Background(), root, []CreateOrderLine{{ItemID: "X", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "root", o.CreatedBy)
	assert.Equal(t, 4, f.qty(t, "X"))
}

func TestPlaceOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t, Options{LowStockThreshold: -1})
	f.seed(t, "A", 50, "alice", "1.00")

	var (
		wg       sync.WaitGroup
		ok, fail atomic.Int32
	)
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 1}})
			if err == nil {
				ok.Add(1)
				return
			}
			if errors.Is(err, ErrInsufficientStock) {
				fail.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, ok.Load())
	assert.EqualValues(t, 30, fail.Load())
	assert.Equal(t, 0, f.qty(t, "A"))

	orders, err := f.engine.ListOrders(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, orders, 50)
}

// flakyStore makes the first n debits report a conflict.
type flakyStore struct {
	*MemoryStore
	conflicts atomic.Int32
}

type flakyTx struct {
	Tx
	s *flakyStore
}

func (s *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &flakyTx{Tx: tx, s: s})
	})
}

func (t *flakyTx) TryDebit(ctx context.Context, id string, amount int) (int, error) {
	if t.s.conflicts.Add(-1) >= 0 {
		return 0, errors.Join(inventory.ErrConflict, errors.New("serialization failure"))
	}
	return t.Tx.TryDebit(ctx, id, amount)
}

func TestPlaceOrder_RetriesConflicts(t *testing.T) {
	items := inventory.NewMemoryStore(nil)
	require.NoError(t, items.Create(context.Background(), &inventory.Item{
		ID: "A", SKU: "A", Name: "A", Quantity: 5, Price: decimal.NewFromInt(1), CategoryID: "c", CreatedBy: "alice",
	}, ""))
	store := &flakyStore{MemoryStore: NewMemoryStore(items, zap.NewNop())}
	store.conflicts.Store(2)
	e := NewEngine(store, items, &fakeNotifier{}, zap.NewNop(), Options{DebitMaxRetries: 3})

	_, err := e.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 2}})
	require.NoError(t, err)
	it, _ := items.Get(context.Background(), "A")
	assert.Equal(t, 3, it.Quantity)

	store.conflicts.Store(10)
	_, err = e.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 1}})
	assert.ErrorIs(t, err, ErrDebitFailed)
	it, _ = items.Get(context.Background(), "A")
	assert.Equal(t, 3, it.Quantity)
}

// slowStore blocks after the first debit until the context expires.
type slowStore struct{ *MemoryStore }

func (s slowStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
}

func TestPlaceOrder_TimeoutUndoesDebits(t *testing.T) {
	items := inventory.NewMemoryStore(nil)
	require.NoError(t, items.Create(context.Background(), &inventory.Item{
		ID: "A", SKU: "A", Name: "A", Quantity: 5, Price: decimal.NewFromInt(1), CategoryID: "c", CreatedBy: "alice",
	}, ""))
	notif := &fakeNotifier{}
	orders := NewMemoryStore(items, zap.NewNop())
	e := NewEngine(slowStore{orders}, items, notif, zap.NewNop(), Options{TxTimeout: 20 * time.Millisecond, LowStockThreshold: 10})

	_, err := e.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 2}})
	require.ErrorIs(t, err, ErrTimeout)

	it, _ := items.Get(context.Background(), "A")
	assert.Equal(t, 5, it.Quantity)
	assert.Empty(t, notif.got())
	list, _ := orders.List(context.Background(), "")
	assert.Empty(t, list)
}

func TestOrders_Visibility(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "A", 10, "alice", "1.00")
	f.seed(t, "B", 10, "bob", "1.00")

	oa, err := f.engine.PlaceOrder(context.Background(), alice, []CreateOrderLine{{ItemID: "A", Quantity: 1}})
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(context.Background(), bob, []CreateOrderLine{{ItemID: "B", Quantity: 1}})
	require.NoError(t, err)

	mine, err := f.engine.ListOrders(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, oa.ID, mine[0].ID)

	all, err := f.engine.ListOrders(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.engine.GetOrder(context.Background(), bob, oa.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = f.engine.GetOrder(context.Background(), root, oa.ID)
	assert.NoError(t, err)
	_, err = f.engine.GetOrder(context.Background(), alice, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
