package order

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/auth"
	"github.com/MikeMC777/inventario/internal/inventory"
	"github.com/MikeMC777/inventario/internal/schema"
	"github.com/MikeMC777/inventario/internal/user"
)

type pgFixture struct {
	pool   *pgxpool.Pool
	owner  auth.Principal
	catID  string
	ledger *inventory.PGLedger
	notif  *fakeNotifier
	engine *Engine
}

// newPGFixture runs the engine on Postgres at POSTGRES_DSN, or skips.
func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, schema.Migrate(ctx, pool))

	owner := auth.Principal{ID: uuid.NewString(), Role: user.RoleStandard}
	owner.Username = owner.ID
	catID := uuid.NewString()
	_, err = pool.Exec(ctx, `INSERT INTO users (id, username, role, password_hash) VALUES ($1,$1,'user','x')`, owner.ID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1,$1)`, catID)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM orders WHERE created_by=$1`, owner.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, owner.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM categories WHERE id=$1`, catID)
	})

	ledger := inventory.NewPGLedger(pool)
	notif := &fakeNotifier{}
	return &pgFixture{
		pool:   pool,
		owner:  owner,
		catID:  catID,
		ledger: ledger,
		notif:  notif,
		engine: NewEngine(NewPGStore(pool), ledger, notif, zap.NewNop(), Options{LowStockThreshold: 5}),
	}
}

func (f *pgFixture) seed(t *testing.T, qty int) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, inventory.NewPGRepo(f.pool).Create(context.Background(), &inventory.Item{
		ID: id, SKU: id, Name: "Item " + id[:8], Quantity: qty,
		Price: decimal.RequireFromString("1.25"), CategoryID: f.catID, CreatedBy: f.owner.ID,
	}, ""))
	return id
}

func (f *pgFixture) qty(t *testing.T, id string) int {
	t.Helper()
	it, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return it.Quantity
}

func TestPGStore_PlaceOrderPersistsLinesInOrder(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	a, b := f.seed(t, 12), f.seed(t, 7)

	o, err := f.engine.PlaceOrder(ctx, f.owner, []CreateOrderLine{
		{ItemID: b, Quantity: 2, Price: "3.00"},
		{ItemID: a, Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, f.qty(t, a))
	assert.Equal(t, 5, f.qty(t, b))
	assert.Equal(t, []alert{{itemID: b, remaining: 5}}, f.notif.got())

	stored, err := f.engine.GetOrder(ctx, f.owner, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, b, stored.Lines[0].ItemID)
	assert.Equal(t, a, stored.Lines[1].ItemID)
	assert.Equal(t, "3.00", stored.Lines[0].Price.StringFixed(2))
	assert.Equal(t, "1.25", stored.Lines[1].Price.StringFixed(2))
	assert.Equal(t, "11.00", stored.Total.StringFixed(2))

	// order lines keep the item from being deleted
	_, err = inventory.NewPGRepo(f.pool).Delete(ctx, a)
	assert.ErrorIs(t, err, inventory.ErrInUse)
}

func TestPGStore_LaterLineFailureRollsBackEarlierDebits(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	a, b := f.seed(t, 10), f.seed(t, 1)

	_, err := f.engine.PlaceOrder(ctx, f.owner, []CreateOrderLine{
		{ItemID: a, Quantity: 3},
		{ItemID: b, Quantity: 2},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 1, le.Line)

	assert.Equal(t, 10, f.qty(t, a))
	assert.Equal(t, 1, f.qty(t, b))
	list, err := f.engine.ListOrders(ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.notif.got())
}

func TestPGStore_ConcurrentTwoLineOrdersNeverOversell(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	a, b := f.seed(t, 50), f.seed(t, 20)

	var (
		wg    sync.WaitGroup
		ok    atomic.Int32
		short atomic.Int32
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.PlaceOrder(ctx, f.owner, []CreateOrderLine{
				{ItemID: a, Quantity: 1},
				{ItemID: b, Quantity: 1},
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 20, ok.Load())
	assert.EqualValues(t, 40, short.Load())
	assert.Equal(t, 30, f.qty(t, a))
	assert.Equal(t, 0, f.qty(t, b))

	list, err := f.engine.ListOrders(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, list, 20)
	for _, o := range list {
		require.Len(t, o.Lines, 2)
		assert.Equal(t, a, o.Lines[0].ItemID)
	}
}
