// Package notify delivers low-stock alerts off the order path.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/inventory"
)

// Alert is one low-stock event.
type Alert struct {
	ID        string    `json:"event_id"`
	ItemID    string    `json:"item_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Remaining int       `json:"remaining"`
	OwnerID   string    `json:"owner_id"`
	At        time.Time `json:"occurred_at"`
}

// Sender delivers an alert over one transport.
type Sender interface {
	Send(ctx context.Context, a Alert) error
}

// Dispatcher queues alerts and delivers them from a fixed set of workers.
// Notify never blocks the caller: when the queue is full the alert is dropped.
type Dispatcher struct {
	sender      Sender
	logger      *zap.Logger
	sendTimeout time.Duration

	queue chan Alert
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, logger *zap.Logger, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		sender:      sender,
		logger:      logger,
		sendTimeout: 10 * time.Second,
		queue:       make(chan Alert, queueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

func (d *Dispatcher) Notify(it inventory.Item, remaining int) {
	a := Alert{
		ID:        uuid.NewString(),
		ItemID:    it.ID,
		SKU:       it.SKU,
		Name:      it.Name,
		Remaining: remaining,
		OwnerID:   it.CreatedBy,
		At:        time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("low-stock alert after shutdown dropped", zap.String("item_id", a.ItemID))
		return
	}
	select {
	case d.queue <- a:
	default:
		d.logger.Warn("low-stock queue full, alert dropped",
			zap.String("item_id", a.ItemID),
			zap.Int("remaining", remaining),
		)
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for a := range d.queue {
		d.deliver(a)
	}
}

func (d *Dispatcher) deliver(a Alert) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("low-stock sender panicked",
				zap.String("item_id", a.ItemID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	if err := d.sender.Send(ctx, a); err != nil {
		d.logger.Error("low-stock alert not delivered",
			zap.String("item_id", a.ItemID),
			zap.String("event_id", a.ID),
			zap.Error(err),
		)
	}
}

// Close stops accepting alerts and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
