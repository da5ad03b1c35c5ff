package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/inventory"
)

type recordingSender struct {
	mu   sync.Mutex
	got  []Alert
	fail error
	gate chan struct{}
}

func (r *recordingSender) Send(_ context.Context, a Alert) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return r.fail
}

func (r *recordingSender) alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.got...)
}

type panickingSender struct{ calls int }

func (p *panickingSender) Send(context.Context, Alert) error {
	p.calls++
	panic("boom")
}

func item(id string) inventory.Item {
	return inventory.Item{ID: id, SKU: "SKU-" + id, Name: "Widget " + id, CreatedBy: "alice"}
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, zap.NewNop(), 16, 2)

	for i := 0; i < 5; i++ {
		d.Notify(item("A"), 9-i)
	}
	require.NoError(t, d.Close(context.Background()))

	got := s.alerts()
	require.Len(t, got, 5)
	for _, a := range got {
		assert.Equal(t, "A", a.ItemID)
		assert.Equal(t, "Widget A", a.Name)
		assert.NotEmpty(t, a.ID)
	}
}

func TestDispatcher_DropsWhenFullWithoutBlocking(t *testing.T) {
	s := &recordingSender{gate: make(chan struct{})}
	d := NewDispatcher(s, zap.NewNop(), 1, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Notify(item("A"), i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(s.gate)
	require.NoError(t, d.Close(context.Background()))
	// one in flight plus one queued at most
	assert.LessOrEqual(t, len(s.alerts()), 2)
	assert.NotEmpty(t, s.alerts())
}

func TestDispatcher_SurvivesSenderFailures(t *testing.T) {
	p := &panickingSender{}
	d := NewDispatcher(p, zap.NewNop(), 4, 1)
	d.Notify(item("A"), 1)
	d.Notify(item("B"), 2)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, p.calls)

	s := &recordingSender{fail: errors.New("smtp down")}
	d = NewDispatcher(s, zap.NewNop(), 4, 1)
	d.Notify(item("A"), 1)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, s.alerts(), 1)
}

func TestDispatcher_NotifyAfterCloseIsDropped(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, zap.NewNop(), 4, 1)
	require.NoError(t, d.Close(context.Background()))
	assert.NotPanics(t, func() { d.Notify(item("A"), 1) })
	assert.Empty(t, s.alerts())
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	s := &recordingSender{gate: make(chan struct{})}
	d := NewDispatcher(s, zap.NewNop(), 4, 1)
	d.Notify(item("A"), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(s.gate)
}

func TestKafkaSender_PublishesKeyedJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "inventory.low-stock" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "A" {
			return errors.New("wrong key " + string(key))
		}
		raw, _ := msg.Value.Encode()
		var a Alert
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		if a.Remaining != 3 {
			return errors.New("wrong remaining")
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers["event-type"] != "LowStock" || headers["event-id"] != a.ID {
			return errors.New("missing headers")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	s := NewKafkaSenderWithProducer(producer, "inventory.low-stock", zap.NewNop())
	a := Alert{ID: "evt-1", ItemID: "A", Name: "Widget", Remaining: 3, At: time.Now().UTC()}
	require.NoError(t, s.Send(context.Background(), a))
	assert.ErrorIs(t, s.Send(context.Background(), a), sarama.ErrOutOfBrokers)
	require.NoError(t, s.Close())
}

func TestMailSender_ComposesPlainText(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s := NewMailSender(MailOptions{Host: "mail.local", Port: 2525, From: "inv@local", To: "ops@local"})
	s.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), Alert{Name: "Widget", Remaining: 4}))
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"ops@local"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Low stock alert: Widget\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "Item 'Widget' has 4 left\r\n"))

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.Error(t, s.Send(context.Background(), Alert{Name: "Widget"}))
}

func TestMailSender_NameCannotInjectHeaders(t *testing.T) {
	s := NewMailSender(MailOptions{Host: "mail.local", Port: 25, From: "inv@local", To: "ops@local"})
	msg := string(s.compose(Alert{Name: "Widget\r\nBcc: victim@evil.example\r\n\r\nforged", Remaining: 1}))

	head, text, ok := strings.Cut(msg, "\r\n\r\n")
	require.True(t, ok)
	headers := strings.Split(head, "\r\n")
	assert.Len(t, headers, 5)
	for _, h := range headers {
		assert.False(t, strings.HasPrefix(h, "Bcc:"), h)
	}
	assert.NotContains(t, text, "\r\nforged")
	assert.Equal(t, 1, strings.Count(text, "\r\n"))
}

func TestMailSender_EncodesNonASCIISubject(t *testing.T) {
	s := NewMailSender(MailOptions{Host: "mail.local", Port: 25, From: "inv@local", To: "ops@local"})
	msg := string(s.compose(Alert{Name: "Café", Remaining: 2}))

	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Item 'Café' has 2 left\r\n")
}
