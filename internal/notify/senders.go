package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// LogSender writes alerts to the service log.
type LogSender struct{ logger *zap.Logger }

func NewLogSender(logger *zap.Logger) *LogSender { return &LogSender{logger: logger} }

func (s *LogSender) Send(_ context.Context, a Alert) error {
	s.logger.Warn("low stock",
		zap.String("event_id", a.ID),
		zap.String("item_id", a.ItemID),
		zap.String("sku", a.SKU),
		zap.String("name", a.Name),
		zap.Int("remaining", a.Remaining),
	)
	return nil
}

// KafkaSender publishes alerts as JSON, keyed by item id so the events of one
// item land on one partition.
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

type KafkaOptions struct {
	Brokers  []string
	Topic    string
	ClientID string
}

func NewKafkaSender(opts KafkaOptions, logger *zap.Logger) (*KafkaSender, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = opts.ClientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(opts.Brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaSenderWithProducer(producer, opts.Topic, logger), nil
}

func NewKafkaSenderWithProducer(p sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSender {
	return &KafkaSender{producer: p, topic: topic, logger: logger}
}

func (s *KafkaSender) message(a Alert) (*sarama.ProducerMessage, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(a.ItemID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte("LowStock")},
			{Key: []byte("event-id"), Value: []byte(a.ID)},
			{Key: []byte("timestamp"), Value: []byte(a.At.Format(time.RFC3339))},
		},
	}, nil
}

func (s *KafkaSender) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := s.message(a)
	if err != nil {
		return err
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish low-stock alert: %w", err)
	}
	s.logger.Info("low-stock alert published",
		zap.String("topic", s.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("item_id", a.ItemID),
	)
	return nil
}

func (s *KafkaSender) Close() error { return s.producer.Close() }

// MailSender emails one recipient per alert.
type MailSender struct {
	addr string
	auth smtp.Auth
	from string
	to   string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type MailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func NewMailSender(opts MailOptions) *MailSender {
	var auth smtp.Auth
	if opts.Username != "" {
		auth = smtp.PlainAuth("", opts.Username, opts.Password, opts.Host)
	}
	return &MailSender{
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		auth: auth,
		from: opts.From,
		to:   opts.To,
		send: smtp.SendMail,
	}
}

// oneLine replaces control characters so a name cannot start a new header
// or body line.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// subject is RFC 2047 encoded when the name is not plain ASCII.
func subject(a Alert) string {
	return mime.QEncoding.Encode("utf-8", "Low stock alert: "+oneLine(a.Name))
}

func body(a Alert) string {
	return fmt.Sprintf("Item '%s' has %d left", oneLine(a.Name), a.Remaining)
}

func (s *MailSender) compose(a Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", s.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject(a))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body(a))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Send ignores ctx beyond an up-front check; smtp.SendMail has no cancellation.
func (s *MailSender) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(s.addr, s.auth, s.from, []string{s.to}, s.compose(a)); err != nil {
		return fmt.Errorf("send low-stock mail: %w", err)
	}
	return nil
}
