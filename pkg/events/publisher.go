package events

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Ledger event types.
const (
	TypeDisbursementCompleted = "disbursement.completed"
	TypeDisbursementFailed    = "disbursement.failed"
	TypeDisbursementTimeout   = "disbursement.timeout"
	TypePaymentReceived       = "payment.received"
)

// LedgerEvent is published once per committed ledger mutation.
type LedgerEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Source         string    `json:"source"`
	Reference      string    `json:"reference"`
	Amount         string    `json:"amount"`
	StudentID      int64     `json:"student_id,omitempty"`
	DisbursementID int64     `json:"disbursement_id,omitempty"`
	PaymentID      int64     `json:"payment_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEventID returns a time-ordered id.
func NewEventID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

// Publisher sends ledger events downstream. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev LedgerEvent) error
	Close() error
}

// KafkaConfig configures the ledger topic writer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type kafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}

	logger.Info("kafka writer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return &kafkaPublisher{writer: writer, logger: logger}
}

// Publish keys messages by reference so redeliveries for one reference stay ordered.
func (p *kafkaPublisher) Publish(ctx context.Context, ev LedgerEvent) error {
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Reference),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev LedgerEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
