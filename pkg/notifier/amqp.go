package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Request is the message a communications worker consumes.
type Request struct {
	Category  string            `json:"category"`
	To        domain.Contact    `json:"to"`
	Body      string            `json:"body"`
	Vars      map[string]string `json:"vars,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// AMQPNotifier hands notifications to the communications service over RabbitMQ
// instead of calling an SMS gateway inline.
type AMQPNotifier struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewAMQPNotifier(amqpURL, exchange string, logger *zap.Logger) (*AMQPNotifier, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPNotifier{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// RoutingKey is "notify.<category>".
func RoutingKey(category string) string {
	return "notify." + category
}

func (n *AMQPNotifier) Notify(ctx context.Context, to domain.Contact, category string, vars map[string]string) error {
	body, err := Render(category, vars)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(Request{
		Category:  category,
		To:        to,
		Body:      body,
		Vars:      vars,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	err = n.channel.PublishWithContext(ctx, n.exchange, RoutingKey(category), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	n.logger.Debug("notification queued",
		zap.String("exchange", n.exchange),
		zap.String("routing_key", RoutingKey(category)))
	return nil
}

func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
