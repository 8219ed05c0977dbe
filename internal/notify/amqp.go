package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bistro/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Channel is the subset of *amqp.Channel the notifier publishes through.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes events to a topic exchange with the routing key
// account.<id>, leaving delivery to whichever consumer owns the account's
// live connection.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       Channel
	exchange string
	logger   zerolog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger zerolog.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	n, err := NewAMQPNotifier(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	n.conn = conn
	return n, nil
}

// NewAMQPNotifier wraps an open channel and declares the exchange on it.
func NewAMQPNotifier(ch Channel, exchange string, logger zerolog.Logger) (*AMQPNotifier, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQPNotifier{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "amqp-notifier").Logger(),
	}, nil
}

// RoutingKey is the topic an account's events are published under.
func RoutingKey(accountID string) string {
	return "account." + accountID
}

// Notify publishes the event as persistent JSON.
func (n *AMQPNotifier) Notify(ctx context.Context, accountID string, event model.Event) error {
	if accountID == "" {
		return errors.New("notification has no recipient")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(event.Type),
		Body:         body,
	}
	if event.Priority == model.PriorityHigh {
		pub.Priority = 5
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ch.PublishWithContext(ctx, n.exchange, RoutingKey(accountID), false, false, pub); err != nil {
		n.logger.Error().Err(err).Str("account_id", accountID).Msg("failed to publish notification")
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug().
		Str("account_id", accountID).
		Str("type", string(event.Type)).
		Msg("notification published")
	return nil
}

// Close closes the channel and, when the notifier dialled it, the connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.ch.Close()
	if n.conn != nil && !n.conn.IsClosed() {
		if cerr := n.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
