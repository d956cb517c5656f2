// Package messaging forwards gateway events to RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Envelope is the message body published to the exchange.
type Envelope struct {
	Meta    Meta `json:"meta"`
	Payload any  `json:"payload"`
}

// Meta identifies a message independently of its payload.
type Meta struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source"`
}

// Publisher sends envelopes under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

// ConnectionOptions configures DialWithRetry.
type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *zap.Logger
}

const maxDelay = 60 * time.Second

// DialWithRetry connects to RabbitMQ with exponential backoff, giving up when
// ctx is cancelled or attempts run out.
func DialWithRetry(ctx context.Context, cfg ConnectionOptions) (*amqp091.Connection, error) {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	var lastErr error

	for i := 1; i <= cfg.RetryAttempts; i++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if i > 1 {
				cfg.Logger.Info("rabbit connected", zap.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		sleep := backoff(cfg.Delay, i)
		cfg.Logger.Warn("rabbit dial failed",
			zap.Int("attempt", i),
			zap.Duration("sleep", sleep),
			zap.Error(err))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", cfg.RetryAttempts, lastErr)
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt > 16 {
		return maxDelay
	}
	sleep := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if sleep > maxDelay || sleep <= 0 {
		sleep = maxDelay
	}
	return sleep
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *zap.Logger

	mu sync.Mutex
	ch *amqp091.Channel
}

// NewPublisher declares a durable topic exchange on conn and returns a
// publisher bound to it.
func NewPublisher(conn *amqp091.Connection, exchange string, logger *zap.Logger) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &rmqPublisher{conn: conn, exchange: exchange, log: logger, ch: ch}, nil
}

func (r *rmqPublisher) channel() (*amqp091.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	r.ch = ch
	return ch, nil
}

// Publish sends msg as a persistent JSON message.
func (r *rmqPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ch, err := r.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, r.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msgID,
		Type:         msg.Meta.Type,
		Timestamp:    msg.Meta.OccurredAt,
		Body:         body,
	})
	if err == nil {
		r.log.Debug("published", zap.String("key", key), zap.String("exchange", r.exchange))
	}
	return err
}

func (r *rmqPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if r.ch != nil {
		errs = append(errs, r.ch.Close())
	}
	errs = append(errs, r.conn.Close())
	return errors.Join(errs...)
}

// RoutingKey builds "audit.<action>" keys, lowercased, so consumers can bind
// on patterns such as audit.ticket*.
func RoutingKey(prefix, action string) string {
	return strings.ToLower(prefix + "." + action)
}
