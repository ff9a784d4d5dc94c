// Package notification queues user notifications on RabbitMQ and delivers
// them from a background consumer.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrPublisherClosed = errors.New("notification publisher is closed")

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends notifications to a durable queue. The connection is
// opened on first use and reopened after the broker drops it.
type Publisher struct {
	url   string
	queue string
	log   *logger.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	closed bool
	open   func() (channel, error)
}

func NewPublisher(url, queue string, log *logger.Logger) *Publisher {
	p := &Publisher{
		url:   url,
		queue: queue,
		log:   log.With("component", "notification_publisher", "queue", queue),
	}
	p.open = p.dial
	return p
}

// Notify publishes n as a persistent JSON message.
func (p *Publisher) Notify(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}
	if p.ch == nil {
		if p.ch, err = p.open(); err != nil {
			return err
		}
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.log.Debug("Notification queued", "to", n.To, "subject", n.Subject)
	return nil
}

func (p *Publisher) dial() (channel, error) {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	p.conn = conn
	p.log.Info("Connected to notification broker")
	return ch, nil
}

// reset drops the current channel so the next Notify reconnects.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
