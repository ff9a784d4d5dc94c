package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	consumerPrefetch  = 50
	initialBackoff    = time.Second
	maxBackoff        = 30 * time.Second
	reconnectInterval = 2 * time.Second
)

var errDeliveriesClosed = errors.New("deliveries channel closed")

// Consumer reads the notification queue and hands each message to a Mailer.
type Consumer struct {
	url    string
	queue  string
	mailer Mailer
	log    *logger.Logger
}

func NewConsumer(url, queue string, mailer Mailer, log *logger.Logger) *Consumer {
	return &Consumer{
		url:    url,
		queue:  queue,
		mailer: mailer,
		log:    log.With("component", "notification_consumer", "queue", queue),
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff whenever the broker is unreachable or drops the connection.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("Failed to dial notification broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			c.log.Info("Notification consumer stopped")
			return nil
		}
		c.log.Warn("Notification consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, reconnectInterval) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		c.log.Warn("Failed to set prefetch", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("Consuming notifications")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.deliver(ctx, d)
		}
	}
}

// deliver acks a sent notification. Undecodable messages are dropped; a
// failed send is requeued once.
func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	var n model.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		c.log.Error("Dropping undecodable notification", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.mailer.Send(ctx, n); err != nil {
		c.log.Warn("Failed to deliver notification", "to", n.To, "subject", n.Subject, "redelivered", d.Redelivered, "error", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
