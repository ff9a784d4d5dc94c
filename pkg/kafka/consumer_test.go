package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkaconfig "bikeshare/pkg/kafka/config"
	"bikeshare/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConsumer(reader messageReader, handler MessageHandler) (*Consumer, *fakeWriter) {
	c := newConsumer(reader, "reservation-requests", "reservation-processor", handler, logger.NewNop())
	c.maxRetries = 3
	c.retryBackoff = time.Millisecond
	c.maxRetryBackoff = 2 * time.Millisecond
	dlq := &fakeWriter{}
	c.dlqWriter = dlq
	return c, dlq
}

func TestProcessMessage_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	c, dlq := testConsumer(newFakeReader(), func(ctx context.Context, msg Message) error {
		attempts++
		if attempts < 3 {
			return NewTransientError("unit lock held", errors.New("busy"))
		}
		return nil
	})

	err := c.processMessage(context.Background(), Message{Key: "bike-1", Headers: map[string]string{}})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Empty(t, dlq.written())
}

func TestProcessMessage_TransientExhaustedGoesToDLQ(t *testing.T) {
	attempts := 0
	c, dlq := testConsumer(newFakeReader(), func(ctx context.Context, msg Message) error {
		attempts++
		return NewTransientError("store unavailable", errors.New("connection refused"))
	})

	err := c.processMessage(context.Background(), Message{Key: "bike-1", Value: []byte(`{}`), Headers: map[string]string{}})

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	written := dlq.written()
	require.Len(t, written, 1)
	headers := map[string]string{}
	for _, h := range written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "reservation-requests", headers[HeaderOriginalTopic])
	assert.Equal(t, "transient", headers[HeaderDLQErrorType])
	assert.Equal(t, "3", headers[HeaderRetryCount])
	assert.Equal(t, "reservation-processor", headers[HeaderDLQGroup])
}

func TestProcessMessage_PermanentSkipsRetry(t *testing.T) {
	attempts := 0
	c, dlq := testConsumer(newFakeReader(), func(ctx context.Context, msg Message) error {
		attempts++
		return NewPermanentError("invalid booking request", errors.New("missing unit_id"))
	})

	err := c.processMessage(context.Background(), Message{Key: "bike-1", Headers: map[string]string{}})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Len(t, dlq.written(), 1)
}

func TestProcessMessage_BusinessErrorIsNotDeadLettered(t *testing.T) {
	c, dlq := testConsumer(newFakeReader(), func(ctx context.Context, msg Message) error {
		return NewBusinessError("already decided", nil)
	})

	err := c.processMessage(context.Background(), Message{Key: "bike-1", Headers: map[string]string{}})

	require.Error(t, err)
	assert.Empty(t, dlq.written())
}

func TestProcessMessage_MiddlewareOrder(t *testing.T) {
	var order []string
	c, _ := testConsumer(newFakeReader(), func(ctx context.Context, msg Message) error {
		order = append(order, "handler")
		return nil
	})
	c.Use(func(ctx context.Context, msg Message, next MessageHandler) error {
		order = append(order, "first")
		return next(ctx, msg)
	})
	c.Use(func(ctx context.Context, msg Message, next MessageHandler) error {
		order = append(order, "second")
		return next(ctx, msg)
	})

	require.NoError(t, c.processMessage(context.Background(), Message{Headers: map[string]string{}}))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestStart_CommitsEverySettledMessage(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Key: []byte("bike-1"), Value: []byte(`{"ok":true}`), Offset: 1},
		kafka.Message{Key: []byte("bike-2"), Value: []byte(`{"ok":false}`), Offset: 2},
	)
	var seen []string
	c, dlq := testConsumer(reader, func(ctx context.Context, msg Message) error {
		seen = append(seen, msg.Key)
		if msg.Key == "bike-2" {
			return NewPermanentError("bad payload", nil)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not commit both messages")
	}
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"bike-1", "bike-2"}, seen)
	assert.Len(t, reader.commits(), 2)
	assert.Len(t, dlq.written(), 1)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
	assert.True(t, dlq.closed)
}

func TestStart_ClosedConsumer(t *testing.T) {
	c, _ := testConsumer(newFakeReader(), func(ctx context.Context, msg Message) error { return nil })
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Start(context.Background()), ErrConsumerClosed)
}

func TestProcessMessage_DLQWriteRetriedUntilAccepted(t *testing.T) {
	c, dlq := testConsumer(newFakeReader(), func(ctx context.Context, msg Message) error {
		return NewPermanentError("invalid booking request", errors.New("missing unit_id"))
	})
	dlq.failures = 2

	err := c.processMessage(context.Background(), Message{Key: "bike-1", Headers: map[string]string{}})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsettled)
	assert.Equal(t, 3, dlq.writeAttempts())
	assert.Len(t, dlq.written(), 1)
}

func TestStart_DoesNotCommitWhenDLQUnavailable(t *testing.T) {
	reader := newFakeReader(kafka.Message{Key: []byte("bike-1"), Value: []byte(`{}`), Offset: 7})
	c, dlq := testConsumer(reader, func(ctx context.Context, msg Message) error {
		return NewTransientError("store unavailable", errors.New("connection refused"))
	})
	dlq.err = errors.New("broker unavailable")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Start(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, reader.commits())
	assert.Empty(t, dlq.written())
	assert.Greater(t, dlq.writeAttempts(), 1)
}

func TestStart_StopsWithoutCommitWhenNoDeadLetterTopic(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Key: []byte("bike-1"), Value: []byte(`{}`), Offset: 1},
		kafka.Message{Key: []byte("bike-2"), Value: []byte(`{}`), Offset: 2},
	)
	var seen []string
	c, _ := testConsumer(reader, func(ctx context.Context, msg Message) error {
		seen = append(seen, msg.Key)
		return NewPermanentError("bad payload", nil)
	})
	c.dlqWriter = nil

	err := c.Start(context.Background())

	assert.ErrorIs(t, err, ErrUnsettled)
	assert.Equal(t, []string{"bike-1"}, seen)
	assert.Empty(t, reader.commits())
}

func TestNewConsumer_RequiresDeadLetterTopic(t *testing.T) {
	cfg := &kafkaconfig.Config{Brokers: []string{"localhost:9092"}}
	handler := func(ctx context.Context, msg Message) error { return nil }

	_, err := NewConsumer(cfg, "reservation-requests", "reservation-processor", "", handler, logger.NewNop())

	assert.EqualError(t, err, "dead-letter topic cannot be empty")
}
