package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"skyport/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("t-1").
		WithValue(map[string]string{"a": "b"}).
		WithEventType("booking.committed").
		WithCorrelationID("").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "t-1", msg.Key)
	assert.JSONEq(t, `{"a":"b"}`, string(msg.Value))
	assert.Equal(t, "booking.committed", msg.GetEventType())
	assert.NotEmpty(t, msg.GetEventID())
	assert.NotEmpty(t, msg.Headers[HeaderTimestamp])
	_, hasCorrelation := msg.GetHeader(HeaderCorrelationID)
	assert.False(t, hasCorrelation)

	_, err = NewMessage().WithKey("k").WithValue(func() {}).Build()
	assert.Error(t, err)
}

func TestMessage_RetryCount(t *testing.T) {
	var m Message
	assert.Zero(t, m.GetRetryCount())
	for range 12 {
		m.SetRetryCount(m.GetRetryCount() + 1)
	}
	assert.Equal(t, 12, m.GetRetryCount())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTypeUnknown, ClassifyError(nil))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(NewTransientError("store", errors.New("x"))))
	assert.Equal(t, ErrorTypePermanent, ClassifyError(NewPermanentError("decode", errors.New("x"))))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(errors.New("dial tcp: Connection Refused")))
	assert.Equal(t, ErrorTypePermanent, ClassifyError(errors.New("something odd")))

	assert.True(t, ShouldRetry(context.DeadlineExceeded, 0, 1))
	assert.False(t, ShouldRetry(context.DeadlineExceeded, 1, 1))
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "bookings.events", log: logger.Discard()}

	var seen []string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		seen = append(seen, msg.Topic)
		return next(ctx, msg)
	})

	msg, err := NewMessage().WithKey("k").WithRawValue([]byte(`{}`)).WithEventType("x").Build()
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg))

	out := w.written()
	require.Len(t, out, 1)
	assert.Equal(t, "k", string(out[0].Key))
	assert.Equal(t, "x", header(out[0], HeaderEventType))
	assert.Equal(t, []string{"bookings.events"}, seen)

	assert.ErrorIs(t, p.Publish(context.Background(), Message{Value: []byte("v")}), ErrEmptyKey)
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k"}), ErrEmptyValue)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), msg), ErrProducerClosed)
}

func TestProducer_DeadLetter(t *testing.T) {
	failing := &fakeWriter{err: errors.New("leader not available")}
	dlq := &fakeWriter{}
	p := &Producer{writer: failing, dlqWriter: dlq, topic: "main", dlqTopic: "main.dlq", log: logger.Discard()}

	msg := Message{Key: "k", Value: []byte("v"), Headers: map[string]string{"a": "1"}}
	err := p.Publish(context.Background(), msg)
	require.Error(t, err)

	out := dlq.written()
	require.Len(t, out, 1)
	assert.Equal(t, "main", header(out[0], HeaderOriginalTopic))
	assert.Equal(t, "leader not available", header(out[0], HeaderDLQError))
	assert.NotContains(t, msg.Headers, HeaderOriginalTopic)
}

func TestConsumer_ProcessMessage(t *testing.T) {
	newTestConsumer := func(handler MessageHandler, dlq messageWriter) *Consumer {
		c := newConsumer(&fakeReader{}, "travelers.events", "group", handler, logger.Discard())
		c.maxRetries = 2
		c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
		if dlq != nil {
			c.dlqWriter = dlq
			c.dlqTopic = "travelers.events.dlq"
		}
		return c
	}
	msg := Message{Key: "k", Value: []byte("v"), Headers: map[string]string{}}

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		c := newTestConsumer(func(context.Context, Message) error {
			calls++
			if calls < 3 {
				return NewTransientError("store", io.ErrUnexpectedEOF)
			}
			return nil
		}, nil)

		require.NoError(t, c.processMessage(context.Background(), msg))
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors go straight to the dead letter topic", func(t *testing.T) {
		calls := 0
		dlq := &fakeWriter{}
		c := newTestConsumer(func(context.Context, Message) error {
			calls++
			return NewPermanentError("decode", errors.New("bad json"))
		}, dlq)

		require.NoError(t, c.processMessage(context.Background(), msg))
		assert.Equal(t, 1, calls)
		out := dlq.written()
		require.Len(t, out, 1)
		assert.Equal(t, "group", header(out[0], HeaderDLQGroup))
	})

	t.Run("exhausted retries are reported without a dead letter topic", func(t *testing.T) {
		calls := 0
		c := newTestConsumer(func(context.Context, Message) error {
			calls++
			return context.DeadlineExceeded
		}, nil)

		err := c.processMessage(context.Background(), msg)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 3, calls)
	})

	t.Run("middleware wraps the handler", func(t *testing.T) {
		var order []string
		c := newTestConsumer(func(context.Context, Message) error {
			order = append(order, "handler")
			return nil
		}, nil)
		c.Use(func(ctx context.Context, m Message, next MessageHandler) error {
			order = append(order, "outer")
			return next(ctx, m)
		})

		require.NoError(t, c.processMessage(context.Background(), msg))
		assert.Equal(t, []string{"outer", "handler"}, order)
	})
}

func TestConsumer_StartCommitsProcessedMessages(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "t", Offset: 1, Key: []byte("a"), Value: []byte("1")},
		{Topic: "t", Offset: 2, Key: []byte("b"), Value: []byte("2")},
	}}

	var mu sync.Mutex
	var keys []string
	c := newConsumer(reader, "t", "g", func(_ context.Context, m Message) error {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, m.Key)
		return nil
	}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, []int64{1, 2}, reader.commits())
}
