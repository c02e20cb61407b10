package kafkamiddleware

import (
	"context"
	"errors"
	"testing"

	"skyport/pkg/kafka"
	"skyport/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()
	msg := kafka.Message{Key: "k"}

	publish := m.ProducerMiddleware()
	_ = publish(ctx, msg, func(context.Context, kafka.Message) error { return nil })
	_ = publish(ctx, msg, func(context.Context, kafka.Message) error { return errors.New("down") })

	consume := m.ConsumerMiddleware()
	_ = consume(ctx, msg, func(context.Context, kafka.Message) error { return nil })

	s := m.Snapshot()
	assert.EqualValues(t, 1, s.Published)
	assert.EqualValues(t, 1, s.PublishFailed)
	assert.EqualValues(t, 1, s.Consumed)
	assert.Zero(t, s.ConsumeFailed)
}

func TestLoggingMiddleware_PassesErrorsThrough(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := LoggingProducerMiddleware(logger.Discard())(ctx, kafka.Message{}, func(context.Context, kafka.Message) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = LoggingConsumerMiddleware(logger.Discard())(ctx, kafka.Message{}, func(context.Context, kafka.Message) error { return nil })
	assert.NoError(t, err)
}
