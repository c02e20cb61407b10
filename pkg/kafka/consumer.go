package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	kafkaconfig "skyport/pkg/kafka/config"
	"skyport/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

const fetchErrorPause = time.Second

// Consumer reads one topic in a consumer group. A message's offset is
// committed once its handler succeeds, or once it is parked on the dead
// letter topic after exhausting retries.
type Consumer struct {
	reader     messageReader
	dlqWriter  messageWriter
	topic      string
	groupID    string
	dlqTopic   string
	maxRetries int
	newBackOff func() backoff.BackOff
	handler    MessageHandler
	middleware []ConsumerMiddleware
	log        *logger.Logger
	closed     bool
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafkaconfig.Config, topic string, groupID string, dlqTopic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}
	if groupID == "" {
		return nil, errors.New("group ID cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("message handler cannot be nil")
	}

	info, errs := kafkaLoggers(log, "kafka-reader")
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		Logger:            info,
		ErrorLogger:       errs,
	})

	c := newConsumer(reader, topic, groupID, handler, log)
	c.maxRetries = cfg.ConsumerMaxRetries
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.ConsumerRetryBaseDelay
		b.MaxInterval = cfg.ConsumerRetryMaxDelay
		return b
	}
	if dlqTopic != "" {
		c.dlqTopic = dlqTopic
		c.dlqWriter = newWriter(cfg, dlqTopic, kafka.RequireAll, log)
	}
	return c, nil
}

func newConsumer(reader messageReader, topic, groupID string, handler MessageHandler, log *logger.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		groupID:    groupID,
		handler:    handler,
		log:        log.With("topic", topic, "group_id", groupID),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start consumes until ctx is done, then returns ctx's error.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	c.log.Info("Kafka consumer started")
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrConsumerClosed
			}
			c.log.Error("Failed to fetch message", "error", err)
			select {
			case <-time.After(fetchErrorPause):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		msg := fromKafka(km)
		if err := c.processMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Leave the offset uncommitted; the group redelivers it.
				return ctx.Err()
			}
			c.log.Error("Message dropped after retries",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", msg.Key,
				"event_type", msg.GetEventType(),
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, km); err != nil {
			c.log.Error("Failed to commit offset", "partition", km.Partition, "offset", km.Offset, "error", err)
		}
	}
}

// processMessage runs the handler chain, retrying transient failures. A
// message that still fails is sent to the dead letter topic when configured.
func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	c.mu.RLock()
	chain := c.middleware
	c.mu.RUnlock()

	handler := c.handler
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return mw(ctx, m, next)
		}
	}

	attempt := msg.Clone()
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			err := handler(ctx, attempt)
			if err != nil && ClassifyError(err) != ErrorTypeTransient {
				return struct{}{}, backoff.Permanent(err)
			}
			if err != nil {
				attempt.SetRetryCount(attempt.GetRetryCount() + 1)
			}
			return struct{}{}, err
		},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("Retrying message",
				"key", msg.Key,
				"retry", attempt.GetRetryCount(),
				"max_retries", c.maxRetries,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err == nil || ctx.Err() != nil {
		return err
	}

	if c.dlqWriter != nil {
		if dlqErr := c.sendToDLQ(ctx, attempt, err); dlqErr != nil {
			return errors.Join(err, dlqErr)
		}
		c.log.Warn("Message sent to dead letter topic", "dlq_topic", c.dlqTopic, "key", msg.Key, "error", err)
		return nil
	}
	return err
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg Message, cause error) error {
	dead := msg.Clone()
	dead.Headers[HeaderOriginalTopic] = c.topic
	dead.Headers[HeaderDLQError] = cause.Error()
	dead.Headers[HeaderDLQTimestamp] = time.Now().UTC().Format(time.RFC3339)
	dead.Headers[HeaderDLQGroup] = c.groupID
	dead.Timestamp = time.Now()
	return c.dlqWriter.WriteMessages(ctx, toKafka(dead))
}

// Close waits for Start to return, so callers cancel its context first.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	err := c.reader.Close()
	if c.dlqWriter != nil {
		err = errors.Join(err, c.dlqWriter.Close())
	}
	return err
}
