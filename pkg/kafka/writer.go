package kafka

import (
	"context"
	"fmt"

	kafkaconfig "skyport/pkg/kafka/config"
	"skyport/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func compression(name string) compress.Compression {
	switch name {
	case "none":
		return 0
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

func requiredAcks(n int) kafka.RequiredAcks {
	switch n {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// kafkaLoggers routes kafka-go's chatter to debug and its errors to error.
func kafkaLoggers(log *logger.Logger, component string) (kafka.Logger, kafka.Logger) {
	l := log.With("component", component)
	info := kafka.LoggerFunc(func(msg string, args ...any) {
		l.Debug("kafka", "detail", fmt.Sprintf(msg, args...))
	})
	errs := kafka.LoggerFunc(func(msg string, args ...any) {
		l.Error("kafka", "detail", fmt.Sprintf(msg, args...))
	})
	return info, errs
}

func newWriter(cfg *kafkaconfig.Config, topic string, acks kafka.RequiredAcks, log *logger.Logger) *kafka.Writer {
	info, errs := kafkaLoggers(log, "kafka-writer")
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		Compression:  compression(cfg.ProducerCompression),
		MaxAttempts:  cfg.ProducerMaxAttempts,
		BatchTimeout: cfg.ProducerBatchTimeout,
		Async:        cfg.ProducerAsync,
		Logger:       info,
		ErrorLogger:  errs,
	}
}

func toKafka(msg Message) kafka.Message {
	km := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  msg.Timestamp,
	}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}

func fromKafka(km kafka.Message) Message {
	msg := Message{
		Key:       string(km.Key),
		Value:     km.Value,
		Headers:   make(map[string]string, len(km.Headers)),
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Timestamp: km.Time,
	}
	for _, h := range km.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
