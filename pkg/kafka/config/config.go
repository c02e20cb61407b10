// Package kafkaconfig reads broker, producer and consumer settings from the
// environment.
package kafkaconfig

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"skyport/pkg/logger"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	ProducerMaxAttempts  int           `env:"KAFKA_PRODUCER_MAX_ATTEMPTS" envDefault:"3"`
	ProducerBatchTimeout time.Duration `env:"KAFKA_PRODUCER_BATCH_TIMEOUT" envDefault:"10ms"`
	// -1 waits for all replicas, 0 for none, 1 for the leader only.
	ProducerRequireAcks int    `env:"KAFKA_PRODUCER_REQUIRE_ACKS" envDefault:"-1"`
	ProducerCompression string `env:"KAFKA_PRODUCER_COMPRESSION" envDefault:"snappy"`
	ProducerAsync       bool   `env:"KAFKA_PRODUCER_ASYNC" envDefault:"false"`

	// -1 starts at the newest offset, -2 at the oldest.
	ConsumerStartOffset       int64         `env:"KAFKA_CONSUMER_START_OFFSET" envDefault:"-2"`
	ConsumerMinBytes          int           `env:"KAFKA_CONSUMER_MIN_BYTES" envDefault:"1"`
	ConsumerMaxBytes          int           `env:"KAFKA_CONSUMER_MAX_BYTES" envDefault:"10485760"`
	ConsumerMaxWait           time.Duration `env:"KAFKA_CONSUMER_MAX_WAIT" envDefault:"500ms"`
	ConsumerCommitInterval    time.Duration `env:"KAFKA_CONSUMER_COMMIT_INTERVAL" envDefault:"0s"`
	ConsumerHeartbeatInterval time.Duration `env:"KAFKA_CONSUMER_HEARTBEAT_INTERVAL" envDefault:"3s"`
	ConsumerSessionTimeout    time.Duration `env:"KAFKA_CONSUMER_SESSION_TIMEOUT" envDefault:"10s"`
	ConsumerRebalanceTimeout  time.Duration `env:"KAFKA_CONSUMER_REBALANCE_TIMEOUT" envDefault:"60s"`
	ConsumerMaxRetries        int           `env:"KAFKA_CONSUMER_MAX_RETRIES" envDefault:"3"`
	ConsumerRetryBaseDelay    time.Duration `env:"KAFKA_CONSUMER_RETRY_BASE_DELAY" envDefault:"200ms"`
	ConsumerRetryMaxDelay     time.Duration `env:"KAFKA_CONSUMER_RETRY_MAX_DELAY" envDefault:"5s"`

	EnableMiddleware bool `env:"KAFKA_ENABLE_MIDDLEWARE" envDefault:"true"`
}

var compressions = []string{"none", "gzip", "snappy", "lz4", "zstd"}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse kafka env: %w", err)
	}
	for i, broker := range cfg.Brokers {
		cfg.Brokers[i] = strings.TrimSpace(broker)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns every envDefault without reading the environment.
func Default() *Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return &cfg
}

func (cfg *Config) Validate() error {
	var errs []error

	if len(cfg.Brokers) == 0 {
		errs = append(errs, errors.New("at least one Kafka broker is required"))
	}
	for i, broker := range cfg.Brokers {
		if broker == "" {
			errs = append(errs, fmt.Errorf("broker %d cannot be empty", i))
		}
	}

	if cfg.ProducerMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts))
	}
	if cfg.ProducerBatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ProducerBatchTimeout must be positive, got: %s", cfg.ProducerBatchTimeout))
	}
	if !slices.Contains(compressions, cfg.ProducerCompression) {
		errs = append(errs, fmt.Errorf("ProducerCompression must be one of %v, got: %s", compressions, cfg.ProducerCompression))
	}
	if cfg.ProducerRequireAcks < -1 || cfg.ProducerRequireAcks > 1 {
		errs = append(errs, fmt.Errorf("ProducerRequireAcks must be -1, 0, or 1, got: %d", cfg.ProducerRequireAcks))
	}

	if cfg.ConsumerStartOffset != -1 && cfg.ConsumerStartOffset != -2 {
		errs = append(errs, fmt.Errorf("ConsumerStartOffset must be -1 (newest) or -2 (oldest), got: %d", cfg.ConsumerStartOffset))
	}
	if cfg.ConsumerMinBytes <= 0 || cfg.ConsumerMaxBytes < cfg.ConsumerMinBytes {
		errs = append(errs, fmt.Errorf("consumer byte bounds are inconsistent: min %d, max %d", cfg.ConsumerMinBytes, cfg.ConsumerMaxBytes))
	}
	if cfg.ConsumerMaxWait <= 0 {
		errs = append(errs, fmt.Errorf("ConsumerMaxWait must be positive, got: %s", cfg.ConsumerMaxWait))
	}
	if cfg.ConsumerCommitInterval < 0 {
		errs = append(errs, fmt.Errorf("ConsumerCommitInterval cannot be negative, got: %s", cfg.ConsumerCommitInterval))
	}
	if cfg.ConsumerHeartbeatInterval <= 0 || cfg.ConsumerSessionTimeout <= cfg.ConsumerHeartbeatInterval {
		errs = append(errs, fmt.Errorf("session timeout %s must exceed heartbeat interval %s", cfg.ConsumerSessionTimeout, cfg.ConsumerHeartbeatInterval))
	}
	if cfg.ConsumerRebalanceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ConsumerRebalanceTimeout must be positive, got: %s", cfg.ConsumerRebalanceTimeout))
	}
	if cfg.ConsumerMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("ConsumerMaxRetries cannot be negative, got: %d", cfg.ConsumerMaxRetries))
	}
	if cfg.ConsumerRetryBaseDelay <= 0 || cfg.ConsumerRetryMaxDelay < cfg.ConsumerRetryBaseDelay {
		errs = append(errs, fmt.Errorf("consumer retry delays are inconsistent: base %s, max %s", cfg.ConsumerRetryBaseDelay, cfg.ConsumerRetryMaxDelay))
	}

	return errors.Join(errs...)
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_batch_timeout", cfg.ProducerBatchTimeout,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"producer_async", cfg.ProducerAsync,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_wait", cfg.ConsumerMaxWait,
		"consumer_commit_interval", cfg.ConsumerCommitInterval,
		"consumer_session_timeout", cfg.ConsumerSessionTimeout,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"enable_middleware", cfg.EnableMiddleware,
	)
}
