package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v5"
)

// Orchestration holds the tuning knobs of the booking workflow.
type Orchestration struct {
	HoldTTL        time.Duration `env:"BOOKING_HOLD_TTL" envDefault:"15m"`
	ReaperInterval time.Duration `env:"BOOKING_REAPER_INTERVAL" envDefault:"30s"`

	ChargeBaseDelay  time.Duration `env:"BOOKING_CHARGE_BASE_DELAY" envDefault:"200ms"`
	ChargeMaxDelay   time.Duration `env:"BOOKING_CHARGE_MAX_DELAY" envDefault:"2s"`
	ChargeMultiplier float64       `env:"BOOKING_CHARGE_MULTIPLIER" envDefault:"2"`
	ChargeJitter     float64       `env:"BOOKING_CHARGE_JITTER" envDefault:"0.2"`
	ChargeMaxRetries uint          `env:"BOOKING_CHARGE_MAX_RETRIES" envDefault:"3"`

	RefundBaseDelay  time.Duration `env:"BOOKING_REFUND_BASE_DELAY" envDefault:"500ms"`
	RefundMaxDelay   time.Duration `env:"BOOKING_REFUND_MAX_DELAY" envDefault:"10s"`
	RefundMaxRetries uint          `env:"BOOKING_REFUND_MAX_RETRIES" envDefault:"5"`

	PaymentCallTimeout time.Duration `env:"BOOKING_PAYMENT_CALL_TIMEOUT" envDefault:"10s"`
	PaymentLeaseTTL    time.Duration `env:"BOOKING_PAYMENT_LEASE_TTL" envDefault:"30s"`

	ClearanceValidity    time.Duration `env:"BOOKING_CLEARANCE_VALIDITY" envDefault:"4320h"`
	TrainingPassingScore int           `env:"BOOKING_TRAINING_PASSING_SCORE" envDefault:"80"`

	TaxBasisPoints         int64 `env:"BOOKING_TAX_BASIS_POINTS" envDefault:"1000"`
	FullPlanDiscountPoints int64 `env:"BOOKING_FULL_PLAN_DISCOUNT_BASIS_POINTS" envDefault:"500"`

	BookingsTopic       string `env:"BOOKING_EVENTS_TOPIC" envDefault:"bookings.events"`
	TravelersTopic      string `env:"TRAVELER_EVENTS_TOPIC" envDefault:"travelers.events"`
	TravelerEventsGroup string `env:"TRAVELER_EVENTS_GROUP" envDefault:"bookings-traveler-sync"`
	EventsEnabled       bool   `env:"BOOKING_EVENTS_ENABLED" envDefault:"true"`
}

func Load() (Orchestration, error) {
	var cfg Orchestration
	if err := env.Parse(&cfg); err != nil {
		return Orchestration{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Orchestration{}, err
	}
	return cfg, nil
}

// Default returns the configuration with every envDefault applied and no
// environment lookups.
func Default() Orchestration {
	var cfg Orchestration
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

func (c Orchestration) Validate() error {
	var errs []error
	if c.HoldTTL <= 0 {
		errs = append(errs, fmt.Errorf("BOOKING_HOLD_TTL must be positive, got: %s", c.HoldTTL))
	}
	if c.ReaperInterval <= 0 {
		errs = append(errs, fmt.Errorf("BOOKING_REAPER_INTERVAL must be positive, got: %s", c.ReaperInterval))
	}
	if c.ChargeBaseDelay <= 0 || c.ChargeMaxDelay < c.ChargeBaseDelay {
		errs = append(errs, fmt.Errorf("charge backoff delays are inconsistent: base %s, max %s", c.ChargeBaseDelay, c.ChargeMaxDelay))
	}
	if c.ChargeMultiplier < 1 {
		errs = append(errs, fmt.Errorf("BOOKING_CHARGE_MULTIPLIER must be >= 1, got: %g", c.ChargeMultiplier))
	}
	if c.ChargeJitter < 0 || c.ChargeJitter > 1 {
		errs = append(errs, fmt.Errorf("BOOKING_CHARGE_JITTER must be within [0,1], got: %g", c.ChargeJitter))
	}
	if c.RefundBaseDelay <= 0 || c.RefundMaxDelay < c.RefundBaseDelay {
		errs = append(errs, fmt.Errorf("refund backoff delays are inconsistent: base %s, max %s", c.RefundBaseDelay, c.RefundMaxDelay))
	}
	if c.PaymentCallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BOOKING_PAYMENT_CALL_TIMEOUT must be positive, got: %s", c.PaymentCallTimeout))
	}
	if c.PaymentLeaseTTL <= c.PaymentCallTimeout {
		errs = append(errs, fmt.Errorf("BOOKING_PAYMENT_LEASE_TTL must exceed the payment call timeout %s, got: %s", c.PaymentCallTimeout, c.PaymentLeaseTTL))
	}
	if c.ClearanceValidity <= 0 {
		errs = append(errs, fmt.Errorf("BOOKING_CLEARANCE_VALIDITY must be positive, got: %s", c.ClearanceValidity))
	}
	if c.TrainingPassingScore < 0 || c.TrainingPassingScore > 100 {
		errs = append(errs, fmt.Errorf("BOOKING_TRAINING_PASSING_SCORE must be within [0,100], got: %d", c.TrainingPassingScore))
	}
	if c.TaxBasisPoints < 0 || c.FullPlanDiscountPoints < 0 || c.FullPlanDiscountPoints > 10000 {
		errs = append(errs, fmt.Errorf("pricing basis points out of range: tax %d, discount %d", c.TaxBasisPoints, c.FullPlanDiscountPoints))
	}
	if c.EventsEnabled && (c.BookingsTopic == "" || c.TravelersTopic == "") {
		errs = append(errs, errors.New("event topics cannot be empty when events are enabled"))
	}
	return errors.Join(errs...)
}

// ChargeBackOff returns a fresh backoff for retrying an unavailable processor.
func (c Orchestration) ChargeBackOff() backoff.BackOff {
	return exponential(c.ChargeBaseDelay, c.ChargeMaxDelay, c.ChargeMultiplier, c.ChargeJitter)
}

func (c Orchestration) RefundBackOff() backoff.BackOff {
	return exponential(c.RefundBaseDelay, c.RefundMaxDelay, backoff.DefaultMultiplier, backoff.DefaultRandomizationFactor)
}

func exponential(base, maxDelay time.Duration, multiplier, jitter float64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxDelay
	b.Multiplier = multiplier
	b.RandomizationFactor = jitter
	b.Reset()
	return b
}
