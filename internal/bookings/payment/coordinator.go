package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/repository"
	"skyport/pkg/clock"
	"skyport/pkg/logger"
	"skyport/pkg/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCallTimeout      = 10 * time.Second
	DefaultRefundMaxRetries = 5
	DefaultStoreMaxRetries  = 3
	DefaultLeaseMargin      = 5 * time.Second
	DefaultLeasePoll        = 100 * time.Millisecond
)

// Coordinator drives charges and refunds through a Processor so that one
// idempotency key yields at most one successful external charge.
//
// Concurrent in-process calls for a key share one flight. Across processes
// the PaymentIntent record is the claim: a caller moves it from created to
// charging under its own lease before calling the processor, and settles it
// to charged or failed under that lease. Callers that find a live lease held
// by another coordinator wait for its outcome; a lease that outlives its
// expiry is taken over and the charge is retried with the same key.
type Coordinator struct {
	intents   repository.PaymentIntentRepository
	processor Processor
	clock     clock.Clock
	logger    *logger.Logger
	flights   singleflight.Group
	owner     string

	callTimeout time.Duration
	leaseTTL    time.Duration
	leasePoll   time.Duration

	newRefundBackOff func() backoff.BackOff
	refundMaxRetries uint
	newStoreBackOff  func() backoff.BackOff
	storeMaxRetries  uint
}

type Option func(*Coordinator)

func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithRefundPolicy sets the backoff between refund attempts and how many
// retries follow the first attempt.
func WithRefundPolicy(newBackOff func() backoff.BackOff, maxRetries uint) Option {
	return func(c *Coordinator) {
		c.newRefundBackOff = newBackOff
		c.refundMaxRetries = maxRetries
	}
}

// WithStorePolicy sets the backoff between attempts to write a charge or
// refund outcome to the intent record.
func WithStorePolicy(newBackOff func() backoff.BackOff, maxRetries uint) Option {
	return func(c *Coordinator) {
		c.newStoreBackOff = newBackOff
		c.storeMaxRetries = maxRetries
	}
}

// WithLease sets how long a charging lease is held and how often a waiting
// caller polls for its outcome. ttl is raised to cover the call timeout.
func WithLease(ttl, poll time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.leaseTTL = ttl
		}
		if poll > 0 {
			c.leasePoll = poll
		}
	}
}

// WithOwner names the lease owner. Each coordinator gets a random one by default.
func WithOwner(owner string) Option {
	return func(c *Coordinator) {
		if owner != "" {
			c.owner = owner
		}
	}
}

func NewCoordinator(intents repository.PaymentIntentRepository, processor Processor, clk clock.Clock, log *logger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		intents:          intents,
		processor:        processor,
		clock:            clk,
		logger:           log,
		owner:            uuid.NewString(),
		callTimeout:      DefaultCallTimeout,
		leasePoll:        DefaultLeasePoll,
		refundMaxRetries: DefaultRefundMaxRetries,
		newRefundBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		storeMaxRetries: DefaultStoreMaxRetries,
		newStoreBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.Multiplier = 2
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.leaseTTL <= c.callTimeout {
		c.leaseTTL = c.callTimeout + DefaultLeaseMargin
	}
	return c
}

// Owner is the lease owner this coordinator writes to charging intents.
func (c *Coordinator) Owner() string {
	return c.owner
}

// Charge charges amount under key. Repeating a call with the same key and
// amount returns the first outcome without charging again; the same key
// with a different amount fails with ErrIdempotencyConflict. A charge that
// succeeded but could not be recorded fails with *UnrecordedChargeError.
func (c *Coordinator) Charge(ctx context.Context, key string, amount int64, currency, token string) (Receipt, error) {
	flight := c.flights.DoChan(key, func() (any, error) {
		// The flight outlives any single caller's cancellation so joiners
		// and the intent record always observe a finished attempt.
		return c.charge(context.WithoutCancel(ctx), key, amount, currency, token)
	})

	select {
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return Receipt{}, res.Err
		}
		receipt := res.Val.(Receipt)
		if receipt.Amount != amount {
			return Receipt{}, fmt.Errorf("%w: key %s charged %d, requested %d", bookingserrors.ErrIdempotencyConflict, key, receipt.Amount, amount)
		}
		return receipt, nil
	}
}

func (c *Coordinator) charge(ctx context.Context, key string, amount int64, currency, token string) (Receipt, error) {
	intent, err := c.claim(ctx, key, amount, currency)
	if err != nil {
		return Receipt{}, err
	}
	if intent.Amount != amount {
		return Receipt{}, fmt.Errorf("%w: key %s recorded %d, requested %d", bookingserrors.ErrIdempotencyConflict, key, intent.Amount, amount)
	}

	for {
		switch intent.Status {
		case model.PaymentCreated:
		case model.PaymentCharging:
			if intent.LeaseOwner != c.owner && c.clock.Now().Before(intent.LeaseExpiresAt) {
				if intent, err = c.awaitLease(ctx, key); err != nil {
					return Receipt{}, err
				}
				continue
			}
			c.logger.Warn("Taking over payment lease",
				"idempotency_key", key,
				"previous_owner", intent.LeaseOwner,
				"lease_expires_at", intent.LeaseExpiresAt,
			)
		default:
			return settled(intent)
		}

		leased, leaseErr := c.acquire(ctx, intent)
		if leaseErr != nil {
			if !errors.Is(leaseErr, bookingserrors.ErrStatusConflict) {
				return Receipt{}, leaseErr
			}
			if intent, err = c.intents.FindByKey(ctx, key); err != nil {
				return Receipt{}, err
			}
			continue
		}

		receipt, latest, callErr := c.call(ctx, leased, token)
		if latest == nil {
			return receipt, callErr
		}
		intent = latest
	}
}

// claim returns the intent for key, creating it in the created state if absent.
func (c *Coordinator) claim(ctx context.Context, key string, amount int64, currency string) (*model.PaymentIntent, error) {
	intent, err := c.intents.FindByKey(ctx, key)
	if err == nil {
		return intent, nil
	}
	if !errors.Is(err, bookingserrors.ErrIntentNotFound) {
		return nil, err
	}

	now := c.clock.Now()
	intent = &model.PaymentIntent{
		IdempotencyKey: key,
		Amount:         amount,
		Currency:       currency,
		Status:         model.PaymentCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.intents.Create(ctx, intent); err != nil {
		if errors.Is(err, bookingserrors.ErrDuplicate) {
			return c.intents.FindByKey(ctx, key)
		}
		return nil, err
	}
	return intent, nil
}

// acquire moves intent to charging under this coordinator's lease.
func (c *Coordinator) acquire(ctx context.Context, intent *model.PaymentIntent) (*model.PaymentIntent, error) {
	now := c.clock.Now()
	next := *intent
	next.Status = model.PaymentCharging
	next.LeaseOwner = c.owner
	next.LeaseExpiresAt = now.Add(c.leaseTTL)
	next.UpdatedAt = now
	if err := c.intents.Update(ctx, &next, intent.Status, intent.LeaseOwner); err != nil {
		return nil, err
	}
	return &next, nil
}

// awaitLease waits one poll interval and re-reads the intent.
func (c *Coordinator) awaitLease(ctx context.Context, key string) (*model.PaymentIntent, error) {
	timer := time.NewTimer(c.leasePoll)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return c.intents.FindByKey(ctx, key)
}

// call charges under a held lease and settles the intent. A non-nil intent
// in the result means the lease was lost and the key must be re-evaluated.
func (c *Coordinator) call(ctx context.Context, leased *model.PaymentIntent, token string) (Receipt, *model.PaymentIntent, error) {
	key := leased.IdempotencyKey

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	receiptID, callErr := c.processor.Charge(callCtx, key, leased.Amount, leased.Currency, token)
	cancel()

	next := *leased
	next.Attempts++
	next.UpdatedAt = c.clock.Now()
	next.LeaseOwner = ""
	next.LeaseExpiresAt = time.Time{}

	switch {
	case callErr == nil:
		next.Status = model.PaymentCharged
		next.ReceiptID = receiptID
	case IsDeclined(callErr):
		next.Status = model.PaymentFailed
		next.FailureReason = DeclineReason(callErr)
	default:
		next.Status = model.PaymentCreated
	}

	err := c.record(ctx, &next, model.PaymentCharging, c.owner)
	switch {
	case errors.Is(err, bookingserrors.ErrStatusConflict):
		// The lease expired and another coordinator took the key over.
		latest, findErr := c.intents.FindByKey(ctx, key)
		if callErr == nil {
			if findErr != nil {
				return Receipt{}, nil, &UnrecordedChargeError{Receipt: receiptOf(&next), Err: errors.Join(err, findErr)}
			}
			if latest.ReceiptID != receiptID {
				c.refundOrphan(ctx, receiptOf(&next), latest)
			}
		}
		if findErr != nil {
			return Receipt{}, nil, findErr
		}
		return Receipt{}, latest, nil
	case err != nil:
		if callErr == nil {
			c.logger.Error("Charge succeeded but intent was not recorded",
				"idempotency_key", key,
				"receipt_id", receiptID,
				"error", err,
			)
			return Receipt{}, nil, &UnrecordedChargeError{Receipt: receiptOf(&next), Err: err}
		}
		// No money moved; the lease lapses and a later attempt takes the key over.
		c.logger.Warn("Charge outcome not recorded", "idempotency_key", key, "outcome", next.Status, "error", err)
	}

	switch next.Status {
	case model.PaymentCharged:
		c.logger.Info("Payment charged", "idempotency_key", key, "receipt_id", receiptID, "amount", next.Amount, "attempts", next.Attempts)
		return receiptOf(&next), nil, nil
	case model.PaymentFailed:
		c.logger.Info("Payment declined", "idempotency_key", key, "reason", next.FailureReason)
		return Receipt{}, nil, &DeclinedError{Reason: next.FailureReason}
	default:
		c.logger.Warn("Payment processor unavailable", "idempotency_key", key, "attempts", next.Attempts, "error", callErr)
		return Receipt{}, nil, fmt.Errorf("%w: %w", bookingserrors.ErrProcessorUnavailable, callErr)
	}
}

// refundOrphan reverses a charge whose lease was taken over before it could
// be recorded, so the key keeps only the winner's charge.
func (c *Coordinator) refundOrphan(ctx context.Context, orphan Receipt, winner *model.PaymentIntent) {
	c.logger.Warn("Charge lost its payment lease, refunding",
		"idempotency_key", orphan.IdempotencyKey,
		"receipt_id", orphan.ReceiptID,
		"winner_status", winner.Status,
		"winner_receipt_id", winner.ReceiptID,
	)
	refundID, _, err := c.refundCall(ctx, orphan.ReceiptID)
	if err != nil {
		return
	}
	c.logger.Info("Orphaned charge refunded", "receipt_id", orphan.ReceiptID, "refund_id", refundID)
}

// record writes an intent outcome, retrying store failures. A status
// conflict is returned at once.
func (c *Coordinator) record(ctx context.Context, intent *model.PaymentIntent, from model.PaymentStatus, owner string) error {
	attempt := 0
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			attempt++
			err := c.intents.Update(ctx, intent, from, owner)
			if errors.Is(err, bookingserrors.ErrStatusConflict) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		},
		backoff.WithBackOff(c.newStoreBackOff()),
		backoff.WithMaxTries(c.storeMaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Payment intent write failed, retrying",
				"idempotency_key", intent.IdempotencyKey,
				"status", intent.Status,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	return err
}

// settled maps an intent that is past the created state to the outcome it recorded.
func settled(intent *model.PaymentIntent) (Receipt, error) {
	switch intent.Status {
	case model.PaymentCharged:
		return receiptOf(intent), nil
	case model.PaymentFailed:
		return Receipt{}, &DeclinedError{Reason: intent.FailureReason}
	case model.PaymentRefunded:
		return Receipt{}, fmt.Errorf("%w: key %s", bookingserrors.ErrAlreadyRefunded, intent.IdempotencyKey)
	default:
		return Receipt{}, fmt.Errorf("%w: intent %s is %s", bookingserrors.ErrInvalidTransition, intent.IdempotencyKey, intent.Status)
	}
}

func receiptOf(intent *model.PaymentIntent) Receipt {
	return Receipt{
		ReceiptID:      intent.ReceiptID,
		IdempotencyKey: intent.IdempotencyKey,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
	}
}

// Refund reverses the charge behind receiptID, retrying with backoff until
// the processor confirms or the retry budget runs out, in which case the
// error wraps ErrRefundFailed. Refunding twice returns the first refund.
func (c *Coordinator) Refund(ctx context.Context, receiptID string) (string, error) {
	res, err, _ := c.flights.Do("refund:"+receiptID, func() (any, error) {
		return c.refund(ctx, receiptID)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (c *Coordinator) refund(ctx context.Context, receiptID string) (string, error) {
	intent, err := c.intents.FindByReceipt(ctx, receiptID)
	if err != nil {
		return "", fmt.Errorf("failed to find charge for receipt %s: %w", receiptID, err)
	}
	switch intent.Status {
	case model.PaymentRefunded:
		return intent.RefundID, nil
	case model.PaymentCharged:
	default:
		return "", fmt.Errorf("%w: intent %s is %s", bookingserrors.ErrInvalidTransition, intent.IdempotencyKey, intent.Status)
	}

	refundID, attempts, err := c.refundCall(ctx, receiptID)
	if err != nil {
		return "", err
	}

	next := *intent
	next.Status = model.PaymentRefunded
	next.RefundID = refundID
	next.UpdatedAt = c.clock.Now()
	if err := c.record(ctx, &next, model.PaymentCharged, intent.LeaseOwner); err != nil {
		latest, findErr := c.intents.FindByReceipt(ctx, receiptID)
		if findErr == nil && latest.Status == model.PaymentRefunded {
			return latest.RefundID, nil
		}
		// The processor confirmed the refund; only the record lags.
		c.logger.Error("Refund confirmed but intent was not recorded", "receipt_id", receiptID, "refund_id", refundID, "error", err)
		return refundID, nil
	}

	c.logger.Info("Payment refunded", "receipt_id", receiptID, "refund_id", refundID, "attempts", attempts)
	return refundID, nil
}

// Compensate refunds a charge that never reached the intent record, such as
// the receipt of an *UnrecordedChargeError, and records the refund on the
// intent when the store allows.
func (c *Coordinator) Compensate(ctx context.Context, receipt Receipt) (string, error) {
	res, err, _ := c.flights.Do("refund:"+receipt.ReceiptID, func() (any, error) {
		return c.compensate(ctx, receipt)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (c *Coordinator) compensate(ctx context.Context, receipt Receipt) (string, error) {
	refundID, attempts, err := c.refundCall(ctx, receipt.ReceiptID)
	if err != nil {
		return "", err
	}
	c.logger.Info("Unrecorded charge refunded", "idempotency_key", receipt.IdempotencyKey, "receipt_id", receipt.ReceiptID, "refund_id", refundID, "attempts", attempts)

	intent, err := c.intents.FindByKey(ctx, receipt.IdempotencyKey)
	if err != nil {
		c.logger.Error("Refund confirmed but intent was not recorded", "receipt_id", receipt.ReceiptID, "refund_id", refundID, "error", err)
		return refundID, nil
	}
	switch {
	case intent.Status == model.PaymentCharging && intent.LeaseOwner == c.owner:
	case intent.Status == model.PaymentCharged && intent.ReceiptID == receipt.ReceiptID:
		// The charge write landed after all.
	default:
		c.logger.Warn("Intent moved on before the refund was recorded",
			"idempotency_key", receipt.IdempotencyKey,
			"status", intent.Status,
			"receipt_id", receipt.ReceiptID,
			"refund_id", refundID,
		)
		return refundID, nil
	}

	next := *intent
	next.Status = model.PaymentRefunded
	next.ReceiptID = receipt.ReceiptID
	next.RefundID = refundID
	next.LeaseOwner = ""
	next.LeaseExpiresAt = time.Time{}
	next.UpdatedAt = c.clock.Now()
	if intent.Status == model.PaymentCharging {
		next.Attempts++
	}
	if err := c.record(ctx, &next, intent.Status, intent.LeaseOwner); err != nil {
		c.logger.Error("Refund confirmed but intent was not recorded", "receipt_id", receipt.ReceiptID, "refund_id", refundID, "error", err)
	}
	return refundID, nil
}

// refundCall asks the processor to refund receiptID under the refund policy.
func (c *Coordinator) refundCall(ctx context.Context, receiptID string) (string, int, error) {
	attempt := 0
	refundID, err := backoff.Retry(ctx,
		func() (string, error) {
			attempt++
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			defer cancel()

			id, err := c.processor.Refund(callCtx, receiptID)
			if err != nil && IsDeclined(err) {
				return "", backoff.Permanent(err)
			}
			return id, err
		},
		backoff.WithBackOff(c.newRefundBackOff()),
		backoff.WithMaxTries(c.refundMaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Refund attempt failed, retrying",
				"receipt_id", receiptID,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		c.logger.Error("Refund not confirmed", "receipt_id", receiptID, "attempts", attempt, "error", err)
		return "", attempt, fmt.Errorf("%w: receipt %s: %w", bookingserrors.ErrRefundFailed, receiptID, err)
	}
	return refundID, attempt, nil
}
