package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/payment"
	"skyport/internal/bookings/safety"
	"skyport/internal/workflow"
	"skyport/pkg/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

type submission struct {
	req      model.BookingRequest
	traveler *model.Traveler
	course   *model.Course
	hold     *model.Hold
	key      string
	receipt  payment.Receipt
	outcome  Outcome
}

func (s *submission) fail(reason string, cause error) {
	s.outcome.State = StateFailed
	s.outcome.Reason = reason
	s.outcome.Cause = cause
}

func (s *submission) committed(record *model.BookingRecord) {
	s.outcome.State = StateCommitted
	s.outcome.Reason = ""
	s.outcome.BookingID = record.ID
	s.outcome.ReceiptID = record.ReceiptID
	s.outcome.Amount = record.Amount
	s.outcome.Currency = record.Currency
	s.outcome.Booking = record
}

func (o *Orchestrator) load(ctx context.Context, s *submission) error {
	traveler, err := o.travelers.FindByID(ctx, s.req.TravelerID)
	if err != nil {
		return err
	}
	course, err := o.courses.FindByID(ctx, s.req.CourseID)
	if err != nil {
		return err
	}
	quote, err := o.pricing.Quote(course, s.req.PaymentPlan)
	if err != nil {
		return err
	}

	s.traveler = traveler
	s.course = course
	s.outcome.Amount = quote.Total
	s.outcome.Currency = quote.Currency
	return nil
}

// checkSafety evaluates the traveler snapshot loaded by this attempt. The
// verdict is not re-checked later in the attempt.
func (o *Orchestrator) checkSafety(_ context.Context, s *submission) error {
	verdict := safety.Evaluate(s.traveler, s.course, o.clock.Now())
	switch verdict.Decision {
	case safety.NotEligible:
		s.outcome.State = StateIneligible
		s.outcome.Reason = verdict.Reason
		return workflow.ErrHalt
	case safety.TrainingRequired:
		s.outcome.State = StateTrainingRequired
		s.outcome.Reason = verdict.Reason
		s.outcome.Missing = verdict.Missing
		s.outcome.InProgress = verdict.InProgress
		return workflow.ErrHalt
	}
	s.outcome.State = StateSafetyChecked
	return nil
}

func (o *Orchestrator) acquireHold(ctx context.Context, s *submission) error {
	res, err := o.inventory.TryHold(ctx, s.course, s.req.TravelerID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrCapacityExceeded) {
			s.outcome.State = StateCapacityUnavailable
			s.outcome.Reason = ReasonCapacityExceeded
			return workflow.ErrHalt
		}
		return err
	}

	s.hold = res.Hold
	s.key = IdempotencyKey(s.req.TravelerID, s.req.CourseID, res.Hold.Sequence)
	s.outcome.HoldID = res.Hold.ID
	s.outcome.HoldSequence = res.Hold.Sequence
	s.outcome.IdempotencyKey = s.key
	s.outcome.Resumed = res.Existing

	if res.Existing && res.Hold.Status == model.HoldCommitted {
		record, err := o.bookings.FindByHold(ctx, res.Hold.ID)
		switch {
		case err == nil:
			s.committed(record)
			return workflow.ErrHalt
		case !errors.Is(err, bookingserrors.ErrNotFound):
			return err
		}
		// Committed without a record: finish the earlier attempt.
	}

	s.outcome.State = StateHoldAcquired
	return nil
}

// charge retries while the processor is unavailable. Any other failure ends
// the attempt and returns the seat.
func (o *Orchestrator) charge(ctx context.Context, s *submission) error {
	s.outcome.State = StateCharging

	attempt := 0
	receipt, err := backoff.Retry(ctx,
		func() (payment.Receipt, error) {
			attempt++
			r, err := o.payments.Charge(ctx, s.key, s.outcome.Amount, s.outcome.Currency, s.req.PaymentMethodToken)
			if err != nil && !errors.Is(err, bookingserrors.ErrProcessorUnavailable) {
				return payment.Receipt{}, backoff.Permanent(err)
			}
			return r, err
		},
		backoff.WithBackOff(o.newChargeBackOff()),
		backoff.WithMaxTries(o.chargeMaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.logger.Warn("Charge attempt failed, retrying",
				"hold_id", s.hold.ID,
				"idempotency_key", s.key,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}),
	)

	unrecorded, isUnrecorded := payment.AsUnrecorded(err)
	switch {
	case err == nil:
		s.receipt = receipt
		s.outcome.ReceiptID = receipt.ReceiptID
		return nil
	case isUnrecorded:
		// Money moved but the key does not show it; refund before giving up the seat.
		s.receipt = unrecorded.Receipt
		s.outcome.ReceiptID = unrecorded.Receipt.ReceiptID
		refundID, refundErr := o.payments.Compensate(ctx, unrecorded.Receipt)
		o.settleRefund(ctx, s, err, refundID, refundErr)
		return workflow.ErrHalt
	case payment.IsDeclined(err):
		o.release(ctx, s.hold)
		s.outcome.State = StateDeclined
		s.outcome.Reason = payment.DeclineReason(err)
		return workflow.ErrHalt
	case errors.Is(err, bookingserrors.ErrIdempotencyConflict):
		// The key belongs to an earlier attempt on this hold; leave the hold
		// for a resubmission that matches it.
		s.fail(ReasonIdempotencyConflict, err)
		return workflow.ErrHalt
	case errors.Is(err, bookingserrors.ErrProcessorUnavailable):
		o.release(ctx, s.hold)
		s.fail(ReasonProcessorUnavailable, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
		return workflow.ErrHalt
	default:
		o.release(ctx, s.hold)
		return fmt.Errorf("charge hold %s: %w", s.hold.ID, err)
	}
}

func (o *Orchestrator) commit(ctx context.Context, s *submission) error {
	if err := o.inventory.Commit(ctx, s.hold); err != nil {
		o.compensate(ctx, s, err)
		return workflow.ErrHalt
	}

	record := &model.BookingRecord{
		ID:             uuid.NewString(),
		Kind:           model.RecordBooking,
		TravelerID:     s.req.TravelerID,
		CourseID:       s.req.CourseID,
		HoldID:         s.hold.ID,
		HoldSequence:   s.hold.Sequence,
		IdempotencyKey: s.key,
		ReceiptID:      s.receipt.ReceiptID,
		Amount:         s.receipt.Amount,
		Currency:       s.receipt.Currency,
		CreatedAt:      o.clock.Now(),
	}
	if err := o.bookings.Create(ctx, record); err != nil {
		if !errors.Is(err, bookingserrors.ErrDuplicate) {
			// Seat and charge are both in place; resubmitting writes the record.
			s.fail(ReasonRecordPending, fmt.Errorf("persist booking for hold %s: %w", s.hold.ID, err))
			return workflow.ErrHalt
		}
		existing, findErr := o.bookings.FindByHold(ctx, s.hold.ID)
		if findErr != nil {
			return findErr
		}
		record = existing
	}

	s.committed(record)
	return workflow.ErrHalt
}

// compensate refunds a charge whose hold could not be committed.
func (o *Orchestrator) compensate(ctx context.Context, s *submission, commitErr error) {
	refundID, err := o.payments.Refund(ctx, s.receipt.ReceiptID)
	o.settleRefund(ctx, s, commitErr, refundID, err)
}

// settleRefund fails the attempt after a compensating refund; the reason
// records whether the refund landed. An unconfirmed refund keeps the hold.
func (o *Orchestrator) settleRefund(ctx context.Context, s *submission, cause error, refundID string, refundErr error) {
	if refundErr != nil {
		s.fail(ReasonChargedRefundPending, errors.Join(cause, refundErr))
		return
	}

	s.outcome.RefundID = refundID
	s.fail(ReasonChargedNotBooked, cause)
	if !errors.Is(cause, bookingserrors.ErrHoldExpired) {
		o.release(ctx, s.hold)
	}
}
