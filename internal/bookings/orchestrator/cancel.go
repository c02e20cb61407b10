package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/workflow"
	"skyport/pkg/model"

	"github.com/google/uuid"
)

type cancellation struct {
	bookingID string
	booking   *model.BookingRecord
	outcome   CancelOutcome
}

func (o *Orchestrator) loadBooking(ctx context.Context, c *cancellation) error {
	record, err := o.bookings.FindByID(ctx, c.bookingID)
	if err != nil {
		return err
	}
	if record.Kind != model.RecordBooking {
		return fmt.Errorf("%w: %s is a %s record", bookingserrors.ErrNotABooking, c.bookingID, record.Kind)
	}
	c.booking = record

	existing, err := o.bookings.FindCancellation(ctx, c.bookingID)
	switch {
	case err == nil:
		c.alreadyCancelled(existing)
		return workflow.ErrHalt
	case errors.Is(err, bookingserrors.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (o *Orchestrator) refund(ctx context.Context, c *cancellation) error {
	refundID, err := o.payments.Refund(ctx, c.booking.ReceiptID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrRefundFailed) {
			c.outcome.Result = RefundFailed
			c.outcome.Cause = err
			return workflow.ErrHalt
		}
		return err
	}
	c.outcome.RefundID = refundID
	return nil
}

func (o *Orchestrator) releaseBookedHold(ctx context.Context, c *cancellation) error {
	return o.inventory.Release(ctx, &model.Hold{ID: c.booking.HoldID, CourseID: c.booking.CourseID})
}

func (o *Orchestrator) recordCancellation(ctx context.Context, c *cancellation) error {
	b := c.booking
	record := &model.BookingRecord{
		ID:               uuid.NewString(),
		Kind:             model.RecordCancellation,
		TravelerID:       b.TravelerID,
		CourseID:         b.CourseID,
		HoldID:           b.HoldID,
		HoldSequence:     b.HoldSequence,
		IdempotencyKey:   b.IdempotencyKey,
		ReceiptID:        b.ReceiptID,
		RefundID:         c.outcome.RefundID,
		Amount:           b.Amount,
		Currency:         b.Currency,
		CancelsBookingID: b.ID,
		CreatedAt:        o.clock.Now(),
	}
	if err := o.bookings.Create(ctx, record); err != nil {
		if !errors.Is(err, bookingserrors.ErrDuplicate) {
			return err
		}
		existing, findErr := o.bookings.FindCancellation(ctx, b.ID)
		if findErr != nil {
			return findErr
		}
		c.alreadyCancelled(existing)
		return nil
	}

	c.outcome.Result = Cancelled
	c.outcome.Cancellation = record
	return nil
}

func (c *cancellation) alreadyCancelled(existing *model.BookingRecord) {
	c.outcome.Result = AlreadyCancelled
	c.outcome.RefundID = existing.RefundID
	c.outcome.Cancellation = existing
}

func (o *Orchestrator) logCancel(c *cancellation) {
	attrs := []any{"booking_id", c.bookingID, "result", c.outcome.Result, "refund_id", c.outcome.RefundID}
	if c.outcome.Result == RefundFailed {
		o.logger.Error("Cancellation refund not confirmed, seat kept", append(attrs, "error", c.outcome.Cause)...)
		return
	}
	o.logger.Info("Booking cancellation handled", attrs...)
}

func cancelEvent(c *cancellation, at time.Time) model.BookingEvent {
	b := c.booking
	return model.BookingEvent{
		ID:           uuid.NewString(),
		Type:         model.EventBookingCancelled,
		State:        string(c.outcome.Result),
		BookingID:    b.ID,
		TravelerID:   b.TravelerID,
		CourseID:     b.CourseID,
		HoldID:       b.HoldID,
		HoldSequence: b.HoldSequence,
		ReceiptID:    b.ReceiptID,
		RefundID:     c.outcome.RefundID,
		Amount:       b.Amount,
		Currency:     b.Currency,
		OccurredAt:   at,
	}
}
