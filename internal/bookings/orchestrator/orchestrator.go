// Package orchestrator sequences eligibility, seat holds and payment into a
// booking, and reverses them on cancellation.
package orchestrator

import (
	"context"
	"errors"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/inventory"
	"skyport/internal/bookings/payment"
	"skyport/internal/bookings/pricing"
	"skyport/internal/bookings/repository"
	"skyport/internal/workflow"
	"skyport/pkg/clock"
	"skyport/pkg/keylock"
	"skyport/pkg/logger"
	"skyport/pkg/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const (
	DefaultChargeMaxRetries = 3

	submitFlowName = "submit_booking"
	cancelFlowName = "cancel_booking"
)

// Inventory is the seat ledger the orchestrator holds against.
type Inventory interface {
	TryHold(ctx context.Context, course *model.Course, travelerID string) (inventory.HoldResult, error)
	Commit(ctx context.Context, hold *model.Hold) error
	Release(ctx context.Context, hold *model.Hold) error
	Available(ctx context.Context, courseID string) (int, error)
}

// Payments charges and refunds under idempotency keys.
type Payments interface {
	Charge(ctx context.Context, key string, amount int64, currency, token string) (payment.Receipt, error)
	Refund(ctx context.Context, receiptID string) (string, error)
	// Compensate refunds a charge that was never recorded against its key.
	Compensate(ctx context.Context, receipt payment.Receipt) (string, error)
}

type Orchestrator struct {
	travelers repository.TravelerRepository
	courses   repository.CourseRepository
	bookings  repository.BookingRepository
	inventory Inventory
	payments  Payments
	pricing   *pricing.Calculator
	publisher Publisher
	locks     *keylock.Locker
	clock     clock.Clock
	logger    *logger.Logger

	newChargeBackOff func() backoff.BackOff
	chargeMaxRetries uint

	submitFlow *workflow.Flow[submission]
	cancelFlow *workflow.Flow[cancellation]
}

type Option func(*Orchestrator)

// WithChargePolicy sets the backoff between charge attempts that found the
// processor unavailable, and how many retries follow the first attempt.
func WithChargePolicy(newBackOff func() backoff.BackOff, maxRetries uint) Option {
	return func(o *Orchestrator) {
		o.newChargeBackOff = newBackOff
		o.chargeMaxRetries = maxRetries
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

func WithPricing(c *pricing.Calculator) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.pricing = c
		}
	}
}

func New(store *repository.Store, inv Inventory, payments Payments, clk clock.Clock, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		travelers: store.Travelers,
		courses:   store.Courses,
		bookings:  store.Bookings,
		inventory: inv,
		payments:  payments,
		pricing:   pricing.NewCalculator(pricing.DefaultTaxBasisPoints, pricing.DefaultFullPlanDiscount),
		publisher: noopPublisher{},
		locks:     keylock.New(),
		clock:     clk,
		logger:    log,
		newChargeBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.Multiplier = 2
			b.RandomizationFactor = 0.2
			return b
		},
		chargeMaxRetries: DefaultChargeMaxRetries,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.submitFlow = workflow.NewFlow(submitFlowName,
		workflow.NewStep("load", o.load),
		workflow.NewStep("safety_check", o.checkSafety),
		workflow.NewStep("acquire_hold", o.acquireHold),
		workflow.NewStep("charge", o.charge),
		workflow.NewStep("commit", o.commit),
	).Observe(o.traceStep)

	o.cancelFlow = workflow.NewFlow(cancelFlowName,
		workflow.NewStep("load_booking", o.loadBooking),
		workflow.NewStep("refund", o.refund),
		workflow.NewStep("release_hold", o.releaseBookedHold),
		workflow.NewStep("record_cancellation", o.recordCancellation),
	).Observe(o.traceStep)

	return o
}

// SubmitBooking runs one booking attempt to a terminal state. Attempts for
// the same traveler and course are serialized, so a repeated request observes
// the first one's hold and booking.
//
// ctx bounds only the wait for a concurrent attempt on the same pair. Once an
// attempt starts it runs to a terminal state, so a charge is never left
// without either a booking or a refund. Unknown travelers and courses are
// returned as errors; every other failure is a StateFailed outcome.
func (o *Orchestrator) SubmitBooking(ctx context.Context, req model.BookingRequest) (Outcome, error) {
	unlock, err := o.locks.Lock(ctx, "pair:"+req.TravelerID+"|"+req.CourseID)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	s := &submission{
		req: req,
		outcome: Outcome{
			State:      StateReceived,
			TravelerID: req.TravelerID,
			CourseID:   req.CourseID,
		},
	}

	if err := o.submitFlow.Run(context.WithoutCancel(ctx), s); err != nil {
		if errors.Is(err, bookingserrors.ErrTravelerNotFound) || errors.Is(err, bookingserrors.ErrCourseNotFound) {
			return Outcome{}, err
		}
		s.fail(ReasonInternal, err)
	}

	o.finish(ctx, &s.outcome)
	return s.outcome, nil
}

// CancelBooking refunds a committed booking, then releases its seat, then
// records the cancellation. The seat is never released before the refund is
// confirmed. Cancelling twice returns AlreadyCancelled.
func (o *Orchestrator) CancelBooking(ctx context.Context, bookingID string) (CancelOutcome, error) {
	unlock, err := o.locks.Lock(ctx, "booking:"+bookingID)
	if err != nil {
		return CancelOutcome{}, err
	}
	defer unlock()

	c := &cancellation{
		bookingID: bookingID,
		outcome:   CancelOutcome{BookingID: bookingID},
	}
	if err := o.cancelFlow.Run(context.WithoutCancel(ctx), c); err != nil {
		o.logger.Error("Cancellation failed", "booking_id", bookingID, "error", err)
		return CancelOutcome{}, err
	}

	if c.outcome.Cause != nil {
		c.outcome.Detail = c.outcome.Cause.Error()
	}
	o.logCancel(c)
	if c.outcome.Result == Cancelled {
		o.publish(ctx, cancelEvent(c, o.clock.Now()))
	}
	return c.outcome, nil
}

func (o *Orchestrator) GetBooking(ctx context.Context, id string) (*model.BookingRecord, error) {
	return o.bookings.FindByID(ctx, id)
}

func (o *Orchestrator) Availability(ctx context.Context, courseID string) (int, error) {
	return o.inventory.Available(ctx, courseID)
}

func (o *Orchestrator) finish(ctx context.Context, out *Outcome) {
	if out.Cause != nil {
		out.Detail = out.Cause.Error()
	}

	attrs := []any{
		"state", out.State,
		"reason", out.Reason,
		"traveler_id", out.TravelerID,
		"course_id", out.CourseID,
		"hold_id", out.HoldID,
		"receipt_id", out.ReceiptID,
	}
	switch out.State {
	case StateCommitted:
		o.logger.Info("Booking committed", append(attrs, "booking_id", out.BookingID, "resumed", out.Resumed)...)
	case StateFailed:
		o.logger.Error("Booking failed", append(attrs, "refund_id", out.RefundID, "error", out.Cause)...)
	default:
		o.logger.Info("Booking not completed", attrs...)
	}

	o.publish(ctx, model.BookingEvent{
		ID:           uuid.NewString(),
		Type:         eventType(out.State),
		State:        string(out.State),
		Reason:       out.Reason,
		BookingID:    out.BookingID,
		TravelerID:   out.TravelerID,
		CourseID:     out.CourseID,
		HoldID:       out.HoldID,
		HoldSequence: out.HoldSequence,
		ReceiptID:    out.ReceiptID,
		RefundID:     out.RefundID,
		Amount:       out.Amount,
		Currency:     out.Currency,
		OccurredAt:   o.clock.Now(),
	})
}

func (o *Orchestrator) publish(ctx context.Context, ev model.BookingEvent) {
	if err := o.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn("Failed to publish booking event",
			"event_type", ev.Type,
			"booking_id", ev.BookingID,
			"hold_id", ev.HoldID,
			"error", err,
		)
	}
}

func (o *Orchestrator) traceStep(_ context.Context, flow, step string) {
	o.logger.Debug("Workflow step", "flow", flow, "step", step)
}

// release returns a hold's seat after a failed attempt. A failure here only
// delays the seat until the reaper expires the hold.
func (o *Orchestrator) release(ctx context.Context, hold *model.Hold) {
	if err := o.inventory.Release(ctx, hold); err != nil {
		o.logger.Warn("Failed to release hold", "hold_id", hold.ID, "course_id", hold.CourseID, "error", err)
	}
}
