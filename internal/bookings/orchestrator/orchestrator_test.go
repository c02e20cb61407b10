package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	bookingsconfig "skyport/internal/bookings/config"
	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/inventory"
	"skyport/internal/bookings/payment"
	"skyport/internal/bookings/payment/paymenttest"
	"skyport/internal/bookings/repository"
	"skyport/internal/bookings/repository/memory"
	"skyport/pkg/clock"
	"skyport/pkg/logger"
	"skyport/pkg/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)

var errGatewayDown = errors.New("503 service unavailable")

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []model.BookingEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.BookingEventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store  *repository.Store
	clock  *clock.Manual
	ledger *inventory.Ledger
	proc   *paymenttest.Processor
	orch   *Orchestrator
	pub    *recordingPublisher
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithIntents(t, nil)
}

// newFixtureWithIntents lets wrap stand between the coordinator and the
// intent store.
func newFixtureWithIntents(t *testing.T, wrap func(repository.PaymentIntentRepository) repository.PaymentIntentRepository) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManual(epoch)
	log := logger.Discard()
	proc := paymenttest.New()
	ledger := inventory.NewLedger(store, clk, log)
	intents := store.Intents
	if wrap != nil {
		intents = wrap(store.Intents)
	}
	coord := payment.NewCoordinator(intents, proc, clk, log,
		payment.WithRefundPolicy(zeroBackOff, 2),
		payment.WithStorePolicy(zeroBackOff, 2),
	)
	pub := &recordingPublisher{}

	return &fixture{
		store:  store,
		clock:  clk,
		ledger: ledger,
		proc:   proc,
		pub:    pub,
		orch: New(store, ledger, coord, clk, log,
			WithChargePolicy(zeroBackOff, 3),
			WithPublisher(pub),
		),
	}
}

func (f *fixture) addTraveler(t *testing.T, id string, clearance model.Clearance, completed ...string) {
	t.Helper()
	require.NoError(t, f.store.Travelers.Save(context.Background(), &model.Traveler{
		ID:                id,
		Name:              "Traveler " + id,
		Clearance:         clearance,
		CompletedTraining: completed,
	}, 0))
}

func (f *fixture) addCourse(t *testing.T, id string, capacity int, prerequisites ...string) *model.Course {
	t.Helper()
	c := &model.Course{
		ID:            id,
		Name:          "Course " + id,
		DepartureAt:   epoch.Add(30 * 24 * time.Hour),
		Capacity:      capacity,
		Prerequisites: prerequisites,
		Price:         100000,
		Currency:      "USD",
	}
	require.NoError(t, f.store.Courses.Upsert(context.Background(), c))
	return c
}

func (f *fixture) available(t *testing.T, courseID string) int {
	t.Helper()
	n, err := f.orch.Availability(context.Background(), courseID)
	require.NoError(t, err)
	return n
}

func cleared() model.Clearance {
	return model.Clearance{Status: model.ClearanceCleared, ExpiresAt: epoch.Add(90 * 24 * time.Hour)}
}

func request(travelerID, courseID string) model.BookingRequest {
	return model.BookingRequest{TravelerID: travelerID, CourseID: courseID, PaymentMethodToken: "tok_visa"}
}

func TestSubmitBooking_Committed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, out.State)
	assert.Empty(t, out.Reason)
	require.NotNil(t, out.Booking)
	assert.Equal(t, out.BookingID, out.Booking.ID)
	assert.Equal(t, int64(104500), out.Amount)
	assert.Equal(t, IdempotencyKey("t-1", "orbit-1", out.HoldSequence), out.IdempotencyKey)

	stored, err := f.orch.GetBooking(ctx, out.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordBooking, stored.Kind)
	assert.Equal(t, out.ReceiptID, stored.ReceiptID)
	assert.Equal(t, out.HoldID, stored.HoldID)

	hold, err := f.store.Holds.FindByID(ctx, out.HoldID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldCommitted, hold.Status)
	assert.Equal(t, 1, f.available(t, "orbit-1"))
	assert.Equal(t, []model.BookingEventType{model.EventBookingCommitted}, f.pub.types())
}

func TestSubmitBooking_ExpiredClearanceIsIneligible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", model.Clearance{Status: model.ClearanceCleared, ExpiresAt: epoch.Add(-time.Hour)})
	f.addCourse(t, "orbit-1", 2)

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateIneligible, out.State)
	assert.Equal(t, "clearance_expired", out.Reason)
	assert.Empty(t, out.HoldID)

	holds, err := f.store.Holds.ListOccupying(ctx, "orbit-1")
	require.NoError(t, err)
	assert.Empty(t, holds)
	assert.Zero(t, f.proc.ChargeCalls())
	assert.Equal(t, []model.BookingEventType{model.EventBookingRejected}, f.pub.types())
}

func TestSubmitBooking_TrainingRequired(t *testing.T) {
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared(), "zero-g")
	f.addCourse(t, "lunar-1", 2, "zero-g", "eva", "centrifuge")

	out, err := f.orch.SubmitBooking(context.Background(), request("t-1", "lunar-1"))
	require.NoError(t, err)

	assert.Equal(t, StateTrainingRequired, out.State)
	assert.Equal(t, []string{"centrifuge", "eva"}, out.Missing)
	assert.Equal(t, 2, f.available(t, "lunar-1"))
}

func TestSubmitBooking_UnknownTraveler(t *testing.T) {
	f := newFixture(t)
	f.addCourse(t, "orbit-1", 2)

	_, err := f.orch.SubmitBooking(context.Background(), request("ghost", "orbit-1"))
	assert.ErrorIs(t, err, bookingserrors.ErrTravelerNotFound)
	assert.Empty(t, f.pub.types())
}

func TestSubmitBooking_LastSeatContention(t *testing.T) {
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addTraveler(t, "t-2", cleared())
	f.addCourse(t, "orbit-1", 1)
	f.proc.Delay = 10 * time.Millisecond

	outcomes := make([]Outcome, 2)
	var wg sync.WaitGroup
	for i, traveler := range []string{"t-1", "t-2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.orch.SubmitBooking(context.Background(), request(traveler, "orbit-1"))
			if err != nil {
				t.Errorf("submit %s: %v", traveler, err)
			}
			outcomes[i] = out
		}()
	}
	wg.Wait()

	states := map[State]int{}
	for _, out := range outcomes {
		states[out.State]++
	}
	assert.Equal(t, map[State]int{StateCommitted: 1, StateCapacityUnavailable: 1}, states)
	assert.Equal(t, 1, f.proc.TotalSuccessfulCharges())
	assert.Zero(t, f.available(t, "orbit-1"))
}

func TestSubmitBooking_CapacityNeverExceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addCourse(t, "orbit-1", 3)

	const travelers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	states := map[State]int{}
	for i := range travelers {
		id := fmt.Sprintf("t-%d", i)
		f.addTraveler(t, id, cleared())
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.orch.SubmitBooking(ctx, request(id, "orbit-1"))
			if err != nil {
				t.Errorf("submit %s: %v", id, err)
				return
			}
			mu.Lock()
			states[out.State]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, states[StateCommitted])
	assert.Equal(t, travelers-3, states[StateCapacityUnavailable])

	holds, err := f.store.Holds.ListOccupying(ctx, "orbit-1")
	require.NoError(t, err)
	assert.Len(t, holds, 3)
}

func TestSubmitBooking_ProcessorRecoversWithinBudget(t *testing.T) {
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	f.proc.ChargeFunc = func(attempt int, _ string) error {
		if attempt <= 2 {
			return errGatewayDown
		}
		return nil
	}

	out, err := f.orch.SubmitBooking(context.Background(), request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, out.State)
	assert.Equal(t, 3, f.proc.ChargeCalls())
	assert.Equal(t, 1, f.proc.SuccessfulCharges(out.IdempotencyKey))
	assert.Equal(t, 1, f.proc.TotalSuccessfulCharges())
}

func TestSubmitBooking_ProcessorUnavailableExhausted(t *testing.T) {
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	f.proc.ChargeFunc = func(int, string) error { return errGatewayDown }

	out, err := f.orch.SubmitBooking(context.Background(), request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonProcessorUnavailable, out.Reason)
	assert.ErrorIs(t, out.Cause, bookingserrors.ErrProcessorUnavailable)
	assert.NotEmpty(t, out.HoldID)
	assert.Equal(t, 4, f.proc.ChargeCalls())
	assert.Equal(t, 2, f.available(t, "orbit-1"))
	assert.Equal(t, []model.BookingEventType{model.EventBookingFailed}, f.pub.types())
}

func TestSubmitBooking_Declined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	f.proc.ChargeFunc = func(int, string) error { return payment.Declined("insufficient_funds") }

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateDeclined, out.State)
	assert.Equal(t, "insufficient_funds", out.Reason)
	assert.Equal(t, 1, f.proc.ChargeCalls())

	hold, err := f.store.Holds.FindByID(ctx, out.HoldID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldReleased, hold.Status)
	assert.Equal(t, []model.BookingEventType{model.EventBookingDeclined}, f.pub.types())
}

func TestSubmitBooking_HoldReapedDuringCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	f.proc.ChargeFunc = func(int, string) error {
		f.clock.Advance(inventory.DefaultHoldTTL + time.Minute)
		reaped, err := f.ledger.ReapExpired(context.Background())
		if err == nil && reaped != 1 {
			err = fmt.Errorf("reaped %d holds", reaped)
		}
		return err
	}

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonChargedNotBooked, out.Reason)
	assert.ErrorIs(t, out.Cause, bookingserrors.ErrHoldExpired)
	require.NotEmpty(t, out.ReceiptID)
	assert.NotEmpty(t, out.RefundID)
	assert.True(t, f.proc.Refunded(out.ReceiptID))

	intent, err := f.store.Intents.FindByKey(ctx, out.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, intent.Status)

	_, err = f.store.Bookings.FindByHold(ctx, out.HoldID)
	assert.ErrorIs(t, err, bookingserrors.ErrNotFound)
	assert.Equal(t, 2, f.available(t, "orbit-1"))
}

func TestSubmitBooking_HoldReapedAndRefundFails(t *testing.T) {
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	f.proc.ChargeFunc = func(int, string) error {
		f.clock.Advance(inventory.DefaultHoldTTL + time.Minute)
		_, err := f.ledger.ReapExpired(context.Background())
		return err
	}
	f.proc.RefundFunc = func(int, string) error { return errGatewayDown }

	out, err := f.orch.SubmitBooking(context.Background(), request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonChargedRefundPending, out.Reason)
	assert.ErrorIs(t, out.Cause, bookingserrors.ErrRefundFailed)
	assert.NotEmpty(t, out.ReceiptID)
	assert.NotEmpty(t, out.HoldID)
	assert.Equal(t, 3, f.proc.RefundCalls())
}

func TestSubmitBooking_DuplicateRequestsShareOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 5)
	f.proc.Delay = 20 * time.Millisecond

	outcomes := make([]Outcome, 2)
	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
			if err != nil {
				t.Errorf("submit: %v", err)
			}
			outcomes[i] = out
		}()
	}
	wg.Wait()

	first, second := outcomes[0], outcomes[1]
	assert.Equal(t, StateCommitted, first.State)
	assert.Equal(t, StateCommitted, second.State)
	assert.Equal(t, first.HoldID, second.HoldID)
	assert.Equal(t, first.BookingID, second.BookingID)
	assert.True(t, first.Resumed != second.Resumed)
	assert.Equal(t, 1, f.proc.TotalSuccessfulCharges())
	assert.Equal(t, 4, f.available(t, "orbit-1"))
}

func TestSubmitBooking_ResumesActiveHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	course := f.addCourse(t, "orbit-1", 2)

	earlier, err := f.ledger.TryHold(ctx, course, "t-1")
	require.NoError(t, err)

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, out.State)
	assert.True(t, out.Resumed)
	assert.Equal(t, earlier.Hold.ID, out.HoldID)
	assert.Equal(t, 1, f.available(t, "orbit-1"))
}

func TestSubmitBooking_IdempotencyConflictKeepsHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	course := f.addCourse(t, "orbit-1", 2)

	earlier, err := f.ledger.TryHold(ctx, course, "t-1")
	require.NoError(t, err)
	key := IdempotencyKey("t-1", "orbit-1", earlier.Hold.Sequence)
	coord := payment.NewCoordinator(f.store.Intents, f.proc, f.clock, logger.Discard())
	_, err = coord.Charge(ctx, key, 1, "USD", "tok_visa")
	require.NoError(t, err)

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonIdempotencyConflict, out.Reason)
	hold, err := f.store.Holds.FindByID(ctx, earlier.Hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, hold.Status)
}

var errWriteTimeout = errors.New("write concern timeout")

// flakyIntents fails writes that record a successful charge while
// failures remain.
type flakyIntents struct {
	repository.PaymentIntentRepository

	mu       sync.Mutex
	failures int
}

func (r *flakyIntents) Update(ctx context.Context, intent *model.PaymentIntent, from model.PaymentStatus, owner string) error {
	r.mu.Lock()
	fail := intent.Status == model.PaymentCharged && r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()

	if fail {
		return errWriteTimeout
	}
	return r.PaymentIntentRepository.Update(ctx, intent, from, owner)
}

func withFlakyIntents(failures int) func(repository.PaymentIntentRepository) repository.PaymentIntentRepository {
	return func(inner repository.PaymentIntentRepository) repository.PaymentIntentRepository {
		return &flakyIntents{PaymentIntentRepository: inner, failures: failures}
	}
}

func TestSubmitBooking_ChargeRecordRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithIntents(t, withFlakyIntents(1))
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 1)

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, out.State)
	assert.Equal(t, 1, f.proc.SuccessfulCharges(out.IdempotencyKey))
	assert.Zero(t, f.proc.RefundCalls())

	intent, err := f.store.Intents.FindByKey(ctx, out.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCharged, intent.Status)
	assert.Equal(t, out.ReceiptID, intent.ReceiptID)
}

func TestSubmitBooking_UnrecordedChargeIsRefunded(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithIntents(t, withFlakyIntents(100))
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 1)

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonChargedNotBooked, out.Reason)
	require.NotEmpty(t, out.ReceiptID)
	assert.NotEmpty(t, out.RefundID)
	assert.Equal(t, 1, f.proc.SuccessfulCharges(out.IdempotencyKey))
	assert.True(t, f.proc.Refunded(out.ReceiptID))
	assert.Equal(t, 1, f.available(t, "orbit-1"))

	intent, err := f.store.Intents.FindByKey(ctx, out.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, intent.Status)
	assert.Equal(t, out.ReceiptID, intent.ReceiptID)
	assert.Equal(t, out.RefundID, intent.RefundID)
	assert.Empty(t, intent.LeaseOwner)
}

func TestSubmitBooking_UnrecordedChargeRefundFailsKeepsSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithIntents(t, withFlakyIntents(100))
	f.proc.RefundFunc = func(int, string) error { return errGatewayDown }
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 1)

	out, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonChargedRefundPending, out.Reason)
	assert.NotEmpty(t, out.ReceiptID)
	assert.Empty(t, out.RefundID)
	assert.Equal(t, 1, f.proc.SuccessfulCharges(out.IdempotencyKey))

	hold, err := f.store.Holds.FindByID(ctx, out.HoldID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, hold.Status)
	assert.Zero(t, f.available(t, "orbit-1"))
}

func TestCancelBooking_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	before := f.available(t, "orbit-1")

	booked, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)
	require.Equal(t, StateCommitted, booked.State)
	assert.Equal(t, before-1, f.available(t, "orbit-1"))

	out, err := f.orch.CancelBooking(ctx, booked.BookingID)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, out.Result)
	require.NotNil(t, out.Cancellation)
	assert.Equal(t, model.RecordCancellation, out.Cancellation.Kind)
	assert.Equal(t, booked.BookingID, out.Cancellation.CancelsBookingID)
	assert.NotEmpty(t, out.RefundID)

	assert.Equal(t, before, f.available(t, "orbit-1"))
	intent, err := f.store.Intents.FindByKey(ctx, booked.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, intent.Status)
	assert.Equal(t, 1, f.proc.RefundCalls())

	original, err := f.orch.GetBooking(ctx, booked.BookingID)
	require.NoError(t, err)
	assert.Equal(t, booked.Booking, original)

	again, err := f.orch.CancelBooking(ctx, booked.BookingID)
	require.NoError(t, err)
	assert.Equal(t, AlreadyCancelled, again.Result)
	assert.Equal(t, out.RefundID, again.RefundID)
	assert.Equal(t, 1, f.proc.RefundCalls())

	assert.Equal(t, []model.BookingEventType{model.EventBookingCommitted, model.EventBookingCancelled}, f.pub.types())
}

func TestCancelBooking_ConcurrentCancelsRefundOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	booked, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)

	results := make([]CancelResult, 4)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.orch.CancelBooking(ctx, booked.BookingID)
			if err != nil {
				t.Errorf("cancel: %v", err)
			}
			results[i] = out.Result
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []CancelResult{Cancelled, AlreadyCancelled, AlreadyCancelled, AlreadyCancelled}, results)
	assert.Equal(t, 1, f.proc.RefundCalls())
}

func TestCancelBooking_RefundFailedKeepsSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)
	booked, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)
	f.proc.RefundFunc = func(int, string) error { return errGatewayDown }

	out, err := f.orch.CancelBooking(ctx, booked.BookingID)
	require.NoError(t, err)

	assert.Equal(t, RefundFailed, out.Result)
	assert.ErrorIs(t, out.Cause, bookingserrors.ErrRefundFailed)
	assert.Equal(t, 1, f.available(t, "orbit-1"))

	_, err = f.store.Bookings.FindCancellation(ctx, booked.BookingID)
	assert.ErrorIs(t, err, bookingserrors.ErrNotFound)

	f.proc.RefundFunc = nil
	out, err = f.orch.CancelBooking(ctx, booked.BookingID)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, out.Result)
	assert.Equal(t, 2, f.available(t, "orbit-1"))
}

func TestCancelBooking_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTraveler(t, "t-1", cleared())
	f.addCourse(t, "orbit-1", 2)

	_, err := f.orch.CancelBooking(ctx, "missing")
	assert.ErrorIs(t, err, bookingserrors.ErrNotFound)

	booked, err := f.orch.SubmitBooking(ctx, request("t-1", "orbit-1"))
	require.NoError(t, err)
	cancelled, err := f.orch.CancelBooking(ctx, booked.BookingID)
	require.NoError(t, err)

	_, err = f.orch.CancelBooking(ctx, cancelled.Cancellation.ID)
	assert.ErrorIs(t, err, bookingserrors.ErrNotABooking)
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("t-1", "orbit-1", 7)
	assert.Equal(t, a, IdempotencyKey("t-1", "orbit-1", 7))
	assert.NotEqual(t, a, IdempotencyKey("t-1", "orbit-1", 8))
	assert.NotEqual(t, a, IdempotencyKey("t-1", "orbit-2", 7))
	assert.Len(t, a, 64)
}

func TestNew_DefaultChargeBackOffMatchesConfig(t *testing.T) {
	o := New(memory.NewStore(), nil, nil, clock.NewManual(epoch), logger.Discard())
	b, ok := o.newChargeBackOff().(*backoff.ExponentialBackOff)
	require.True(t, ok)

	def := bookingsconfig.Default()
	assert.Equal(t, def.ChargeBaseDelay, b.InitialInterval)
	assert.Equal(t, def.ChargeMaxDelay, b.MaxInterval)
	assert.Equal(t, def.ChargeMultiplier, b.Multiplier)
	assert.Equal(t, def.ChargeJitter, b.RandomizationFactor)
	assert.Equal(t, def.ChargeMaxRetries, o.chargeMaxRetries)
}
