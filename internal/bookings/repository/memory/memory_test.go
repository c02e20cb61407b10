package memory

import (
	"context"
	"testing"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolds_PairUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	first := &model.Hold{ID: "h-1", TravelerID: "t-1", CourseID: "c-1", Status: model.HoldActive, ExpiresAt: now}
	require.NoError(t, store.Holds.Insert(ctx, first))

	second := &model.Hold{ID: "h-2", TravelerID: "t-1", CourseID: "c-1", Status: model.HoldActive, ExpiresAt: now}
	assert.ErrorIs(t, store.Holds.Insert(ctx, second), bookingserrors.ErrDuplicate)

	require.NoError(t, store.Holds.UpdateStatus(ctx, "h-1", model.HoldActive, model.HoldReleased, now))
	assert.NoError(t, store.Holds.Insert(ctx, second), "released hold frees the pair")
}

func TestHolds_UpdateStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Holds.Insert(ctx, &model.Hold{ID: "h-1", TravelerID: "t-1", CourseID: "c-1", Status: model.HoldActive}))
	require.NoError(t, store.Holds.UpdateStatus(ctx, "h-1", model.HoldActive, model.HoldCommitted, now))

	err := store.Holds.UpdateStatus(ctx, "h-1", model.HoldActive, model.HoldExpired, now)
	assert.ErrorIs(t, err, bookingserrors.ErrStatusConflict)

	err = store.Holds.UpdateStatus(ctx, "missing", model.HoldActive, model.HoldExpired, now)
	assert.ErrorIs(t, err, bookingserrors.ErrHoldNotFound)

	hold, err := store.Holds.FindByID(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, model.HoldCommitted, hold.Status)
}

func TestTravelers_SupersedeKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	traveler := &model.Traveler{ID: "t-1", Name: "Ada", Clearance: model.Clearance{Status: model.ClearanceNone}}
	require.NoError(t, store.Travelers.Save(ctx, traveler, 0))
	assert.Equal(t, int64(1), traveler.Revision)

	next := traveler.Clone()
	next.Clearance.Status = model.ClearanceCleared
	require.NoError(t, store.Travelers.Save(ctx, next, 1))

	stale := traveler.Clone()
	assert.ErrorIs(t, store.Travelers.Save(ctx, stale, 1), bookingserrors.ErrStatusConflict)

	revs, err := store.Travelers.Revisions(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, model.ClearanceNone, revs[0].Clearance.Status)
	assert.Equal(t, model.ClearanceCleared, revs[1].Clearance.Status)
}

func TestHolds_ListOccupyingOrdersBySequence(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for _, h := range []*model.Hold{
		{ID: "h-late", TravelerID: "t-1", CourseID: "c-1", Status: model.HoldActive, Sequence: 1 << 40},
		{ID: "h-early", TravelerID: "t-2", CourseID: "c-1", Status: model.HoldCommitted, Sequence: 1},
		{ID: "h-mid", TravelerID: "t-3", CourseID: "c-1", Status: model.HoldActive, Sequence: 1 << 33},
		{ID: "h-gone", TravelerID: "t-4", CourseID: "c-1", Status: model.HoldReleased, Sequence: 2},
	} {
		require.NoError(t, store.Holds.Insert(ctx, h))
	}

	holds, err := store.Holds.ListOccupying(ctx, "c-1")
	require.NoError(t, err)
	ids := make([]string, len(holds))
	for i, h := range holds {
		ids[i] = h.ID
	}
	assert.Equal(t, []string{"h-early", "h-mid", "h-late"}, ids)
}

func TestIntents_KeyClaimedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	intent := &model.PaymentIntent{IdempotencyKey: "k-1", Amount: 100, Status: model.PaymentCreated}
	require.NoError(t, store.Intents.Create(ctx, intent))
	assert.ErrorIs(t, store.Intents.Create(ctx, intent), bookingserrors.ErrDuplicate)

	charged := *intent
	charged.Status = model.PaymentCharged
	charged.ReceiptID = "r-1"
	require.NoError(t, store.Intents.Update(ctx, &charged, model.PaymentCreated, ""))
	assert.ErrorIs(t, store.Intents.Update(ctx, &charged, model.PaymentCreated, ""), bookingserrors.ErrStatusConflict)

	found, err := store.Intents.FindByReceipt(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "k-1", found.IdempotencyKey)
}

func TestIntents_UpdateHonoursLeaseOwner(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Intents.Create(ctx, &model.PaymentIntent{IdempotencyKey: "k-1", Amount: 100, Status: model.PaymentCreated}))

	leased := model.PaymentIntent{IdempotencyKey: "k-1", Amount: 100, Status: model.PaymentCharging, LeaseOwner: "node-a"}
	require.NoError(t, store.Intents.Update(ctx, &leased, model.PaymentCreated, ""))

	takeover := leased
	takeover.LeaseOwner = "node-b"
	assert.ErrorIs(t, store.Intents.Update(ctx, &takeover, model.PaymentCharging, "node-c"), bookingserrors.ErrStatusConflict)
	require.NoError(t, store.Intents.Update(ctx, &takeover, model.PaymentCharging, "node-a"))

	settled := takeover
	settled.Status = model.PaymentCharged
	settled.LeaseOwner = ""
	assert.ErrorIs(t, store.Intents.Update(ctx, &settled, model.PaymentCharging, "node-a"), bookingserrors.ErrStatusConflict)
	require.NoError(t, store.Intents.Update(ctx, &settled, model.PaymentCharging, "node-b"))
}

func TestBookings_SingleCancellationPerBooking(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Bookings.Create(ctx, &model.BookingRecord{ID: "b-1", Kind: model.RecordBooking, HoldID: "h-1"}))
	assert.ErrorIs(t, store.Bookings.Create(ctx, &model.BookingRecord{ID: "b-2", Kind: model.RecordBooking, HoldID: "h-1"}), bookingserrors.ErrDuplicate)

	require.NoError(t, store.Bookings.Create(ctx, &model.BookingRecord{ID: "x-1", Kind: model.RecordCancellation, CancelsBookingID: "b-1"}))
	assert.ErrorIs(t, store.Bookings.Create(ctx, &model.BookingRecord{ID: "x-2", Kind: model.RecordCancellation, CancelsBookingID: "b-1"}), bookingserrors.ErrDuplicate)

	cancellation, err := store.Bookings.FindCancellation(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "x-1", cancellation.ID)

	_, err = store.Bookings.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, bookingserrors.ErrNotFound)
}
