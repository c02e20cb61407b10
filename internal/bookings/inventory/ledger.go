package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/repository"
	"skyport/pkg/clock"
	"skyport/pkg/keylock"
	"skyport/pkg/logger"
	"skyport/pkg/model"

	"github.com/google/uuid"
)

const (
	DefaultHoldTTL = 15 * time.Minute

	holdSequenceName = "hold_sequence"
)

// Ledger grants and releases seats. All capacity decisions for a course are
// made under that course's lock; different courses never contend.
type Ledger struct {
	holds     repository.HoldRepository
	courses   repository.CourseRepository
	sequences repository.SequenceRepository
	locks     *keylock.Locker
	clock     clock.Clock
	holdTTL   time.Duration
	logger    *logger.Logger
}

type Option func(*Ledger)

func WithHoldTTL(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.holdTTL = d
		}
	}
}

func NewLedger(store *repository.Store, clk clock.Clock, log *logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		holds:     store.Holds,
		courses:   store.Courses,
		sequences: store.Sequences,
		locks:     keylock.New(),
		clock:     clk,
		holdTTL:   DefaultHoldTTL,
		logger:    log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HoldResult is returned by TryHold. Existing is set when the traveler
// already had an active or committed hold on the course.
type HoldResult struct {
	Hold     *model.Hold
	Existing bool
}

func (l *Ledger) TryHold(ctx context.Context, course *model.Course, travelerID string) (HoldResult, error) {
	unlock, err := l.locks.Lock(ctx, course.ID)
	if err != nil {
		return HoldResult{}, err
	}
	defer unlock()

	now := l.clock.Now()
	occupying, err := l.liveHoldsLocked(ctx, course.ID, now)
	if err != nil {
		return HoldResult{}, err
	}

	for _, h := range occupying {
		if h.TravelerID == travelerID {
			return HoldResult{Hold: h, Existing: true}, nil
		}
	}
	if len(occupying) >= course.Capacity {
		return HoldResult{}, fmt.Errorf("%w: course %s has %d of %d seats taken", bookingserrors.ErrCapacityExceeded, course.ID, len(occupying), course.Capacity)
	}

	seq, err := l.sequences.Next(ctx, holdSequenceName)
	if err != nil {
		return HoldResult{}, err
	}

	hold := &model.Hold{
		ID:         uuid.NewString(),
		TravelerID: travelerID,
		CourseID:   course.ID,
		Sequence:   seq,
		Status:     model.HoldActive,
		ExpiresAt:  now.Add(l.holdTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.holds.Insert(ctx, hold); err != nil {
		if errors.Is(err, bookingserrors.ErrDuplicate) {
			// Another process won the pair; adopt its hold.
			existing, findErr := l.holds.FindOccupying(ctx, travelerID, course.ID)
			if findErr == nil {
				return HoldResult{Hold: existing, Existing: true}, nil
			}
		}
		return HoldResult{}, err
	}

	l.logger.Debug("Hold granted",
		"hold_id", hold.ID,
		"course_id", course.ID,
		"traveler_id", travelerID,
		"sequence", seq,
		"seats_taken", len(occupying)+1,
	)
	return HoldResult{Hold: hold}, nil
}

// Commit confirms an active hold. A hold that is already committed is
// accepted; one that expired, was released or is past its expiry is not.
func (l *Ledger) Commit(ctx context.Context, hold *model.Hold) error {
	unlock, err := l.locks.Lock(ctx, hold.CourseID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := l.holds.FindByID(ctx, hold.ID)
	if err != nil {
		return err
	}

	now := l.clock.Now()
	switch {
	case current.Status == model.HoldCommitted:
		return nil
	case current.Status != model.HoldActive:
		return fmt.Errorf("%w: hold %s is %s", bookingserrors.ErrHoldExpired, hold.ID, current.Status)
	case current.Stale(now):
		if _, err := l.expireLocked(ctx, current, now); err != nil {
			return err
		}
		return fmt.Errorf("%w: hold %s expired at %s", bookingserrors.ErrHoldExpired, hold.ID, current.ExpiresAt.Format(time.RFC3339))
	}

	if err := l.holds.UpdateStatus(ctx, hold.ID, model.HoldActive, model.HoldCommitted, now); err != nil {
		if errors.Is(err, bookingserrors.ErrStatusConflict) {
			return fmt.Errorf("%w: %w", bookingserrors.ErrHoldExpired, err)
		}
		return err
	}
	hold.Status = model.HoldCommitted
	hold.UpdatedAt = now
	return nil
}

// Release returns the hold's seat. Releasing a hold that is already released
// or expired succeeds without effect.
func (l *Ledger) Release(ctx context.Context, hold *model.Hold) error {
	unlock, err := l.locks.Lock(ctx, hold.CourseID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := l.holds.FindByID(ctx, hold.ID)
	if err != nil {
		return err
	}
	if !current.Status.Occupies() {
		return nil
	}

	now := l.clock.Now()
	if err := l.holds.UpdateStatus(ctx, hold.ID, current.Status, model.HoldReleased, now); err != nil {
		return err
	}
	hold.Status = model.HoldReleased
	hold.UpdatedAt = now

	l.logger.Debug("Hold released", "hold_id", hold.ID, "course_id", hold.CourseID, "previous_status", current.Status)
	return nil
}

// Available reports the seats left on a course, counting stale holds as free.
func (l *Ledger) Available(ctx context.Context, courseID string) (int, error) {
	course, err := l.courses.FindByID(ctx, courseID)
	if err != nil {
		return 0, err
	}
	holds, err := l.holds.ListOccupying(ctx, courseID)
	if err != nil {
		return 0, err
	}

	now := l.clock.Now()
	taken := 0
	for _, h := range holds {
		if !h.Stale(now) {
			taken++
		}
	}
	return max(0, course.Capacity-taken), nil
}

// liveHoldsLocked expires the course's stale holds and returns the rest.
// The caller must hold the course lock.
func (l *Ledger) liveHoldsLocked(ctx context.Context, courseID string, now time.Time) ([]*model.Hold, error) {
	holds, err := l.holds.ListOccupying(ctx, courseID)
	if err != nil {
		return nil, err
	}

	live := holds[:0]
	for _, h := range holds {
		if h.Stale(now) {
			expired, err := l.expireLocked(ctx, h, now)
			if err != nil {
				return nil, err
			}
			if expired {
				continue
			}
		}
		live = append(live, h)
	}
	return live, nil
}

// expireLocked moves a stale hold to expired. A hold whose status changed in
// the meantime is left alone and reported as not expired.
func (l *Ledger) expireLocked(ctx context.Context, h *model.Hold, now time.Time) (bool, error) {
	err := l.holds.UpdateStatus(ctx, h.ID, model.HoldActive, model.HoldExpired, now)
	if errors.Is(err, bookingserrors.ErrStatusConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to expire hold %s: %w", h.ID, err)
	}
	l.logger.Info("Hold expired", "hold_id", h.ID, "course_id", h.CourseID, "traveler_id", h.TravelerID)
	return true, nil
}
