// Package memory provides an in-process implementation of the booking
// repositories with the same uniqueness and compare-and-set guarantees as
// the mongo implementation. It backs STORE_DRIVER=memory and the tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/repository"
	"skyport/pkg/model"
)

type DB struct {
	mu        sync.RWMutex
	travelers map[string]*model.Traveler
	revisions map[string][]*model.Traveler
	courses   map[string]*model.Course
	holds     map[string]*model.Hold
	counters  map[string]int64
	intents   map[string]*model.PaymentIntent
	bookings  map[string]*model.BookingRecord
}

func New() *DB {
	return &DB{
		travelers: make(map[string]*model.Traveler),
		revisions: make(map[string][]*model.Traveler),
		courses:   make(map[string]*model.Course),
		holds:     make(map[string]*model.Hold),
		counters:  make(map[string]int64),
		intents:   make(map[string]*model.PaymentIntent),
		bookings:  make(map[string]*model.BookingRecord),
	}
}

// NewStore is shorthand for New().Store().
func NewStore() *repository.Store {
	return New().Store()
}

func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Travelers: travelerRepository{db},
		Courses:   courseRepository{db},
		Holds:     holdRepository{db},
		Sequences: sequenceRepository{db},
		Intents:   intentRepository{db},
		Bookings:  bookingRepository{db},
	}
}

type travelerRepository struct{ db *DB }

func (r travelerRepository) FindByID(_ context.Context, id string) (*model.Traveler, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	t, ok := r.db.travelers[id]
	if !ok {
		return nil, bookingserrors.ErrTravelerNotFound
	}
	return t.Clone(), nil
}

func (r travelerRepository) Save(_ context.Context, traveler *model.Traveler, expectedRevision int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, exists := r.db.travelers[traveler.ID]
	switch {
	case expectedRevision == 0 && exists:
		return fmt.Errorf("%w: traveler %s", bookingserrors.ErrDuplicate, traveler.ID)
	case expectedRevision != 0 && !exists:
		return bookingserrors.ErrTravelerNotFound
	case exists && current.Revision != expectedRevision:
		return fmt.Errorf("%w: traveler %s is past revision %d", bookingserrors.ErrStatusConflict, traveler.ID, expectedRevision)
	}

	traveler.Revision = expectedRevision + 1
	r.db.travelers[traveler.ID] = traveler.Clone()
	r.db.revisions[traveler.ID] = append(r.db.revisions[traveler.ID], traveler.Clone())
	return nil
}

func (r travelerRepository) Revisions(_ context.Context, id string) ([]*model.Traveler, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	revs := make([]*model.Traveler, 0, len(r.db.revisions[id]))
	for _, t := range r.db.revisions[id] {
		revs = append(revs, t.Clone())
	}
	return revs, nil
}

type courseRepository struct{ db *DB }

func (r courseRepository) FindByID(_ context.Context, id string) (*model.Course, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.courses[id]
	if !ok {
		return nil, bookingserrors.ErrCourseNotFound
	}
	cp := *c
	cp.Prerequisites = slices.Clone(c.Prerequisites)
	return &cp, nil
}

func (r courseRepository) Upsert(_ context.Context, course *model.Course) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *course
	cp.Prerequisites = slices.Clone(course.Prerequisites)
	r.db.courses[course.ID] = &cp
	return nil
}

type holdRepository struct{ db *DB }

func (r holdRepository) Insert(_ context.Context, hold *model.Hold) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.holds[hold.ID]; ok {
		return fmt.Errorf("%w: hold %s", bookingserrors.ErrDuplicate, hold.ID)
	}
	if hold.Status.Occupies() {
		if r.findOccupyingLocked(hold.TravelerID, hold.CourseID) != nil {
			return fmt.Errorf("%w: hold for traveler %s on course %s", bookingserrors.ErrDuplicate, hold.TravelerID, hold.CourseID)
		}
	}
	cp := *hold
	r.db.holds[hold.ID] = &cp
	return nil
}

func (r holdRepository) FindByID(_ context.Context, id string) (*model.Hold, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	h, ok := r.db.holds[id]
	if !ok {
		return nil, bookingserrors.ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (r holdRepository) FindOccupying(_ context.Context, travelerID, courseID string) (*model.Hold, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	h := r.findOccupyingLocked(travelerID, courseID)
	if h == nil {
		return nil, bookingserrors.ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (r holdRepository) findOccupyingLocked(travelerID, courseID string) *model.Hold {
	for _, h := range r.db.holds {
		if h.TravelerID == travelerID && h.CourseID == courseID && h.Status.Occupies() {
			return h
		}
	}
	return nil
}

func (r holdRepository) ListOccupying(_ context.Context, courseID string) ([]*model.Hold, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var holds []*model.Hold
	for _, h := range r.db.holds {
		if h.CourseID == courseID && h.Status.Occupies() {
			cp := *h
			holds = append(holds, &cp)
		}
	}
	slices.SortFunc(holds, func(a, b *model.Hold) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return holds, nil
}

func (r holdRepository) UpdateStatus(_ context.Context, id string, from, to model.HoldStatus, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	h, ok := r.db.holds[id]
	if !ok {
		return bookingserrors.ErrHoldNotFound
	}
	if h.Status != from {
		return fmt.Errorf("%w: hold %s is no longer %s", bookingserrors.ErrStatusConflict, id, from)
	}
	h.Status = to
	h.UpdatedAt = at
	return nil
}

func (r holdRepository) CoursesWithActiveHolds(_ context.Context) ([]string, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var courses []string
	for _, h := range r.db.holds {
		if h.Status == model.HoldActive && !slices.Contains(courses, h.CourseID) {
			courses = append(courses, h.CourseID)
		}
	}
	slices.Sort(courses)
	return courses, nil
}

type sequenceRepository struct{ db *DB }

func (r sequenceRepository) Next(_ context.Context, name string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.counters[name]++
	return r.db.counters[name], nil
}

type intentRepository struct{ db *DB }

func (r intentRepository) Create(_ context.Context, intent *model.PaymentIntent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.intents[intent.IdempotencyKey]; ok {
		return fmt.Errorf("%w: payment intent %s", bookingserrors.ErrDuplicate, intent.IdempotencyKey)
	}
	cp := *intent
	r.db.intents[intent.IdempotencyKey] = &cp
	return nil
}

func (r intentRepository) FindByKey(_ context.Context, key string) (*model.PaymentIntent, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	in, ok := r.db.intents[key]
	if !ok {
		return nil, bookingserrors.ErrIntentNotFound
	}
	cp := *in
	return &cp, nil
}

func (r intentRepository) FindByReceipt(_ context.Context, receiptID string) (*model.PaymentIntent, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, in := range r.db.intents {
		if receiptID != "" && in.ReceiptID == receiptID {
			cp := *in
			return &cp, nil
		}
	}
	return nil, bookingserrors.ErrIntentNotFound
}

func (r intentRepository) Update(_ context.Context, intent *model.PaymentIntent, from model.PaymentStatus, owner string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.intents[intent.IdempotencyKey]
	if !ok || current.Status != from || current.LeaseOwner != owner {
		return fmt.Errorf("%w: payment intent %s is no longer %s under lease %q", bookingserrors.ErrStatusConflict, intent.IdempotencyKey, from, owner)
	}
	cp := *intent
	r.db.intents[intent.IdempotencyKey] = &cp
	return nil
}

type bookingRepository struct{ db *DB }

func (r bookingRepository) Create(_ context.Context, record *model.BookingRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.bookings[record.ID]; ok {
		return fmt.Errorf("%w: %s record %s", bookingserrors.ErrDuplicate, record.Kind, record.ID)
	}
	for _, existing := range r.db.bookings {
		if existing.Kind != record.Kind {
			continue
		}
		if record.Kind == model.RecordBooking && existing.HoldID == record.HoldID ||
			record.Kind == model.RecordCancellation && existing.CancelsBookingID == record.CancelsBookingID {
			return fmt.Errorf("%w: %s record %s", bookingserrors.ErrDuplicate, record.Kind, record.ID)
		}
	}
	cp := *record
	r.db.bookings[record.ID] = &cp
	return nil
}

func (r bookingRepository) FindByID(_ context.Context, id string) (*model.BookingRecord, error) {
	return r.find(func(b *model.BookingRecord) bool { return b.ID == id })
}

func (r bookingRepository) FindByHold(_ context.Context, holdID string) (*model.BookingRecord, error) {
	return r.find(func(b *model.BookingRecord) bool {
		return b.Kind == model.RecordBooking && b.HoldID == holdID
	})
}

func (r bookingRepository) FindCancellation(_ context.Context, bookingID string) (*model.BookingRecord, error) {
	return r.find(func(b *model.BookingRecord) bool {
		return b.Kind == model.RecordCancellation && b.CancelsBookingID == bookingID
	})
}

func (r bookingRepository) find(match func(*model.BookingRecord) bool) (*model.BookingRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, b := range r.db.bookings {
		if match(b) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}
