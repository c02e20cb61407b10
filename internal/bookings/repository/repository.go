package repository

import (
	"context"
	"skyport/pkg/config"
	mongotx "skyport/pkg/db/mongo"
	"skyport/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	HoldsCollection             = "Holds"
	PaymentIntentsCollection    = "PaymentIntents"
	BookingsCollection          = "Bookings"
	TravelersCollection         = "Travelers"
	TravelerRevisionsCollection = "TravelerRevisions"
	CoursesCollection           = "Courses"
	CountersCollection          = "Counters"
)

type TravelerRepository interface {
	FindByID(ctx context.Context, id string) (*model.Traveler, error)
	// Save writes traveler as the successor of expectedRevision. An expected
	// revision of zero creates the traveler.
	Save(ctx context.Context, traveler *model.Traveler, expectedRevision int64) error
	Revisions(ctx context.Context, id string) ([]*model.Traveler, error)
}

type CourseRepository interface {
	FindByID(ctx context.Context, id string) (*model.Course, error)
	Upsert(ctx context.Context, course *model.Course) error
}

type HoldRepository interface {
	// Insert fails with ErrDuplicate when the pair already has an active or committed hold.
	Insert(ctx context.Context, hold *model.Hold) error
	FindByID(ctx context.Context, id string) (*model.Hold, error)
	FindOccupying(ctx context.Context, travelerID, courseID string) (*model.Hold, error)
	ListOccupying(ctx context.Context, courseID string) ([]*model.Hold, error)
	// UpdateStatus moves a hold from one status to another and fails with
	// ErrStatusConflict if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to model.HoldStatus, at time.Time) error
	CoursesWithActiveHolds(ctx context.Context) ([]string, error)
}

type SequenceRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

type PaymentIntentRepository interface {
	// Create claims the idempotency key; a second claim fails with ErrDuplicate.
	Create(ctx context.Context, intent *model.PaymentIntent) error
	FindByKey(ctx context.Context, key string) (*model.PaymentIntent, error)
	FindByReceipt(ctx context.Context, receiptID string) (*model.PaymentIntent, error)
	// Update replaces the intent if its stored status still equals from and
	// its lease is still held by owner ("" when no lease is held).
	Update(ctx context.Context, intent *model.PaymentIntent, from model.PaymentStatus, owner string) error
}

type BookingRepository interface {
	Create(ctx context.Context, record *model.BookingRecord) error
	FindByID(ctx context.Context, id string) (*model.BookingRecord, error)
	FindByHold(ctx context.Context, holdID string) (*model.BookingRecord, error)
	FindCancellation(ctx context.Context, bookingID string) (*model.BookingRecord, error)
}

// Store bundles the repositories a booking process needs. The backing
// connection is owned by the caller.
type Store struct {
	Travelers TravelerRepository
	Courses   CourseRepository
	Holds     HoldRepository
	Sequences SequenceRepository
	Intents   PaymentIntentRepository
	Bookings  BookingRepository
}

func NewMongoStore(cfg *config.Config) *Store {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	t := timeouts{read: cfg.ReadTimeout, write: cfg.WriteTimeout}
	return &Store{
		Travelers: &mongoTravelerRepository{
			timeouts:   t,
			collection: db.Collection(TravelersCollection),
			revisions:  db.Collection(TravelerRevisionsCollection),
			txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo, mongotx.WithTimeout(cfg.WriteTimeout)),
		},
		Courses:   &mongoCourseRepository{timeouts: t, collection: db.Collection(CoursesCollection)},
		Holds:     &mongoHoldRepository{timeouts: t, collection: db.Collection(HoldsCollection)},
		Sequences: &mongoSequenceRepository{timeouts: t, collection: db.Collection(CountersCollection)},
		Intents:   &mongoPaymentIntentRepository{timeouts: t, collection: db.Collection(PaymentIntentsCollection)},
		Bookings:  &mongoBookingRepository{timeouts: t, collection: db.Collection(BookingsCollection)},
	}
}

type timeouts struct {
	read  time.Duration
	write time.Duration
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// A SessionContext is returned unchanged with a no-op cancel, as wrapping it
// would break transaction semantics.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}
