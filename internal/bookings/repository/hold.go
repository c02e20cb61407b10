package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "skyport/internal/bookings/errors"
	"skyport/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// holdDocument carries the occupying flag that backs the partial unique
// index on (traveler_id, course_id).
type holdDocument struct {
	model.Hold `bson:",inline"`
	Occupying  bool `bson:"occupying"`
}

type mongoHoldRepository struct {
	timeouts
	collection *mongo.Collection
}

var occupyingStatuses = bson.A{model.HoldActive, model.HoldCommitted}

func (r *mongoHoldRepository) Insert(ctx context.Context, hold *model.Hold) error {
	ctx, cancel := withTimeout(ctx, r.write)
	defer cancel()

	doc := holdDocument{Hold: *hold, Occupying: hold.Status.Occupies()}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: hold for traveler %s on course %s", bookingserrors.ErrDuplicate, hold.TravelerID, hold.CourseID)
		}
		return fmt.Errorf("failed to create hold: %w", err)
	}
	return nil
}

func (r *mongoHoldRepository) FindByID(ctx context.Context, id string) (*model.Hold, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	var doc holdDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to find hold: %w", err)
	}
	return &doc.Hold, nil
}

func (r *mongoHoldRepository) FindOccupying(ctx context.Context, travelerID, courseID string) (*model.Hold, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	filter := bson.M{
		"traveler_id": travelerID,
		"course_id":   courseID,
		"status":      bson.M{"$in": occupyingStatuses},
	}

	var doc holdDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to find hold: %w", err)
	}
	return &doc.Hold, nil
}

func (r *mongoHoldRepository) ListOccupying(ctx context.Context, courseID string) ([]*model.Hold, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	filter := bson.M{
		"course_id": courseID,
		"status":    bson.M{"$in": occupyingStatuses},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find holds: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []holdDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode holds: %w", err)
	}

	holds := make([]*model.Hold, 0, len(docs))
	for i := range docs {
		holds = append(holds, &docs[i].Hold)
	}
	return holds, nil
}

func (r *mongoHoldRepository) UpdateStatus(ctx context.Context, id string, from, to model.HoldStatus, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.write)
	defer cancel()

	filter := bson.M{"_id": id, "status": from}
	update := bson.M{
		"$set": bson.M{
			"status":     to,
			"occupying":  to.Occupies(),
			"updated_at": at,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update hold status: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: hold %s is no longer %s", bookingserrors.ErrStatusConflict, id, from)
}

func (r *mongoHoldRepository) CoursesWithActiveHolds(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	values, err := r.collection.Distinct(ctx, "course_id", bson.M{"status": model.HoldActive})
	if err != nil {
		return nil, fmt.Errorf("failed to list courses with active holds: %w", err)
	}

	courses := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			courses = append(courses, id)
		}
	}
	return courses, nil
}
