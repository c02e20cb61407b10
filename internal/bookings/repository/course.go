package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "skyport/internal/bookings/errors"
	"skyport/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCourseRepository struct {
	timeouts
	collection *mongo.Collection
}

func (r *mongoCourseRepository) FindByID(ctx context.Context, id string) (*model.Course, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	var course model.Course
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&course); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	return &course, nil
}

// Upsert is used by catalog seeding only; courses are immutable to the booking flow.
func (r *mongoCourseRepository) Upsert(ctx context.Context, course *model.Course) error {
	ctx, cancel := withTimeout(ctx, r.write)
	defer cancel()

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": course.ID}, course, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}
	return nil
}
