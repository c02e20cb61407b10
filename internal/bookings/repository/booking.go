package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "skyport/internal/bookings/errors"
	"skyport/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoBookingRepository struct {
	timeouts
	collection *mongo.Collection
}

func (r *mongoBookingRepository) Create(ctx context.Context, record *model.BookingRecord) error {
	ctx, cancel := withTimeout(ctx, r.write)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s record %s", bookingserrors.ErrDuplicate, record.Kind, record.ID)
		}
		return fmt.Errorf("failed to create booking record: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.BookingRecord, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoBookingRepository) FindByHold(ctx context.Context, holdID string) (*model.BookingRecord, error) {
	return r.findOne(ctx, bson.M{"hold_id": holdID, "kind": model.RecordBooking})
}

func (r *mongoBookingRepository) FindCancellation(ctx context.Context, bookingID string) (*model.BookingRecord, error) {
	return r.findOne(ctx, bson.M{"cancels_booking_id": bookingID, "kind": model.RecordCancellation})
}

func (r *mongoBookingRepository) findOne(ctx context.Context, filter bson.M) (*model.BookingRecord, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	var record model.BookingRecord
	if err := r.collection.FindOne(ctx, filter).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking record: %w", err)
	}
	return &record, nil
}
