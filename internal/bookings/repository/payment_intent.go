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

type mongoPaymentIntentRepository struct {
	timeouts
	collection *mongo.Collection
}

func (r *mongoPaymentIntentRepository) Create(ctx context.Context, intent *model.PaymentIntent) error {
	ctx, cancel := withTimeout(ctx, r.write)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, intent); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: payment intent %s", bookingserrors.ErrDuplicate, intent.IdempotencyKey)
		}
		return fmt.Errorf("failed to create payment intent: %w", err)
	}
	return nil
}

func (r *mongoPaymentIntentRepository) FindByKey(ctx context.Context, key string) (*model.PaymentIntent, error) {
	return r.findOne(ctx, bson.M{"_id": key})
}

func (r *mongoPaymentIntentRepository) FindByReceipt(ctx context.Context, receiptID string) (*model.PaymentIntent, error) {
	return r.findOne(ctx, bson.M{"receipt_id": receiptID})
}

func (r *mongoPaymentIntentRepository) findOne(ctx context.Context, filter bson.M) (*model.PaymentIntent, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	var intent model.PaymentIntent
	if err := r.collection.FindOne(ctx, filter).Decode(&intent); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to find payment intent: %w", err)
	}
	return &intent, nil
}

func (r *mongoPaymentIntentRepository) Update(ctx context.Context, intent *model.PaymentIntent, from model.PaymentStatus, owner string) error {
	ctx, cancel := withTimeout(ctx, r.write)
	defer cancel()

	filter := bson.M{"_id": intent.IdempotencyKey, "status": from, "lease_owner": owner}
	if owner == "" {
		filter["lease_owner"] = bson.M{"$in": bson.A{nil, ""}}
	}
	result, err := r.collection.ReplaceOne(ctx, filter, intent)
	if err != nil {
		return fmt.Errorf("failed to update payment intent: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: payment intent %s is no longer %s under lease %q", bookingserrors.ErrStatusConflict, intent.IdempotencyKey, from, owner)
	}
	return nil
}
