package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "skyport/internal/bookings/errors"
	mongotx "skyport/pkg/db/mongo"
	"skyport/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoTravelerRepository struct {
	timeouts
	collection *mongo.Collection
	revisions  *mongo.Collection
	txManager  mongotx.TransactionManager
}

type travelerRevision struct {
	ID         string          `bson:"_id"`
	TravelerID string          `bson:"traveler_id"`
	Snapshot   *model.Traveler `bson:"snapshot"`
}

func (r *mongoTravelerRepository) FindByID(ctx context.Context, id string) (*model.Traveler, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	var traveler model.Traveler
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&traveler); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrTravelerNotFound
		}
		return nil, fmt.Errorf("failed to find traveler: %w", err)
	}
	return &traveler, nil
}

// Save replaces the current traveler and appends the superseding revision to
// the history collection in one transaction.
func (r *mongoTravelerRepository) Save(ctx context.Context, traveler *model.Traveler, expectedRevision int64) error {
	traveler.Revision = expectedRevision + 1

	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if expectedRevision == 0 {
			if _, err := r.collection.InsertOne(sessCtx, traveler); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return fmt.Errorf("%w: traveler %s", bookingserrors.ErrDuplicate, traveler.ID)
				}
				return fmt.Errorf("failed to create traveler: %w", err)
			}
		} else {
			filter := bson.M{"_id": traveler.ID, "revision": expectedRevision}
			result, err := r.collection.ReplaceOne(sessCtx, filter, traveler)
			if err != nil {
				return fmt.Errorf("failed to supersede traveler: %w", err)
			}
			if result.MatchedCount == 0 {
				return fmt.Errorf("%w: traveler %s is past revision %d", bookingserrors.ErrStatusConflict, traveler.ID, expectedRevision)
			}
		}

		rev := travelerRevision{
			ID:         fmt.Sprintf("%s:%d", traveler.ID, traveler.Revision),
			TravelerID: traveler.ID,
			Snapshot:   traveler,
		}
		if _, err := r.revisions.InsertOne(sessCtx, rev); err != nil {
			return fmt.Errorf("failed to record traveler revision: %w", err)
		}
		return nil
	})
}

func (r *mongoTravelerRepository) Revisions(ctx context.Context, id string) ([]*model.Traveler, error) {
	ctx, cancel := withTimeout(ctx, r.read)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "snapshot.revision", Value: 1}})
	cursor, err := r.revisions.Find(ctx, bson.M{"traveler_id": id}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find traveler revisions: %w", err)
	}
	defer cursor.Close(ctx)

	var revs []travelerRevision
	if err = cursor.All(ctx, &revs); err != nil {
		return nil, fmt.Errorf("failed to decode traveler revisions: %w", err)
	}

	travelers := make([]*model.Traveler, 0, len(revs))
	for _, rev := range revs {
		travelers = append(travelers, rev.Snapshot)
	}
	return travelers, nil
}
