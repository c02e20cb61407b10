package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"skyport/internal/bookings/repository"
	"skyport/internal/migrations/mongo/validators"
	"skyport/pkg/logger"
	"skyport/pkg/model"
)

var (
	TravelersIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "clearance.status", Value: 1}, {Key: "clearance.expires_at", Value: 1}}},
	}

	TravelerRevisionsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "traveler_id", Value: 1}, {Key: "snapshot.revision", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	CoursesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "departure_at", Value: 1}}},
	}

	// At most one active or committed hold per traveler and course.
	HoldsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "traveler_id", Value: 1}, {Key: "course_id", Value: 1}},
			Options: options.Index().
				SetName("occupying_traveler_course").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"occupying": true}),
		},
		{Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
	}

	PaymentIntentsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "receipt_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"receipt_id": bson.M{"$exists": true}}),
		},
	}

	// One booking per hold and one cancellation per booking.
	BookingsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "hold_id", Value: 1}},
			Options: options.Index().
				SetName("booking_per_hold").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"kind": model.RecordBooking}),
		},
		{
			Keys: bson.D{{Key: "cancels_booking_id", Value: 1}},
			Options: options.Index().
				SetName("cancellation_per_booking").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"kind": model.RecordCancellation}),
		},
		{Keys: bson.D{{Key: "traveler_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func collections() map[string]collectionDef {
	return map[string]collectionDef{
		repository.TravelersCollection: {
			Indexes:   TravelersIndexes,
			Validator: validators.TravelerValidator,
		},
		repository.TravelerRevisionsCollection: {
			Indexes: TravelerRevisionsIndexes,
		},
		repository.CoursesCollection: {
			Indexes:   CoursesIndexes,
			Validator: validators.CourseValidator,
		},
		repository.HoldsCollection: {
			Indexes:   HoldsIndexes,
			Validator: validators.HoldValidator,
		},
		repository.PaymentIntentsCollection: {
			Indexes:   PaymentIntentsIndexes,
			Validator: validators.PaymentIntentValidator,
		},
		repository.BookingsCollection: {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingRecordValidator,
		},
		repository.CountersCollection: {},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if len(def.Indexes) == 0 {
			continue
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied", "database", dbName)
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	log.Debug("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	names, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Debug("Ensured indexes", "collection", name, "indexes", names)
	return nil
}
