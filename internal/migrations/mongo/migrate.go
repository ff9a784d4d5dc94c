package mongo

import (
	"context"
	"fmt"

	"bikeshare/internal/migrations/mongo/validators"
	"bikeshare/internal/reservations/repository"
	"bikeshare/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "unit_id", Value: 1},
			{Key: "start_time", Value: 1},
			{Key: "end_time", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "start_time", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "end_time", Value: 1},
		}},
	}

	UnitsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "location", Value: 1}}},
	}

	// Mongo removes expired locks on its own; DeleteExpired covers the gap
	// until the TTL monitor runs.
	UnitLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
)

type collectionDef struct {
	name      string
	indexes   []mongo.IndexModel
	validator bson.M
}

// RunMigration creates the collections, validators and indexes of db. It
// is safe to run repeatedly.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	collections := []collectionDef{
		{repository.BookingsCollection, BookingsIndexes, validators.BookingValidator},
		{repository.UnitsCollection, UnitsIndexes, validators.UnitValidator},
		{repository.UnitLocksCollection, UnitLocksIndexes, validators.UnitLockValidator},
	}

	for _, def := range collections {
		if err := ensureCollection(ctx, db, def.name, def.validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.name, err)
		}
		if err := ensureIndexes(ctx, db, def.name, def.indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.name, err)
		}
	}

	log.Info("All migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating collection validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
