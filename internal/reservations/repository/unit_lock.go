package repository

import (
	"context"
	"fmt"
	"time"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/pkg/config"
	"bikeshare/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	UnitLocksCollection = "Unit_locks"
	unitLockPrefix      = "unit_lock_"
)

func UnitLockID(unitID string) string {
	return unitLockPrefix + unitID
}

type UnitLockRepository interface {
	Create(ctx context.Context, lock *model.UnitLock) error
	Delete(ctx context.Context, id, owner string) error
	DeleteExpired(ctx context.Context, id string, at time.Time) (bool, error)
}

type mongoUnitLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoUnitLockRepository(cfg *config.Config) UnitLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoUnitLockRepository{
		cfg:        cfg,
		collection: db.Collection(UnitLocksCollection),
	}
}

// Create inserts the lock document. The unique _id makes the insert the
// acquisition: ErrLockHeld means another owner holds it.
func (r *mongoUnitLockRepository) Create(ctx context.Context, lock *model.UnitLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return reserrors.ErrLockHeld
		}
		return fmt.Errorf("failed to create unit lock: %w", err)
	}
	return nil
}

// Delete releases the lock only if it still belongs to owner.
func (r *mongoUnitLockRepository) Delete(ctx context.Context, id, owner string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "owner": owner}); err != nil {
		return fmt.Errorf("failed to delete unit lock: %w", err)
	}
	return nil
}

// DeleteExpired removes the lock when it expired before at. The TTL monitor
// only runs once a minute, so acquisition clears stale locks itself.
func (r *mongoUnitLockRepository) DeleteExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "expires_at": bson.M{"$lt": at}})
	if err != nil {
		return false, fmt.Errorf("failed to delete expired unit lock: %w", err)
	}
	return result.DeletedCount > 0, nil
}
