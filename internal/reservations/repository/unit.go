package repository

import (
	"context"
	"errors"
	"fmt"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/pkg/config"
	"bikeshare/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UnitsCollection = "Units"
)

type UnitRepository interface {
	FindByID(ctx context.Context, id string) (*model.Unit, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Unit, error)
	FindAvailable(ctx context.Context, location string) ([]*model.Unit, error)
	TransitionStatus(ctx context.Context, id string, from []model.UnitStatus, to model.UnitStatus) error
}

type mongoUnitRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoUnitRepository(cfg *config.Config) UnitRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoUnitRepository{
		cfg:        cfg,
		collection: db.Collection(UnitsCollection),
	}
}

func (r *mongoUnitRepository) FindByID(ctx context.Context, id string) (*model.Unit, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var unit model.Unit
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&unit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to find unit: %w", err)
	}

	return &unit, nil
}

func (r *mongoUnitRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Unit, error) {
	if len(ids) == 0 {
		return []*model.Unit{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (r *mongoUnitRepository) FindAvailable(ctx context.Context, location string) ([]*model.Unit, error) {
	filter := bson.M{"status": model.UnitStatusAvailable}
	if location != "" {
		filter["location"] = location
	}
	return r.find(ctx, filter)
}

func (r *mongoUnitRepository) find(ctx context.Context, filter bson.M) ([]*model.Unit, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find units: %w", err)
	}
	defer cursor.Close(ctx)

	units := make([]*model.Unit, 0)
	if err = cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode units: %w", err)
	}

	return units, nil
}

// TransitionStatus moves the unit to the target status only when its current
// status is one of from. Every successful write bumps the version counter.
func (r *mongoUnitRepository) TransitionStatus(ctx context.Context, id string, from []model.UnitStatus, to model.UnitStatus) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": from},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     to,
			"updated_at": now(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update unit status: %w", err)
	}
	if result.MatchedCount == 0 {
		return reserrors.ErrStatusConflict
	}

	return nil
}
