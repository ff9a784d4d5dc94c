package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/pkg/config"
	mongotx "bikeshare/pkg/db/mongo"
	"bikeshare/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	BookingsCollection = "Bookings"
)

// BookingStatusChange describes a conditional status write. The write only
// applies when the stored status is one of From and, if set, the stored
// window still equals ExpectedStart/ExpectedEnd.
type BookingStatusChange struct {
	ReferenceCode string
	From          []model.BookingStatus
	To            model.BookingStatus
	At            time.Time
	ExpectedStart *time.Time
	ExpectedEnd   *time.Time
}

type BookingRepository interface {
	Insert(ctx context.Context, booking *model.Booking) error
	FindByReference(ctx context.Context, referenceCode string) (*model.Booking, error)
	FindOverlapping(ctx context.Context, unitID string, start, end time.Time, statuses []model.BookingStatus) ([]*model.Booking, error)
	FindByUser(ctx context.Context, userID string, status model.BookingStatus) ([]*model.Booking, error)
	FindExpired(ctx context.Context, before time.Time, statuses []model.BookingStatus) ([]*model.Booking, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context) (int64, error)
	TransitionStatus(ctx context.Context, change BookingStatusChange) error
	UpdateWindow(ctx context.Context, referenceCode string, allowed []model.BookingStatus, start, end time.Time) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(BookingsCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// Insert writes a new booking keyed by its reference code. It never
// overwrites: a second decision for the same code yields ErrDuplicateReference.
func (r *mongoBookingRepository) Insert(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now()
	}

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return reserrors.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByReference(ctx context.Context, referenceCode string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": referenceCode}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindOverlapping(ctx context.Context, unitID string, start, end time.Time, statuses []model.BookingStatus) ([]*model.Booking, error) {
	filter := bson.M{
		"unit_id":    unitID,
		"status":     bson.M{"$in": statuses},
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})

	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) FindByUser(ctx context.Context, userID string, status model.BookingStatus) ([]*model.Booking, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}})

	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) FindExpired(ctx context.Context, before time.Time, statuses []model.BookingStatus) ([]*model.Booking, error) {
	filter := bson.M{
		"status":   bson.M{"$in": statuses},
		"end_time": bson.M{"$lt": before},
	}
	opts := options.Find().SetSort(bson.D{{Key: "end_time", Value: 1}})

	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	return r.find(ctx, bson.M{}, opts)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]*model.Booking, 0)
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	return count, nil
}

func (r *mongoBookingRepository) TransitionStatus(ctx context.Context, change BookingStatusChange) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":    change.ReferenceCode,
		"status": bson.M{"$in": change.From},
	}
	if change.ExpectedStart != nil {
		filter["start_time"] = *change.ExpectedStart
	}
	if change.ExpectedEnd != nil {
		filter["end_time"] = *change.ExpectedEnd
	}

	set := bson.M{
		"status":     change.To,
		"updated_at": change.At,
	}
	if field := statusTimestampField(change.To); field != "" {
		set[field] = change.At
	}
	update := bson.M{"$set": set}
	if !change.To.HoldsAccessCode() {
		update["$unset"] = bson.M{"access_code": ""}
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if result.MatchedCount == 0 {
		return reserrors.ErrStatusConflict
	}

	return nil
}

func (r *mongoBookingRepository) UpdateWindow(ctx context.Context, referenceCode string, allowed []model.BookingStatus, start, end time.Time) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":    referenceCode,
		"status": bson.M{"$in": allowed},
	}
	update := bson.M{
		"$set": bson.M{
			"start_time": start,
			"end_time":   end,
			"updated_at": now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking window: %w", err)
	}
	if result.MatchedCount == 0 {
		return reserrors.ErrStatusConflict
	}

	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func statusTimestampField(status model.BookingStatus) string {
	switch status {
	case model.BookingStatusApproved:
		return "approved_at"
	case model.BookingStatusRejected:
		return "rejected_at"
	case model.BookingStatusActive:
		return "activated_at"
	case model.BookingStatusCancelled:
		return "cancelled_at"
	case model.BookingStatusCompleted:
		return "completed_at"
	default:
		return ""
	}
}
