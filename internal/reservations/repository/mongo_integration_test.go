//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	mongoMigration "bikeshare/internal/migrations/mongo"
	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/internal/reservations/repository"
	"bikeshare/pkg/client"
	"bikeshare/pkg/config"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const integrationDatabase = "bikeshare_integration"

type MongoRepositorySuite struct {
	suite.Suite
	cfg      *config.Config
	db       *mongo.Database
	bookings repository.BookingRepository
	units    repository.UnitRepository
	locks    repository.UnitLockRepository
}

func TestMongoRepositories(t *testing.T) {
	suite.Run(t, new(MongoRepositorySuite))
}

func (s *MongoRepositorySuite) SetupSuite() {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	s.Require().NoError(err)
	if err := mongoClient.Ping(ctx, nil); err != nil {
		s.T().Skipf("MongoDB not reachable at %s: %v", uri, err)
	}

	s.cfg = &config.Config{
		MongoDatabaseName: integrationDatabase,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		Log:               logger.NewNop(),
		Client:            &client.Client{Mongo: mongoClient},
	}
	s.db = mongoClient.Database(integrationDatabase)
	s.Require().NoError(s.db.Drop(ctx))
	s.Require().NoError(mongoMigration.RunMigration(ctx, s.db, s.cfg.Log))

	s.bookings = repository.NewMongoBookingRepository(s.cfg)
	s.units = repository.NewMongoUnitRepository(s.cfg)
	s.locks = repository.NewMongoUnitLockRepository(s.cfg)
}

func (s *MongoRepositorySuite) TearDownSuite() {
	if s.cfg == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.db.Drop(ctx)
	s.cfg.GracefulShutdown()
}

func (s *MongoRepositorySuite) SetupTest() {
	ctx := context.Background()
	for _, name := range []string{repository.BookingsCollection, repository.UnitsCollection, repository.UnitLocksCollection} {
		_, err := s.db.Collection(name).DeleteMany(ctx, bson.M{})
		s.Require().NoError(err)
	}
}

func (s *MongoRepositorySuite) insertUnit(id string, status model.UnitStatus) {
	_, err := s.db.Collection(repository.UnitsCollection).InsertOne(context.Background(), model.Unit{
		ID:       id,
		Model:    "city",
		Status:   status,
		Location: "dock-1",
	})
	s.Require().NoError(err)
}

func (s *MongoRepositorySuite) newBooking(ref string, start time.Time, status model.BookingStatus) *model.Booking {
	b := &model.Booking{
		ReferenceCode: ref,
		UserID:        "rider-1",
		UnitID:        "bike-1",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Status:        status,
	}
	if status.HoldsAccessCode() {
		b.AccessCode = "123456"
	}
	return b
}

func (s *MongoRepositorySuite) TestInsert_RejectsDuplicateReference() {
	ctx := context.Background()
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	s.Require().NoError(s.bookings.Insert(ctx, s.newBooking("ref-1", start, model.BookingStatusApproved)))
	err := s.bookings.Insert(ctx, s.newBooking("ref-1", start, model.BookingStatusRejected))
	s.ErrorIs(err, reserrors.ErrDuplicateReference)

	stored, err := s.bookings.FindByReference(ctx, "ref-1")
	s.Require().NoError(err)
	s.Equal(model.BookingStatusApproved, stored.Status)
}

func (s *MongoRepositorySuite) TestInsert_SchemaRejectsUnknownStatus() {
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	err := s.bookings.Insert(context.Background(), s.newBooking("ref-bad", start, model.BookingStatus("lost")))
	s.Error(err)
}

func (s *MongoRepositorySuite) TestFindOverlapping_HalfOpen() {
	ctx := context.Background()
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.bookings.Insert(ctx, s.newBooking("ref-1", start, model.BookingStatusApproved)))
	s.Require().NoError(s.bookings.Insert(ctx, s.newBooking("ref-2", start, model.BookingStatusCancelled)))

	adjacent, err := s.bookings.FindOverlapping(ctx, "bike-1", start.Add(time.Hour), start.Add(2*time.Hour), model.BlockingBookingStatuses)
	s.Require().NoError(err)
	s.Empty(adjacent)

	overlapping, err := s.bookings.FindOverlapping(ctx, "bike-1", start.Add(30*time.Minute), start.Add(2*time.Hour), model.BlockingBookingStatuses)
	s.Require().NoError(err)
	s.Require().Len(overlapping, 1)
	s.Equal("ref-1", overlapping[0].ReferenceCode)
}

func (s *MongoRepositorySuite) TestTransitionStatus_Conditional() {
	ctx := context.Background()
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.bookings.Insert(ctx, s.newBooking("ref-1", start, model.BookingStatusApproved)))

	at := start.Add(time.Minute)
	otherStart := start.Add(time.Hour)
	err := s.bookings.TransitionStatus(ctx, repository.BookingStatusChange{
		ReferenceCode: "ref-1",
		From:          []model.BookingStatus{model.BookingStatusApproved},
		To:            model.BookingStatusActive,
		At:            at,
		ExpectedStart: &otherStart,
	})
	s.ErrorIs(err, reserrors.ErrStatusConflict)

	s.Require().NoError(s.bookings.TransitionStatus(ctx, repository.BookingStatusChange{
		ReferenceCode: "ref-1",
		From:          []model.BookingStatus{model.BookingStatusApproved},
		To:            model.BookingStatusCompleted,
		At:            at,
	}))

	stored, err := s.bookings.FindByReference(ctx, "ref-1")
	s.Require().NoError(err)
	s.Equal(model.BookingStatusCompleted, stored.Status)
	s.Empty(stored.AccessCode)
	s.Require().NotNil(stored.CompletedAt)
}

func (s *MongoRepositorySuite) TestFindExpired() {
	ctx := context.Background()
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.bookings.Insert(ctx, s.newBooking("ended", start, model.BookingStatusActive)))
	s.Require().NoError(s.bookings.Insert(ctx, s.newBooking("running", start.Add(2*time.Hour), model.BookingStatusActive)))

	expired, err := s.bookings.FindExpired(ctx, start.Add(90*time.Minute), model.OpenBookingStatuses)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal("ended", expired[0].ReferenceCode)
}

func (s *MongoRepositorySuite) TestUnitTransition_BumpsVersion() {
	ctx := context.Background()
	s.insertUnit("bike-1", model.UnitStatusAvailable)

	s.Require().NoError(s.units.TransitionStatus(ctx, "bike-1", model.OccupiableUnitStatuses, model.UnitStatusInUse))
	err := s.units.TransitionStatus(ctx, "bike-1", model.HeldUnitStatuses, model.UnitStatusAvailable)
	s.ErrorIs(err, reserrors.ErrStatusConflict)

	unit, err := s.units.FindByID(ctx, "bike-1")
	s.Require().NoError(err)
	s.Equal(model.UnitStatusInUse, unit.Status)
	s.EqualValues(1, unit.Version)
}

func (s *MongoRepositorySuite) TestUnitLock_Lifecycle() {
	ctx := context.Background()
	now := time.Now().UTC()
	id := repository.UnitLockID("bike-1")

	s.Require().NoError(s.locks.Create(ctx, &model.UnitLock{ID: id, Owner: "a", ExpiresAt: now.Add(time.Second), CreatedAt: now}))
	s.ErrorIs(s.locks.Create(ctx, &model.UnitLock{ID: id, Owner: "b", ExpiresAt: now.Add(time.Second), CreatedAt: now}), reserrors.ErrLockHeld)

	removed, err := s.locks.DeleteExpired(ctx, id, now)
	s.Require().NoError(err)
	s.False(removed)

	s.Require().NoError(s.locks.Delete(ctx, id, "b"))
	s.ErrorIs(s.locks.Create(ctx, &model.UnitLock{ID: id, Owner: "b", ExpiresAt: now.Add(time.Second), CreatedAt: now}), reserrors.ErrLockHeld)

	removed, err = s.locks.DeleteExpired(ctx, id, now.Add(2*time.Second))
	s.Require().NoError(err)
	s.True(removed)
	s.NoError(s.locks.Create(ctx, &model.UnitLock{ID: id, Owner: "b", ExpiresAt: now.Add(time.Second), CreatedAt: now}))
}

func (s *MongoRepositorySuite) TestMigration_Idempotent() {
	ctx := context.Background()
	s.Require().NoError(mongoMigration.RunMigration(ctx, s.db, s.cfg.Log))

	cursor, err := s.db.Collection(repository.UnitLocksCollection).Indexes().List(ctx)
	s.Require().NoError(err)
	var indexes []bson.M
	s.Require().NoError(cursor.All(ctx, &indexes))

	var ttl bool
	for _, idx := range indexes {
		if _, ok := idx["expireAfterSeconds"]; ok {
			ttl = true
		}
	}
	s.True(ttl, "expected a TTL index on unit locks")
}
