package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bikeshare/internal/reservations/repository/repositorytest"
	"bikeshare/internal/reservations/validator"
	"bikeshare/pkg/config"
	"bikeshare/pkg/kafka"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, msg kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeJobs struct {
	mu          sync.Mutex
	scheduled   []string
	rescheduled []string
	cancelled   []string
	err         error
}

func (j *fakeJobs) ScheduleBooking(_ context.Context, b *model.Booking) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.scheduled = append(j.scheduled, b.ReferenceCode)
	return j.err
}

func (j *fakeJobs) RescheduleBooking(_ context.Context, b *model.Booking) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rescheduled = append(j.rescheduled, b.ReferenceCode)
	return j.err
}

func (j *fakeJobs) CancelBooking(_ context.Context, ref string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelled = append(j.cancelled, ref)
	return j.err
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                     logger.NewNop(),
		ReadTimeout:             5 * time.Second,
		WriteTimeout:            5 * time.Second,
		IntakeGracePeriod:       time.Minute,
		ModificationGracePeriod: 5 * time.Minute,
		CancellationNotice:      time.Hour,
		UnitLockTTL:             10 * time.Second,
	}
}

type fixture struct {
	store     *repositorytest.Store
	publisher *fakePublisher
	notifier  *fakeNotifier
	jobs      *fakeJobs
	svc       *reservationService
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	store := repositorytest.NewStore()
	f := &fixture{
		store:     store,
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		jobs:      &fakeJobs{},
	}
	v := validator.NewBookingValidator(cfg.Log)
	clock := func() time.Time { return baseTime }

	svc := NewReservationService(store.Bookings(), store.Units(), store.UnitLocks(), f.publisher, f.jobs, f.notifier, v, cfg)
	f.svc = svc.(*reservationService)
	f.svc.now = clock
	f.svc.locker.now = clock

	f.processor = NewProcessor(store.Bookings(), store.Units(), store.UnitLocks(), f.jobs, f.notifier, v, cfg)
	f.processor.now = clock
	f.processor.locker.now = clock

	return f
}

func (f *fixture) addUnit(id string, status model.UnitStatus) {
	rate := 4.5
	f.store.PutUnit(&model.Unit{ID: id, Model: "city", Status: status, Location: "Dock 1", RatePerHour: &rate})
}

func (f *fixture) addBooking(ref, userID, unitID string, status model.BookingStatus, start, end time.Time) {
	b := &model.Booking{
		ReferenceCode: ref,
		UserID:        userID,
		UserEmail:     userID + "@example.com",
		UnitID:        unitID,
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		CreatedAt:     baseTime,
	}
	if status.HoldsAccessCode() {
		b.AccessCode = "123456"
	}
	f.store.PutBooking(b)
}

func request(ref, unitID string, start, end time.Time) *model.BookingRequest {
	return &model.BookingRequest{
		ReferenceCode: ref,
		UserID:        "user-1",
		UserEmail:     "user-1@example.com",
		UnitID:        unitID,
		StartTime:     start,
		EndTime:       end,
		CreatedAt:     baseTime,
	}
}
