package service

import (
	"context"
	"time"

	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/validator"
	"bikeshare/pkg/config"
	"bikeshare/pkg/kafka"
	"bikeshare/pkg/model"
)

// Reasons reported in the error details, so callers can tell the failure
// kinds of a rejected reservation apart.
const (
	ReasonInvalidTimeRange = "invalid_time_range"
	ReasonStartInPast      = "start_in_past"
	ReasonUnitNotFound     = "unit_not_found"
	ReasonUnitUnavailable  = "unit_unavailable"
	ReasonTimeConflict     = "time_conflict"
	ReasonEnqueueFailed    = "enqueue_failed"
	ReasonNoticeTooShort   = "notice_too_short"
	ReasonStatusNotMutable = "status_not_mutable"
)

const EventReservationRequested = "reservation.requested"

type RequestPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

type JobScheduler interface {
	ScheduleBooking(ctx context.Context, b *model.Booking) error
	RescheduleBooking(ctx context.Context, b *model.Booking) error
	CancelBooking(ctx context.Context, referenceCode string) error
}

type ReservationService interface {
	Submit(ctx context.Context, input *model.ReservationInput) (*model.ReservationReceipt, error)
	Cancel(ctx context.Context, userID, referenceCode string) (*model.Booking, error)
	Modify(ctx context.Context, userID, referenceCode string, input *model.ModificationInput) (*model.Booking, error)
	GetAccessCode(ctx context.Context, userID, referenceCode string) (*model.AccessCodeView, error)
	History(ctx context.Context, userID string, status model.BookingStatus) ([]*model.BookingView, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	AvailableUnits(ctx context.Context, location string) ([]*model.Unit, error)
}

type reservationService struct {
	bookings  repository.BookingRepository
	units     repository.UnitRepository
	locker    *unitLocker
	publisher RequestPublisher
	jobs      JobScheduler
	notifier  Notifier
	validator *validator.BookingValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewReservationService(
	bookings repository.BookingRepository,
	units repository.UnitRepository,
	locks repository.UnitLockRepository,
	publisher RequestPublisher,
	jobs JobScheduler,
	notifier Notifier,
	validator *validator.BookingValidator,
	cfg *config.Config,
) ReservationService {
	clock := func() time.Time { return time.Now().UTC() }
	return &reservationService{
		bookings:  bookings,
		units:     units,
		locker:    newUnitLocker(locks, cfg.UnitLockTTL, clock, cfg.Log),
		publisher: publisher,
		jobs:      jobs,
		notifier:  notifier,
		validator: validator,
		cfg:       cfg,
		now:       clock,
	}
}
