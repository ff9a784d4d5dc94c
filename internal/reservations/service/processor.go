package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/validator"
	"bikeshare/pkg/config"
	"bikeshare/pkg/kafka"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"
)

// Processor makes the authoritative decision on queued reservation
// requests. It is safe under redelivery: the reference code is the key of
// the decision record, and an existing record ends processing.
type Processor struct {
	bookings  repository.BookingRepository
	units     repository.UnitRepository
	locker    *unitLocker
	jobs      JobScheduler
	notifier  Notifier
	validator *validator.BookingValidator
	grace     time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewProcessor(
	bookings repository.BookingRepository,
	units repository.UnitRepository,
	locks repository.UnitLockRepository,
	jobs JobScheduler,
	notifier Notifier,
	validator *validator.BookingValidator,
	cfg *config.Config,
) *Processor {
	clock := func() time.Time { return time.Now().UTC() }
	log := cfg.Log.With("component", "reservation_processor")
	return &Processor{
		bookings:  bookings,
		units:     units,
		locker:    newUnitLocker(locks, cfg.UnitLockTTL, clock, log),
		jobs:      jobs,
		notifier:  notifier,
		validator: validator,
		grace:     cfg.IntakeGracePeriod,
		log:       log,
		now:       clock,
	}
}

// Handle is the kafka.MessageHandler of the request topic.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	var req model.BookingRequest
	if err := msg.DecodeValue(&req); err != nil {
		return kafka.NewPermanentError("failed to decode booking request", err)
	}
	if err := p.validator.ValidateRequest(&req); err != nil {
		return kafka.NewPermanentError("invalid booking request", err).
			WithDetail("reference_code", req.ReferenceCode)
	}
	return p.Process(ctx, &req)
}

// Process decides one request. Store failures come back as transient
// errors so the consumer retries the whole step.
func (p *Processor) Process(ctx context.Context, req *model.BookingRequest) error {
	log := p.log.With("reference_code", req.ReferenceCode, "unit_id", req.UnitID)
	req.StartTime = model.NormalizeInstant(req.StartTime)
	req.EndTime = model.NormalizeInstant(req.EndTime)

	existing, err := p.bookings.FindByReference(ctx, req.ReferenceCode)
	if err == nil {
		log.Info("Discarding duplicate booking request", "status", existing.Status)
		return nil
	}
	if !errors.Is(err, reserrors.ErrNotFound) {
		return kafka.NewTransientError("failed to check for an existing decision", err)
	}

	now := p.now()
	if !req.StartTime.Before(req.EndTime) {
		return p.reject(ctx, req, ReasonInvalidTimeRange, log)
	}
	if req.StartTime.Before(now.Add(-p.grace)) {
		return p.reject(ctx, req, ReasonStartInPast, log)
	}

	release, err := p.locker.acquire(ctx, req.UnitID, req.ReferenceCode)
	if err != nil {
		return kafka.NewTransientError("failed to lock unit", err)
	}
	defer release()

	unit, err := p.units.FindByID(ctx, req.UnitID)
	if err != nil {
		if errors.Is(err, reserrors.ErrUnitNotFound) {
			return p.reject(ctx, req, ReasonUnitNotFound, log)
		}
		return kafka.NewTransientError("failed to load unit", err)
	}
	if unit.Status != model.UnitStatusAvailable {
		return p.reject(ctx, req, ReasonUnitUnavailable, log)
	}

	conflicting, err := p.bookings.FindOverlapping(ctx, req.UnitID, req.StartTime, req.EndTime, model.BlockingBookingStatuses)
	if err != nil {
		return kafka.NewTransientError("failed to load overlapping bookings", err)
	}
	for _, b := range conflicting {
		if b.ReferenceCode != req.ReferenceCode {
			log.Info("Booking request overlaps an existing booking", "conflict_reference_code", b.ReferenceCode)
			return p.reject(ctx, req, ReasonTimeConflict, log)
		}
	}

	return p.approve(ctx, req, unit, log)
}

func (p *Processor) approve(ctx context.Context, req *model.BookingRequest, unit *model.Unit, log *logger.Logger) error {
	code, err := generateAccessCode()
	if err != nil {
		return kafka.NewTransientError("failed to generate access code", err)
	}

	now := model.NormalizeInstant(p.now())
	booking := bookingFromRequest(req, now)
	booking.Status = model.BookingStatusApproved
	booking.AccessCode = code
	booking.ApprovedAt = &now
	if booking.UnitType == "" {
		booking.UnitType = unit.Model
	}

	if inserted, err := p.insertDecision(ctx, booking, log); err != nil || !inserted {
		return err
	}

	log.Info("Booking approved", "start_time", booking.StartTime, "end_time", booking.EndTime)
	notify(ctx, p.notifier, log, approvalNotification(booking))

	if err := p.jobs.ScheduleBooking(ctx, booking); err != nil {
		log.Error("Failed to register transition jobs, the sweeper will complete the booking", "error", err)
	}
	return nil
}

func (p *Processor) reject(ctx context.Context, req *model.BookingRequest, reason string, log *logger.Logger) error {
	now := model.NormalizeInstant(p.now())
	booking := bookingFromRequest(req, now)
	booking.Status = model.BookingStatusRejected
	booking.RejectionReason = reason
	booking.RejectedAt = &now

	if inserted, err := p.insertDecision(ctx, booking, log); err != nil || !inserted {
		return err
	}

	log.Info("Booking rejected", "reason", reason)
	notify(ctx, p.notifier, log, rejectionNotification(booking))
	return nil
}

// insertDecision writes the first and only decision record of a booking.
// It reports false when a concurrent delivery already decided.
func (p *Processor) insertDecision(ctx context.Context, booking *model.Booking, log *logger.Logger) (bool, error) {
	err := p.bookings.Insert(ctx, booking)
	if errors.Is(err, reserrors.ErrDuplicateReference) {
		log.Info("Discarding duplicate booking request, decision already stored")
		return false, nil
	}
	if err != nil {
		return false, kafka.NewTransientError(fmt.Sprintf("failed to store %s booking", booking.Status), err)
	}
	return true, nil
}

func bookingFromRequest(req *model.BookingRequest, now time.Time) *model.Booking {
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &model.Booking{
		ReferenceCode: req.ReferenceCode,
		UserID:        req.UserID,
		UserEmail:     req.UserEmail,
		UnitID:        req.UnitID,
		UnitType:      req.UnitType,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		RatePerHour:   req.RatePerHour,
		CreatedAt:     createdAt,
		UpdatedAt:     &now,
	}
}
