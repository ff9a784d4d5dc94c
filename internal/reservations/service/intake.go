package service

import (
	"context"
	"errors"
	"time"

	reserrors "bikeshare/internal/reservations/errors"
	apperrors "bikeshare/pkg/errors"
	"bikeshare/pkg/kafka"
	"bikeshare/pkg/model"
	"bikeshare/pkg/sanitizer"

	"github.com/google/uuid"
)

const intakeSource = "reservations"

// Submit pre-validates a reservation and queues it for the processor. The
// checks are advisory: the processor repeats them under the unit lock.
func (s *reservationService) Submit(ctx context.Context, input *model.ReservationInput) (*model.ReservationReceipt, error) {
	input.UnitID = sanitizer.NormalizeIdentifier(input.UnitID)
	input.UserID = sanitizer.NormalizeIdentifier(input.UserID)
	input.UserEmail = sanitizer.NormalizeEmail(input.UserEmail)

	if err := s.validator.ValidateInput(input); err != nil {
		s.cfg.Log.Warn("Reservation input validation failed", "error", err)
		return nil, apperrors.Validation("Invalid reservation input", map[string]any{"error": err.Error()})
	}

	start := model.NormalizeInstant(input.StartTime)
	end := model.NormalizeInstant(input.EndTime)
	if err := checkWindow(start, end, s.now(), s.cfg.IntakeGracePeriod); err != nil {
		return nil, err
	}

	unit, err := s.units.FindByID(ctx, input.UnitID)
	if err != nil {
		if errors.Is(err, reserrors.ErrUnitNotFound) {
			return nil, apperrors.NotFoundWithID("Unit", input.UnitID).WithReason(ReasonUnitNotFound)
		}
		return nil, apperrors.Internal("Failed to load unit", err)
	}
	if unit.Status != model.UnitStatusAvailable {
		return nil, apperrors.Conflict("Unit is not available for reservation").
			WithReason(ReasonUnitUnavailable).
			WithDetail("unit_status", unit.Status)
	}

	if err := s.ensureNoOverlap(ctx, unit.ID, "", start, end); err != nil {
		return nil, err
	}

	req := &model.BookingRequest{
		ReferenceCode: uuid.NewString(),
		UserID:        input.UserID,
		UserEmail:     input.UserEmail,
		UnitID:        unit.ID,
		UnitType:      unit.Model,
		StartTime:     start,
		EndTime:       end,
		CreatedAt:     s.now(),
		RatePerHour:   unit.RatePerHour,
	}

	msg, err := kafka.NewMessage().
		WithKey(unit.ID).
		WithValue(req).
		WithEventType(EventReservationRequested).
		WithSource(intakeSource).
		WithCorrelationID(req.ReferenceCode).
		Build()
	if err != nil {
		return nil, apperrors.Internal("Failed to encode reservation request", err)
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Error("Failed to enqueue reservation request",
			"reference_code", req.ReferenceCode,
			"unit_id", unit.ID,
			"error", err,
		)
		return nil, apperrors.Unavailable("Reservation queue", err).WithReason(ReasonEnqueueFailed)
	}

	s.cfg.Log.Info("Reservation request accepted",
		"reference_code", req.ReferenceCode,
		"unit_id", unit.ID,
		"user_id", req.UserID,
		"start_time", start,
		"end_time", end,
	)

	return &model.ReservationReceipt{
		ReferenceCode: req.ReferenceCode,
		Status:        model.BookingStatusSubmitted,
		Message:       "Reservation request accepted, pending confirmation",
	}, nil
}

// checkWindow rejects reversed windows and windows starting more than grace
// before now.
func checkWindow(start, end, now time.Time, grace time.Duration) error {
	if !start.Before(end) {
		return apperrors.InvalidInput("start_time must be before end_time").WithReason(ReasonInvalidTimeRange)
	}
	if start.Before(now.Add(-grace)) {
		return apperrors.InvalidInput("start_time cannot be in the past").WithReason(ReasonStartInPast)
	}
	return nil
}

// ensureNoOverlap fails with a time_conflict when a blocking booking other
// than exclude intersects [start, end).
func (s *reservationService) ensureNoOverlap(ctx context.Context, unitID, exclude string, start, end time.Time) error {
	conflicting, err := s.bookings.FindOverlapping(ctx, unitID, start, end, model.BlockingBookingStatuses)
	if err != nil {
		return apperrors.Internal("Failed to check existing bookings", err)
	}
	for _, b := range conflicting {
		if b.ReferenceCode == exclude {
			continue
		}
		return apperrors.Conflict("Requested window overlaps an existing booking").
			WithReason(ReasonTimeConflict).
			WithDetail("conflict_start", b.StartTime).
			WithDetail("conflict_end", b.EndTime)
	}
	return nil
}
