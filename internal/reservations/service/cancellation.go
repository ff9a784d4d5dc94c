package service

import (
	"context"
	"errors"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/internal/reservations/repository"
	apperrors "bikeshare/pkg/errors"
	"bikeshare/pkg/model"
	"bikeshare/pkg/sanitizer"

	"go.mongodb.org/mongo-driver/mongo"
)

// Cancel moves a pending or approved booking to cancelled and releases the
// unit if it is still held for it.
func (s *reservationService) Cancel(ctx context.Context, userID, referenceCode string) (*model.Booking, error) {
	booking, err := s.ownedBooking(ctx, userID, referenceCode)
	if err != nil {
		return nil, err
	}
	if !booking.Status.In(model.MutableBookingStatuses) {
		return nil, statusNotMutable(booking)
	}

	now := s.now()
	if booking.StartTime.Before(now.Add(s.cfg.CancellationNotice)) {
		return nil, apperrors.Conflict("Reservation can no longer be cancelled").
			WithReason(ReasonNoticeTooShort).
			WithDetail("minimum_notice", s.cfg.CancellationNotice.String())
	}

	err = s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.bookings.TransitionStatus(sessCtx, repository.BookingStatusChange{
			ReferenceCode: booking.ReferenceCode,
			From:          model.MutableBookingStatuses,
			To:            model.BookingStatusCancelled,
			At:            now,
			ExpectedStart: &booking.StartTime,
			ExpectedEnd:   &booking.EndTime,
		}); err != nil {
			return err
		}

		err := s.units.TransitionStatus(sessCtx, booking.UnitID, model.HeldUnitStatuses, model.UnitStatusAvailable)
		if err != nil && !errors.Is(err, reserrors.ErrStatusConflict) && !errors.Is(err, reserrors.ErrUnitNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, reserrors.ErrStatusConflict) {
			return nil, apperrors.Conflict("Reservation changed while cancelling, retry").
				WithReason(ReasonStatusNotMutable)
		}
		return nil, apperrors.Internal("Failed to cancel reservation", err)
	}

	log := s.cfg.Log.With("reference_code", booking.ReferenceCode, "unit_id", booking.UnitID)
	if err := s.jobs.CancelBooking(ctx, booking.ReferenceCode); err != nil {
		log.Warn("Failed to deregister transition jobs of cancelled booking", "error", err)
	}

	booking.Status = model.BookingStatusCancelled
	booking.AccessCode = ""
	booking.CancelledAt = &now
	booking.UpdatedAt = &now

	log.Info("Reservation cancelled", "user_id", userID)
	notify(ctx, s.notifier, log, cancellationNotification(booking))

	return booking, nil
}

// Modify moves the window of a pending or approved booking. The new window
// is checked under the unit lock against every other blocking booking.
func (s *reservationService) Modify(ctx context.Context, userID, referenceCode string, input *model.ModificationInput) (*model.Booking, error) {
	if err := s.validator.ValidateModification(input); err != nil {
		return nil, apperrors.Validation("Invalid modification input", map[string]any{"error": err.Error()})
	}

	start := model.NormalizeInstant(input.StartTime)
	end := model.NormalizeInstant(input.EndTime)
	if err := checkWindow(start, end, s.now(), s.cfg.ModificationGracePeriod); err != nil {
		return nil, err
	}

	booking, err := s.ownedBooking(ctx, userID, referenceCode)
	if err != nil {
		return nil, err
	}
	if !booking.Status.In(model.MutableBookingStatuses) {
		return nil, statusNotMutable(booking)
	}

	release, err := s.locker.acquire(ctx, booking.UnitID, booking.ReferenceCode)
	if err != nil {
		if errors.Is(err, reserrors.ErrLockHeld) {
			return nil, apperrors.Conflict("Unit is being updated, retry shortly")
		}
		return nil, apperrors.Internal("Failed to lock unit", err)
	}
	defer release()

	if err := s.ensureNoOverlap(ctx, booking.UnitID, booking.ReferenceCode, start, end); err != nil {
		return nil, err
	}

	if err := s.bookings.UpdateWindow(ctx, booking.ReferenceCode, model.MutableBookingStatuses, start, end); err != nil {
		if errors.Is(err, reserrors.ErrStatusConflict) {
			return nil, apperrors.Conflict("Reservation changed while modifying, retry").
				WithReason(ReasonStatusNotMutable)
		}
		return nil, apperrors.Internal("Failed to modify reservation", err)
	}

	now := s.now()
	booking.StartTime = start
	booking.EndTime = end
	booking.UpdatedAt = &now

	log := s.cfg.Log.With("reference_code", booking.ReferenceCode, "unit_id", booking.UnitID)
	if booking.Status == model.BookingStatusApproved {
		if err := s.jobs.RescheduleBooking(ctx, booking); err != nil {
			log.Error("Failed to reschedule transition jobs, the sweeper will complete the booking", "error", err)
		}
	}

	log.Info("Reservation modified", "start_time", start, "end_time", end)
	notify(ctx, s.notifier, log, modificationNotification(booking))

	return booking, nil
}

func (s *reservationService) ownedBooking(ctx context.Context, userID, referenceCode string) (*model.Booking, error) {
	userID = sanitizer.NormalizeIdentifier(userID)
	referenceCode = sanitizer.NormalizeIdentifier(referenceCode)
	if referenceCode == "" {
		return nil, apperrors.InvalidInput("reference code is required")
	}

	booking, err := s.bookings.FindByReference(ctx, referenceCode)
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", referenceCode)
		}
		return nil, apperrors.Internal("Failed to load booking", err)
	}
	if booking.UserID != userID {
		return nil, apperrors.Forbidden("Booking belongs to another user")
	}
	return booking, nil
}

func statusNotMutable(b *model.Booking) error {
	return apperrors.Conflict("Reservation can no longer be changed").
		WithReason(ReasonStatusNotMutable).
		WithDetail("status", b.Status)
}
