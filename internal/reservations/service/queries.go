package service

import (
	"context"
	"sync"

	apperrors "bikeshare/pkg/errors"
	"bikeshare/pkg/model"
	"bikeshare/pkg/sanitizer"
)

// GetAccessCode returns the unlock code of an approved or active booking to
// its owner.
func (s *reservationService) GetAccessCode(ctx context.Context, userID, referenceCode string) (*model.AccessCodeView, error) {
	booking, err := s.ownedBooking(ctx, userID, referenceCode)
	if err != nil {
		return nil, err
	}
	if !booking.Status.HoldsAccessCode() || booking.AccessCode == "" {
		return nil, apperrors.Conflict("Access code is only available for approved or active reservations").
			WithDetail("status", booking.Status)
	}

	return &model.AccessCodeView{
		ReferenceCode: booking.ReferenceCode,
		AccessCode:    booking.AccessCode,
		Status:        booking.Status,
		StartTime:     booking.StartTime,
		EndTime:       booking.EndTime,
		Duration:      formatDuration(booking.EndTime.Sub(booking.StartTime)),
	}, nil
}

// History lists the bookings of a user, newest window first, with the
// location of each unit.
func (s *reservationService) History(ctx context.Context, userID string, status model.BookingStatus) ([]*model.BookingView, error) {
	if status != "" && !status.Valid() {
		return nil, apperrors.InvalidInput("unknown booking status").WithDetail("status", status)
	}

	userID = sanitizer.NormalizeIdentifier(userID)
	bookings, err := s.bookings.FindByUser(ctx, userID, status)
	if err != nil {
		s.cfg.Log.Error("Failed to list user bookings", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}

	ids := make([]string, 0, len(bookings))
	seen := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		if !seen[b.UnitID] {
			seen[b.UnitID] = true
			ids = append(ids, b.UnitID)
		}
	}

	locations := make(map[string]string, len(ids))
	units, err := s.units.FindByIDs(ctx, ids)
	if err != nil {
		s.cfg.Log.Warn("Failed to load units for booking history", "user_id", userID, "error", err)
	}
	for _, u := range units {
		locations[u.ID] = u.Location
	}

	views := make([]*model.BookingView, 0, len(bookings))
	for _, b := range bookings {
		b.AccessCode = ""
		views = append(views, &model.BookingView{Booking: b, UnitLocation: locations[b.UnitID]})
	}
	return views, nil
}

func (s *reservationService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.bookings.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.bookings.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *reservationService) AvailableUnits(ctx context.Context, location string) ([]*model.Unit, error) {
	units, err := s.units.FindAvailable(ctx, sanitizer.NormalizeLocation(location))
	if err != nil {
		s.cfg.Log.Error("Failed to list available units", "location", location, "error", err)
		return nil, apperrors.Internal("Failed to retrieve units", err)
	}
	return units, nil
}
