// Package sweeper completes bookings whose end transition never ran.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"
)

type ExpiredFinder interface {
	FindExpired(ctx context.Context, before time.Time, statuses []model.BookingStatus) ([]*model.Booking, error)
}

// Completer force-completes one booking and reports whether it changed it.
type Completer interface {
	Complete(ctx context.Context, booking *model.Booking) (bool, error)
}

type SweepResult struct {
	Scanned   int
	Completed int
	Skipped   int
	Failed    int
}

type Sweeper struct {
	bookings  ExpiredFinder
	completer Completer
	interval  time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func New(bookings ExpiredFinder, completer Completer, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		bookings:  bookings,
		completer: completer,
		interval:  interval,
		log:       log.With("component", "sweeper"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce completes every open booking that ended before now. A failed
// scan aborts the run; a failed booking is counted and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	expired, err := s.bookings.FindExpired(ctx, s.now(), model.OpenBookingStatuses)
	if err != nil {
		return result, fmt.Errorf("failed to scan expired bookings: %w", err)
	}
	result.Scanned = len(expired)

	for _, b := range expired {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		changed, err := s.completer.Complete(ctx, b)
		switch {
		case err != nil:
			result.Failed++
			s.log.Error("Failed to complete expired booking", "reference_code", b.ReferenceCode, "unit_id", b.UnitID, "error", err)
		case changed:
			result.Completed++
			s.log.Info("Completed expired booking", "reference_code", b.ReferenceCode, "unit_id", b.UnitID, "end_time", b.EndTime)
		default:
			result.Skipped++
		}
	}

	return result, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("Sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	start := time.Now()
	result, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("Sweep failed", "error", err)
		}
		return
	}
	if result.Scanned > 0 {
		s.log.Info("Sweep finished",
			"scanned", result.Scanned,
			"completed", result.Completed,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"duration", time.Since(start),
		)
	}
}
