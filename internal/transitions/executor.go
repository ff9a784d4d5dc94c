package transitions

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "bikeshare/internal/reservations/errors"
	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/validator"
	"bikeshare/internal/scheduler"
	mongotx "bikeshare/pkg/db/mongo"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
)

// occupancyWindow is the slice of time checked for another running booking
// before the end transition releases a unit.
const occupancyWindow = time.Second

type BookingStore interface {
	FindByReference(ctx context.Context, referenceCode string) (*model.Booking, error)
	FindOverlapping(ctx context.Context, unitID string, start, end time.Time, statuses []model.BookingStatus) ([]*model.Booking, error)
	TransitionStatus(ctx context.Context, change repository.BookingStatusChange) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type UnitStore interface {
	TransitionStatus(ctx context.Context, id string, from []model.UnitStatus, to model.UnitStatus) error
}

type JobDeregisterer interface {
	Deregister(ctx context.Context, jobID string) error
}

// Executor applies transition jobs. Every write is conditional on the
// state the job was registered for, so a job that fires after its booking
// was cancelled, rescheduled or already completed is a no-op.
type Executor struct {
	bookings  BookingStore
	units     UnitStore
	jobs      JobDeregisterer
	validator *validator.BookingValidator
	log       *logger.Logger
	now       func() time.Time
}

func NewExecutor(bookings BookingStore, units UnitStore, jobs JobDeregisterer, v *validator.BookingValidator, log *logger.Logger) *Executor {
	return &Executor{
		bookings:  bookings,
		units:     units,
		jobs:      jobs,
		validator: v,
		log:       log.With("component", "transition_executor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessTask adapts the executor to asynq.Handler.
func (e *Executor) ProcessTask(ctx context.Context, task *asynq.Task) error {
	job, err := scheduler.ParseTransitionTask(task)
	if err != nil {
		e.log.Error("Dropping malformed transition task", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return e.Handle(ctx, job)
}

type transition struct {
	booking     *model.Booking
	from        []model.BookingStatus
	to          model.BookingStatus
	unitFrom    []model.UnitStatus
	unitTo      model.UnitStatus
	checkOthers bool
}

var errStale = errors.New("booking no longer matches the transition")

// Handle applies one job. Store failures are returned so the job is retried.
func (e *Executor) Handle(ctx context.Context, job model.TransitionJob) error {
	log := e.log.With("job_id", job.ID, "reference_code", job.ReferenceCode, "action", job.Action)

	if err := e.validator.ValidateTransitionJob(&job); err != nil {
		log.Error("Dropping invalid transition job", "error", err)
		return fmt.Errorf("invalid transition job: %v: %w", err, asynq.SkipRetry)
	}

	booking, err := e.bookings.FindByReference(ctx, job.ReferenceCode)
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) {
			log.Warn("Skipping transition, booking not found")
			return nil
		}
		return fmt.Errorf("failed to load booking: %w", err)
	}

	if booking.UnitID != job.UnitID || !booking.StartTime.Equal(job.WindowStart) || !booking.EndTime.Equal(job.WindowEnd) {
		log.Info("Skipping transition, booking window changed",
			"booking_start", booking.StartTime, "booking_end", booking.EndTime)
		return nil
	}

	switch job.Action {
	case model.TransitionStartBooking:
		return e.start(ctx, booking, job, log)
	case model.TransitionEndBooking:
		return e.end(ctx, booking, job, log)
	default:
		return fmt.Errorf("unknown action %q: %w", job.Action, asynq.SkipRetry)
	}
}

func (e *Executor) start(ctx context.Context, booking *model.Booking, job model.TransitionJob, log *logger.Logger) error {
	if booking.Status != model.BookingStatusApproved {
		log.Info("Skipping start transition", "status", booking.Status)
		return nil
	}
	if !e.now().Before(booking.EndTime) {
		log.Info("Skipping start transition, window already over")
		return nil
	}

	applied, err := e.apply(ctx, transition{
		booking:  booking,
		from:     []model.BookingStatus{model.BookingStatusApproved},
		to:       job.TargetBookingStatus,
		unitFrom: model.OccupiableUnitStatuses,
		unitTo:   job.TargetUnitStatus,
	}, log)
	if err != nil {
		return err
	}
	if applied {
		log.Info("Booking started", "unit_id", booking.UnitID)
	}
	return nil
}

func (e *Executor) end(ctx context.Context, booking *model.Booking, job model.TransitionJob, log *logger.Logger) error {
	if !booking.Status.In(model.OpenBookingStatuses) {
		log.Info("Skipping end transition", "status", booking.Status)
		return nil
	}

	applied, err := e.apply(ctx, transition{
		booking:     booking,
		from:        model.OpenBookingStatuses,
		to:          job.TargetBookingStatus,
		unitFrom:    model.ReleasableUnitStatuses,
		unitTo:      job.TargetUnitStatus,
		checkOthers: true,
	}, log)
	if err != nil {
		return err
	}
	if applied {
		log.Info("Booking completed", "unit_id", booking.UnitID)
	}

	e.cleanup(ctx, job.CleanupJobIDs, job.ID, log)
	return nil
}

// Complete force-completes an open booking whose end has passed and removes
// its leftover jobs. It reports whether this call changed the booking.
func (e *Executor) Complete(ctx context.Context, booking *model.Booking) (bool, error) {
	log := e.log.With("reference_code", booking.ReferenceCode, "action", "force_complete")

	applied, err := e.apply(ctx, transition{
		booking:     booking,
		from:        model.OpenBookingStatuses,
		to:          model.BookingStatusCompleted,
		unitFrom:    model.ReleasableUnitStatuses,
		unitTo:      model.UnitStatusAvailable,
		checkOthers: true,
	}, log)
	if err != nil {
		return false, err
	}

	e.cleanup(ctx, []string{
		scheduler.StartJobID(booking.ReferenceCode),
		scheduler.EndJobID(booking.ReferenceCode),
	}, "", log)
	return applied, nil
}

// apply writes the booking and unit status in one transaction. A booking
// that moved on in the meantime aborts the transaction and reports false.
func (e *Executor) apply(ctx context.Context, t transition, log *logger.Logger) (bool, error) {
	at := model.NormalizeInstant(e.now())

	err := e.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		err := e.bookings.TransitionStatus(sessCtx, repository.BookingStatusChange{
			ReferenceCode: t.booking.ReferenceCode,
			From:          t.from,
			To:            t.to,
			At:            at,
			ExpectedStart: &t.booking.StartTime,
			ExpectedEnd:   &t.booking.EndTime,
		})
		if err != nil {
			if errors.Is(err, reserrors.ErrStatusConflict) {
				return errStale
			}
			return err
		}

		if t.checkOthers {
			others, err := e.bookings.FindOverlapping(sessCtx, t.booking.UnitID, at, at.Add(occupancyWindow),
				[]model.BookingStatus{model.BookingStatusActive})
			if err != nil {
				return err
			}
			for _, other := range others {
				if other.ReferenceCode != t.booking.ReferenceCode {
					log.Info("Unit stays in use by another booking", "unit_id", t.booking.UnitID, "other_reference_code", other.ReferenceCode)
					return nil
				}
			}
		}

		err = e.units.TransitionStatus(sessCtx, t.booking.UnitID, t.unitFrom, t.unitTo)
		if errors.Is(err, reserrors.ErrStatusConflict) {
			log.Warn("Unit status left unchanged", "unit_id", t.booking.UnitID, "target_status", t.unitTo)
			return nil
		}
		return err
	})

	if errors.Is(err, errStale) {
		log.Info("Skipping transition, booking already moved on")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to apply transition: %w", err)
	}
	return true, nil
}

// cleanup removes the given jobs, except the one currently executing.
// Failures are warnings; leftover jobs no-op when they fire.
func (e *Executor) cleanup(ctx context.Context, jobIDs []string, current string, log *logger.Logger) {
	for _, id := range jobIDs {
		if id == current {
			continue
		}
		if err := e.jobs.Deregister(ctx, id); err != nil {
			log.Warn("Failed to deregister transition job", "cleanup_job_id", id, "error", err)
		}
	}
}
