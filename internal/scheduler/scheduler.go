package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bikeshare/pkg/config"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	"github.com/hibiken/asynq"
)

const (
	TypeBookingTransition = "booking:transition"

	startJobPrefix = "booking-start-"
	endJobPrefix   = "booking-end-"

	transitionTimeout = 30 * time.Second
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type inspector interface {
	DeleteTask(queue, id string) error
}

// Scheduler registers one-shot transition jobs in asynq. A job fires at its
// FireAt instant and is identified by a deterministic task id, so it can be
// looked up and removed again.
type Scheduler struct {
	client    enqueuer
	inspector inspector
	queue     string
	maxRetry  int
	log       *logger.Logger
}

func New(client enqueuer, inspector inspector, queue string, maxRetry int, log *logger.Logger) *Scheduler {
	return &Scheduler{
		client:    client,
		inspector: inspector,
		queue:     queue,
		maxRetry:  maxRetry,
		log:       log.With("component", "scheduler", "queue", queue),
	}
}

// RedisConnOpt returns the asynq connection settings for cfg.
func RedisConnOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func StartJobID(referenceCode string) string {
	return startJobPrefix + referenceCode
}

func EndJobID(referenceCode string) string {
	return endJobPrefix + referenceCode
}

// BuildTransitionJobs returns the start and end jobs of a booking. The end
// job carries both ids for cleanup.
func BuildTransitionJobs(b *model.Booking) (model.TransitionJob, model.TransitionJob) {
	start := model.TransitionJob{
		ID:                  StartJobID(b.ReferenceCode),
		UnitID:              b.UnitID,
		ReferenceCode:       b.ReferenceCode,
		TargetUnitStatus:    model.UnitStatusInUse,
		TargetBookingStatus: model.BookingStatusActive,
		Action:              model.TransitionStartBooking,
		WindowStart:         b.StartTime,
		WindowEnd:           b.EndTime,
		FireAt:              b.StartTime,
	}
	end := model.TransitionJob{
		ID:                  EndJobID(b.ReferenceCode),
		UnitID:              b.UnitID,
		ReferenceCode:       b.ReferenceCode,
		TargetUnitStatus:    model.UnitStatusAvailable,
		TargetBookingStatus: model.BookingStatusCompleted,
		Action:              model.TransitionEndBooking,
		WindowStart:         b.StartTime,
		WindowEnd:           b.EndTime,
		FireAt:              b.EndTime,
		CleanupJobIDs:       []string{StartJobID(b.ReferenceCode), EndJobID(b.ReferenceCode)},
	}
	return start, end
}

// Register enqueues job for its FireAt instant. A job that is already
// registered under the same id counts as registered.
func (s *Scheduler) Register(ctx context.Context, job model.TransitionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode transition job: %w", err)
	}

	task := asynq.NewTask(TypeBookingTransition, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(job.ID),
		asynq.Queue(s.queue),
		asynq.ProcessAt(job.FireAt),
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(transitionTimeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			s.log.Debug("Transition job already registered", "job_id", job.ID)
			return nil
		}
		return fmt.Errorf("failed to register job %s: %w", job.ID, err)
	}

	s.log.Info("Transition job registered", "job_id", job.ID, "reference_code", job.ReferenceCode, "fire_at", job.FireAt)
	return nil
}

// Deregister removes a pending job. A job that no longer exists counts as
// removed.
func (s *Scheduler) Deregister(_ context.Context, jobID string) error {
	err := s.inspector.DeleteTask(s.queue, jobID)
	if err == nil {
		s.log.Info("Transition job deregistered", "job_id", jobID)
		return nil
	}
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("failed to deregister job %s: %w", jobID, err)
}

func (s *Scheduler) Reschedule(ctx context.Context, job model.TransitionJob) error {
	if err := s.Deregister(ctx, job.ID); err != nil {
		return err
	}
	return s.Register(ctx, job)
}

// ScheduleBooking registers both jobs of b. Both are attempted; the
// returned error joins the individual failures.
func (s *Scheduler) ScheduleBooking(ctx context.Context, b *model.Booking) error {
	start, end := BuildTransitionJobs(b)
	return errors.Join(s.Register(ctx, start), s.Register(ctx, end))
}

func (s *Scheduler) RescheduleBooking(ctx context.Context, b *model.Booking) error {
	start, end := BuildTransitionJobs(b)
	return errors.Join(s.Reschedule(ctx, start), s.Reschedule(ctx, end))
}

func (s *Scheduler) CancelBooking(ctx context.Context, referenceCode string) error {
	return errors.Join(
		s.Deregister(ctx, StartJobID(referenceCode)),
		s.Deregister(ctx, EndJobID(referenceCode)),
	)
}

// ParseTransitionTask decodes the job carried by a booking:transition task.
func ParseTransitionTask(task *asynq.Task) (model.TransitionJob, error) {
	var job model.TransitionJob
	if task.Type() != TypeBookingTransition {
		return job, fmt.Errorf("unexpected task type %q", task.Type())
	}
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return job, fmt.Errorf("failed to decode transition job: %w", err)
	}
	return job, nil
}
