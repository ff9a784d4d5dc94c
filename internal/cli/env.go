package cli

import (
	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/validator"
	"bikeshare/internal/scheduler"
	"bikeshare/internal/transitions"
	"bikeshare/pkg/config"

	"github.com/hibiken/asynq"
)

// env holds the connections a single command run needs.
type env struct {
	cfg       *config.Config
	client    *asynq.Client
	inspector *asynq.Inspector
}

// openEnv loads the configuration and connects to Mongo. Both exit the
// process on failure.
func openEnv() (*env, error) {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	return &env{cfg: cfg}, nil
}

func (e *env) scheduler() *scheduler.Scheduler {
	if e.client == nil {
		e.client = asynq.NewClient(scheduler.RedisConnOpt(e.cfg))
		e.inspector = asynq.NewInspector(scheduler.RedisConnOpt(e.cfg))
	}
	return scheduler.New(e.client, e.inspector, e.cfg.SchedulerQueue, e.cfg.TransitionMaxRetry, e.cfg.Log)
}

func (e *env) executor(bookings repository.BookingRepository) *transitions.Executor {
	return transitions.NewExecutor(
		bookings,
		repository.NewMongoUnitRepository(e.cfg),
		e.scheduler(),
		validator.NewBookingValidator(e.cfg.Log),
		e.cfg.Log,
	)
}

func (e *env) close() {
	if e.client != nil {
		_ = e.client.Close()
		_ = e.inspector.Close()
	}
	e.cfg.GracefulShutdown()
}
