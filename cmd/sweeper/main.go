package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/validator"
	"bikeshare/internal/scheduler"
	"bikeshare/internal/sweeper"
	"bikeshare/internal/transitions"
	"bikeshare/pkg/config"

	"github.com/hibiken/asynq"
)

const ServiceName = "reconciliation-sweeper"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	asynqClient := asynq.NewClient(scheduler.RedisConnOpt(cfg))
	defer asynqClient.Close()
	inspector := asynq.NewInspector(scheduler.RedisConnOpt(cfg))
	defer inspector.Close()

	bookings := repository.NewMongoBookingRepository(cfg)
	executor := transitions.NewExecutor(
		bookings,
		repository.NewMongoUnitRepository(cfg),
		scheduler.New(asynqClient, inspector, cfg.SchedulerQueue, cfg.TransitionMaxRetry, cfg.Log),
		validator.NewBookingValidator(cfg.Log),
		cfg.Log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := sweeper.New(bookings, executor, cfg.SweepInterval, cfg.Log)
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Sweeper stopped", "error", err)
	}
	cfg.Log.Info("Reconciliation sweeper stopped")
}
