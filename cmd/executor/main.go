package main

import (
	"context"
	"os/signal"
	"syscall"

	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/validator"
	"bikeshare/internal/scheduler"
	"bikeshare/internal/transitions"
	"bikeshare/pkg/config"
	"bikeshare/pkg/logger"

	"github.com/hibiken/asynq"
)

const ServiceName = "transition-executor"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	inspector := asynq.NewInspector(scheduler.RedisConnOpt(cfg))
	defer inspector.Close()
	asynqClient := asynq.NewClient(scheduler.RedisConnOpt(cfg))
	defer asynqClient.Close()

	executor := transitions.NewExecutor(
		repository.NewMongoBookingRepository(cfg),
		repository.NewMongoUnitRepository(cfg),
		scheduler.New(asynqClient, inspector, cfg.SchedulerQueue, cfg.TransitionMaxRetry, cfg.Log),
		validator.NewBookingValidator(cfg.Log),
		cfg.Log,
	)

	server := asynq.NewServer(scheduler.RedisConnOpt(cfg), asynq.Config{
		Concurrency: cfg.SchedulerConcurrency,
		Queues:      map[string]int{cfg.SchedulerQueue: 1},
		Logger:      logger.NewAsynqAdapter(cfg.Log),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			retried, _ := asynq.GetRetryCount(ctx)
			cfg.Log.Error("Transition job failed",
				"job_id", id,
				"type", task.Type(),
				"retried", retried,
				"error", err,
			)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(scheduler.TypeBookingTransition, executor.ProcessTask)

	if err := server.Start(mux); err != nil {
		cfg.Log.Fatal("Failed to start transition executor", "error", err)
	}
	cfg.Log.Info("Transition executor started", "queue", cfg.SchedulerQueue, "concurrency", cfg.SchedulerConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	cfg.Log.Info("Shutdown signal received, draining transition jobs")
	server.Shutdown()
}
