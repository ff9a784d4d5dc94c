package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/service"
	"bikeshare/internal/reservations/validator"
	"bikeshare/internal/scheduler"
	"bikeshare/pkg/config"
	"bikeshare/pkg/kafka"
	kafkaconfig "bikeshare/pkg/kafka/config"
	kafkamiddleware "bikeshare/pkg/kafka/middleware"
	"bikeshare/pkg/notification"

	"github.com/hibiken/asynq"
)

const ServiceName = "reservation-processor"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	asynqClient := asynq.NewClient(scheduler.RedisConnOpt(cfg))
	defer asynqClient.Close()
	inspector := asynq.NewInspector(scheduler.RedisConnOpt(cfg))
	defer inspector.Close()

	publisher := notification.NewPublisher(cfg.RabbitMQURL, cfg.NotificationQueue, cfg.Log)
	defer publisher.Close()

	processor := service.NewProcessor(
		repository.NewMongoBookingRepository(cfg),
		repository.NewMongoUnitRepository(cfg),
		repository.NewMongoUnitLockRepository(cfg),
		scheduler.New(asynqClient, inspector, cfg.SchedulerQueue, cfg.TransitionMaxRetry, cfg.Log),
		publisher,
		validator.NewBookingValidator(cfg.Log),
		cfg,
	)

	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.RequestTopic, cfg.ProcessorGroupID, cfg.RequestDLQTopic, processor.Handle, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create request consumer", "error", err)
	}
	defer consumer.Close()

	metrics := kafkamiddleware.NewMetrics()
	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(metrics.ConsumerMiddleware())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Starting reservation processor", "topic", cfg.RequestTopic, "group_id", cfg.ProcessorGroupID)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Request consumer stopped", "error", err)
	}

	metrics.Log(cfg.Log)
	cfg.Log.Info("Reservation processor stopped")
}
