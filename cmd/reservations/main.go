package main

import (
	"bikeshare/internal/reservations/handler"
	"bikeshare/internal/reservations/repository"
	"bikeshare/internal/reservations/service"
	"bikeshare/internal/reservations/validator"
	"bikeshare/internal/scheduler"
	"bikeshare/pkg/app"
	"bikeshare/pkg/config"
	"bikeshare/pkg/kafka"
	kafkaconfig "bikeshare/pkg/kafka/config"
	kafkamiddleware "bikeshare/pkg/kafka/middleware"
	"bikeshare/pkg/notification"

	"github.com/hibiken/asynq"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Reservations service")
	serverApp := app.NewApplication(cfg)
	reservationService := initServices(cfg, serverApp)
	serverApp.SetApp(handler.NewReservationHandler(reservationService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application) service.ReservationService {
	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	producer, err := kafka.NewProducer(kafkaCfg, cfg.RequestTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create request producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		metrics := kafkamiddleware.NewMetrics()
		producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(metrics.ProducerMiddleware())
		serverApp.OnShutdown(func() { metrics.Log(cfg.Log) })
	}

	asynqClient := asynq.NewClient(scheduler.RedisConnOpt(cfg))
	inspector := asynq.NewInspector(scheduler.RedisConnOpt(cfg))
	jobs := scheduler.New(asynqClient, inspector, cfg.SchedulerQueue, cfg.TransitionMaxRetry, cfg.Log)

	publisher := notification.NewPublisher(cfg.RabbitMQURL, cfg.NotificationQueue, cfg.Log)

	serverApp.OnShutdown(func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close request producer", "error", err)
		}
		if err := asynqClient.Close(); err != nil {
			cfg.Log.Error("Failed to close scheduler client", "error", err)
		}
		if err := inspector.Close(); err != nil {
			cfg.Log.Error("Failed to close scheduler inspector", "error", err)
		}
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close notification publisher", "error", err)
		}
	})

	reservationService := service.NewReservationService(
		repository.NewMongoBookingRepository(cfg),
		repository.NewMongoUnitRepository(cfg),
		repository.NewMongoUnitLockRepository(cfg),
		producer,
		jobs,
		publisher,
		validator.NewBookingValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Reservation service initialized", "database", cfg.MongoDatabaseName, "topic", cfg.RequestTopic)
	return reservationService
}
