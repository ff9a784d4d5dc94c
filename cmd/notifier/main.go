package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"bikeshare/pkg/config"
	"bikeshare/pkg/notification"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := notification.NewConsumer(cfg.RabbitMQURL, cfg.NotificationQueue, notification.NewLogMailer(cfg.Log), cfg.Log)
	cfg.Log.Info("Starting notifier", "queue", cfg.NotificationQueue)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Fatal("Notifier stopped", "error", err)
	}
	cfg.Log.Info("Notifier stopped")
}
