package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"purchaseorders/internal/config"
	kafka_handler "purchaseorders/internal/handler/kafka"
	kafka_infra "purchaseorders/internal/infrastructure/kafka"
)

func main() {
	cfg, err := config.LoadNotificationConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Notification Service starting...")

	kafkaBrokers := cfg.Kafka.Brokers()
	topicsCtx, cancelTopics := context.WithTimeout(context.Background(), 10*time.Second)
	err = kafka_infra.EnsureTopics(topicsCtx, kafkaBrokers, []kafka_infra.TopicSpec{
		{Name: cfg.Kafka.NotificationTopic, Partitions: 1},
	}, appLogger)
	cancelTopics()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	consumer := kafka_infra.NewConsumer(kafka_infra.ConsumerConfig{
		Brokers: kafkaBrokers,
		Topic:   cfg.Kafka.NotificationTopic,
		GroupID: cfg.Kafka.NotificationConsumerGroup,
	}, appLogger.With(zap.String("component", "NotificationConsumer")))
	handler := kafka_handler.NotificationMessageHandler(appLogger.With(zap.String("component", "NotificationHandler")))

	ctxMain, cancelMain := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctxMain, handler); err != nil {
			appLogger.Error("Notification consumer failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down application...")

	cancelMain()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		appLogger.Warn("Notification consumer did not stop in time")
	}
	if err := consumer.Close(); err != nil {
		appLogger.Error("Error closing notification consumer", zap.Error(err))
	}
	appLogger.Info("Application gracefully shut down.")
}
