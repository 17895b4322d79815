package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"purchaseorders/internal/app/purchaseorders"
	"purchaseorders/internal/config"
	"purchaseorders/internal/correlation"
	"purchaseorders/internal/envelope"
	purchaseorders_http "purchaseorders/internal/handler/http/purchaseorders"
	kafka_infra "purchaseorders/internal/infrastructure/kafka"
	redis_infra "purchaseorders/internal/infrastructure/redis"
	"purchaseorders/internal/repository/errors_repo"
	"purchaseorders/internal/requestreply"
)

func main() {
	cfg, err := config.LoadEdgeConfig()
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
	appLogger.Info("Purchase Order Service starting...", zap.String("reply_group_id", cfg.ReplyGroupID))

	redisCtx, cancelRedis := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := redis_infra.NewClient(redisCtx, redis_infra.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cancelRedis()
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	errorRecords := errors_repo.NewRedisErrorRecordRepository(redisClient, cfg.ErrorStream, cfg.ErrorStreamLimit)

	kafkaBrokers := cfg.Kafka.Brokers()
	topicsCtx, cancelTopics := context.WithTimeout(context.Background(), 10*time.Second)
	err = kafka_infra.EnsureTopics(topicsCtx, kafkaBrokers, []kafka_infra.TopicSpec{
		{Name: cfg.Kafka.PurchaseOrderTopic, Partitions: cfg.Kafka.PurchaseOrderPartitions},
		{Name: cfg.Kafka.ReplyTopic, Partitions: 1},
	}, appLogger)
	cancelTopics()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	registryMetrics, err := correlation.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		appLogger.Fatal("Failed to register correlation metrics", zap.Error(err))
	}
	registry := correlation.NewRegistry[envelope.ReplyEnvelope](
		appLogger.With(zap.String("component", "CorrelationRegistry")),
		correlation.WithMetrics[envelope.ReplyEnvelope](registryMetrics),
	)

	kafkaProducer := kafka_infra.NewProducer(kafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	client := requestreply.NewClient(kafkaProducer, registry, requestreply.ClientConfig{
		RequestTopic: cfg.Kafka.PurchaseOrderTopic,
		ReplyTopic:   cfg.Kafka.ReplyTopic,
		Timeout:      cfg.ReplyTimeout,
	}, appLogger.With(zap.String("component", "RequestReplyClient")))
	replyRouter := requestreply.NewRouter(registry, appLogger.With(zap.String("component", "ReplyRouter")))

	// Replies sent before this instance started belong to nobody.
	replyConsumer := kafka_infra.NewConsumer(kafka_infra.ConsumerConfig{
		Brokers:     kafkaBrokers,
		Topic:       cfg.Kafka.ReplyTopic,
		GroupID:     cfg.ReplyGroupID,
		StartOffset: kafka.LastOffset,
	}, appLogger.With(zap.String("component", "ReplyConsumer")))

	edgeMetrics, err := purchaseorders.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		appLogger.Fatal("Failed to register edge metrics", zap.Error(err))
	}
	purchaseOrderService := purchaseorders.NewPurchaseOrderService(
		client,
		errorRecords,
		cfg.ReplyTimeout,
		edgeMetrics,
		appLogger.With(zap.String("component", "PurchaseOrderService")),
	)

	router := purchaseorders_http.NewRouter(purchaseOrderService, purchaseorders_http.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       prometheus.DefaultGatherer,
	}, appLogger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := replyRouter.Run(ctxMain, replyConsumer); err != nil {
			appLogger.Error("Reply consumer failed", zap.Error(err))
		}
		appLogger.Info("Reply consumer stopped.")
	}()

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Waiting callers get ErrShutdown instead of hanging until their deadline.
	client.Shutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}

	cancelMain()
	replyConsumer.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		appLogger.Warn("Reply consumer did not stop in time")
	}

	if err := replyConsumer.Close(); err != nil {
		appLogger.Error("Error closing reply consumer", zap.Error(err))
	}
	appLogger.Info("Application gracefully shut down.")
}
