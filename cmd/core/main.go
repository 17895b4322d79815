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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"purchaseorders/internal/app/purchases"
	"purchaseorders/internal/config"
	ledger_http "purchaseorders/internal/handler/http/ledger"
	kafka_handler "purchaseorders/internal/handler/kafka"
	"purchaseorders/internal/infrastructure/database"
	kafka_infra "purchaseorders/internal/infrastructure/kafka"
	"purchaseorders/internal/outbox"
	"purchaseorders/internal/repository/accounts_repo"
	"purchaseorders/internal/repository/customers_repo"
	"purchaseorders/internal/repository/inbox_repo"
	"purchaseorders/internal/repository/memory"
	"purchaseorders/internal/repository/outbox_repo"
	"purchaseorders/internal/repository/packages_repo"
	"purchaseorders/internal/repository/purchases_repo"
)

func main() {
	cfg, err := config.LoadCoreConfig()
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
	appLogger.Info("Core Service starting...", zap.String("storage", cfg.Storage))

	var (
		tx               purchases.Transactor
		repos            purchases.Repositories
		outboxRepository outbox.OutboxRepository
	)

	switch cfg.Storage {
	case "memory":
		store := memory.NewStore()
		tx = store
		repos = purchases.Repositories{
			Customers: store.Customers(),
			Accounts:  store.Accounts(),
			Packages:  store.Packages(),
			Purchases: store.Purchases(),
			Inbox:     store.Inbox(),
			Outbox:    store.Outbox(),
		}
		outboxRepository = store.Outbox()
		appLogger.Warn("Using in-memory ledger, data is lost on restart")
	default:
		dbConfig := database.DBConfig{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			User:     cfg.DB.User,
			Password: cfg.DB.Password,
			DBName:   cfg.DB.Name,
			SSLMode:  cfg.DB.SSLMode,
		}

		appLogger.Info("Waiting for database to be available...")
		db, err := database.ConnectWithRetry(dbConfig, 10, 5*time.Second, appLogger)
		if err != nil {
			appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			} else {
				appLogger.Info("Database connection closed.")
			}
		}()

		if err := database.RunMigrations(cfg.MigrationsPath, dbConfig, appLogger); err != nil {
			appLogger.Fatal("Failed to run database migrations", zap.Error(err))
		}

		tx = database.NewTransactor(db, appLogger.With(zap.String("component", "Transactor")))
		repos = purchases.Repositories{
			Customers: customers_repo.NewCustomerRepository(),
			Accounts:  accounts_repo.NewAccountRepository(),
			Packages:  packages_repo.NewPackageRepository(),
			Purchases: purchases_repo.NewPurchaseRepository(),
			Inbox:     inbox_repo.NewInboxRepository(),
			Outbox:    outbox_repo.NewOutboxRepository(),
		}
		outboxRepository = repos.Outbox
	}

	kafkaBrokers := cfg.Kafka.Brokers()
	topicsCtx, cancelTopics := context.WithTimeout(context.Background(), 10*time.Second)
	err = kafka_infra.EnsureTopics(topicsCtx, kafkaBrokers, []kafka_infra.TopicSpec{
		{Name: cfg.Kafka.PurchaseOrderTopic, Partitions: cfg.Kafka.PurchaseOrderPartitions},
		{Name: cfg.Kafka.ReplyTopic, Partitions: 1},
		{Name: cfg.Kafka.NotificationTopic, Partitions: 1},
	}, appLogger)
	cancelTopics()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	purchaseService := purchases.NewPurchaseService(
		tx,
		repos,
		cfg.Kafka.NotificationTopic,
		appLogger.With(zap.String("component", "PurchaseService")),
	)
	appLogger.Info("Purchase Service initialized.")

	kafkaProducer := kafka_infra.NewProducer(kafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		tx,
		outboxRepository,
		kafkaProducer,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		cfg.OutboxBatchSize,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	purchaseOrderConsumer := kafka_infra.NewConsumer(kafka_infra.ConsumerConfig{
		Brokers:        kafkaBrokers,
		Topic:          cfg.Kafka.PurchaseOrderTopic,
		GroupID:        cfg.Kafka.CoreConsumerGroup,
		HandlerTimeout: cfg.HandlerTimeout,
		RetryBackoff:   cfg.RetryBackoff,
	}, appLogger.With(zap.String("component", "PurchaseOrderConsumer")))
	purchaseOrderHandler := kafka_handler.PurchaseOrderMessageHandler(
		purchaseService,
		kafkaProducer,
		appLogger.With(zap.String("component", "PurchaseOrderHandler")),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	ledger_http.RegisterRoutes(router, purchaseService, prometheus.DefaultGatherer, appLogger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()
	var wg sync.WaitGroup

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		outboxProcessor.Start(ctxMain)
		appLogger.Info("Outbox Processor stopped.")
	}()
	go func() {
		defer wg.Done()
		if err := purchaseOrderConsumer.Start(ctxMain, purchaseOrderHandler); err != nil {
			appLogger.Error("Purchase order consumer failed", zap.Error(err))
		}
		appLogger.Info("Purchase order consumer stopped.")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}

	cancelMain()
	outboxProcessor.Stop()
	purchaseOrderConsumer.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		appLogger.Warn("Background workers did not stop in time")
	}

	if err := purchaseOrderConsumer.Close(); err != nil {
		appLogger.Error("Error closing purchase order consumer", zap.Error(err))
	}
	appLogger.Info("Application gracefully shut down.")
}
