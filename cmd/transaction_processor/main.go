package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/data/mongo"
	"github.com/linebroker/internal/engine"
	"github.com/linebroker/internal/logger"
	"github.com/linebroker/internal/platform/messaging/consumers"
	"github.com/linebroker/internal/platform/messaging/producers"
	"github.com/linebroker/internal/platform/persistence"
	"github.com/linebroker/internal/transaction_processor/components"
	"github.com/linebroker/internal/transaction_processor/consumer"
	"github.com/linebroker/internal/transaction_processor/outbox_poller"
	"github.com/linebroker/internal/transaction_processor/sweeper"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("transaction_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Transaction Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	stores, err := engine.OpenStores(appCtx, log, postgresDB, mongoDB)
	if err != nil {
		log.Error("Failed to initialize repositories", "error", err)
		os.Exit(1)
	}
	core := engine.New(log, cfg, stores)

	eventArchive := mongo.NewEventRepository(log, mongoDB.Database())
	if err := eventArchive.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to initialize event archive", "error", err)
		os.Exit(1)
	}

	kafkaConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka)

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	processingService, shutdownPool, err := components.CreateProcessingService(core.Wallet, dlqProducer, log, cfg)
	if err != nil {
		log.Error("Failed to initialize processing service", "error", err)
		os.Exit(1)
	}

	settlementHandler := consumer.NewSettlementEventHandler(log, processingService, dlqProducer)

	archivePublisher := outbox_poller.NewArchivePublisher(stores.Outbox, eventArchive, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, stores.Outbox, archivePublisher, log)

	expirySweeper := sweeper.NewSweeper(log, core.Orchestrator.SweepDue, cfg.Orchestrator.SweepInterval, cfg.Orchestrator.SweepBatchSize)

	errChan := make(chan error, 1)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.SettlementTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Consume(appCtx, settlementHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		expirySweeper.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// In-flight settlements finish before their stores are closed
	shutdownPool()

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Transaction Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Transaction Processor shutdown completed with errors")
	} else {
		log.Info("Transaction Processor shutdown completed successfully")
	}
}
