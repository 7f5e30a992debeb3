package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/glue-pipeline/internal/bootstrap"
	jobstorage "github.com/cuongbtq/glue-pipeline/internal/job/storage"
	"github.com/cuongbtq/glue-pipeline/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	configPath := bootstrap.ConfigFlag(flag.CommandLine)
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := workerID()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbClient, err := bootstrap.Database(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	store, err := bootstrap.BlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	cat, err := bootstrap.Catalog(&cfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}

	runner := worker.NewRunner(&worker.RunnerConfig{
		Logger:            appLogger.Logger,
		Store:             jobstorage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		Script:            bootstrap.Script(cfg, store, cat, dbClient, appLogger.Logger),
		WorkerID:          workerID,
		JobTimeout:        cfg.Job.Timeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Source:        rabbitClient,
		Executor:      runner,
		WorkerID:      workerID,
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err == nil {
			err = fmt.Errorf("delivery channel closed")
		}
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	case <-rabbitClient.NotifyClose():
		appLogger.Error("RabbitMQ connection closed")
		return fmt.Errorf("rabbitmq connection closed")
	}

	// Stop taking deliveries, then cancel in-flight runs once the
	// shutdown timeout passes
	workerInstance.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-errChan:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, cancelling running jobs")
		cancel()
		<-errChan
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// workerID identifies this process in claimed job runs
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
