package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/glue-pipeline/internal/api/handler"
	"github.com/cuongbtq/glue-pipeline/internal/api/router"
	"github.com/cuongbtq/glue-pipeline/internal/bootstrap"
	"github.com/cuongbtq/glue-pipeline/internal/config"
	"github.com/cuongbtq/glue-pipeline/internal/job"
	jobstorage "github.com/cuongbtq/glue-pipeline/internal/job/storage"
	"github.com/cuongbtq/glue-pipeline/internal/schedule"
	"github.com/cuongbtq/glue-pipeline/internal/worker"
	"github.com/cuongbtq/glue-pipeline/internal/workflow"
	wfstorage "github.com/cuongbtq/glue-pipeline/internal/workflow/storage"
	"github.com/cuongbtq/glue-pipeline/shared/database"
	"github.com/cuongbtq/glue-pipeline/shared/rabbitmq"
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

	if err := cfg.ValidateServiceConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	names := bootstrap.Names(cfg)

	appLogger.Info("Starting pipeline service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("state_machine", names.StateMachine),
		slog.String("job", names.Job),
	)

	// ctx bounds every background execution; cancelling it aborts them
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbClient, err := bootstrap.Database(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established",
		slog.String("driver", cfg.Database.Driver),
	)

	var rabbitClient *rabbitmq.Client
	if cfg.Job.Dispatch == "rabbitmq" || cfg.Notification.Backend == "rabbitmq" {
		rabbitClient, err = bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		appLogger.Info("RabbitMQ connection established")
	}

	runStore := jobstorage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	dispatcher, localDispatcher, err := initDispatcher(ctx, cfg, runStore, dbClient, rabbitClient, appLogger.Logger)
	if err != nil {
		return err
	}

	jobs := job.NewService(job.NewDefinition(cfg, names), runStore, dispatcher, appLogger.Logger)

	notifier, err := bootstrap.Notifier(ctx, cfg, rabbitClient, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	executions := wfstorage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	executor, err := workflow.NewExecutor(ctx,
		bootstrap.WorkflowDefinition(cfg, names),
		map[string]workflow.Task{
			workflow.ResourceJobRunSync: workflow.NewJobRunTask(jobs, cfg.Workflow.PollInterval, appLogger.Logger),
			workflow.ResourcePublish:    workflow.NewPublishTask(notifier),
		},
		executions,
		workflow.Options{NotifyOnTimeout: cfg.Workflow.NotifyOnTimeout},
		appLogger.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}

	var scheduler *schedule.Scheduler
	if cfg.Schedule.Enabled {
		expression, err := schedule.ParseExpression(cfg.Schedule.Expression)
		if err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}

		scheduler, err = schedule.New(names.ScheduleRule, expression, executor, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		scheduler.Start()
	}

	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:      appLogger.Logger,
		Executions:  executor,
		Store:       executions,
		Jobs:        jobs,
		JobName:     names.Job,
		HealthCheck: dbClient.HealthCheck,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	appLogger.Info("Pipeline service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed",
			slog.Any("error", err),
		)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			appLogger.Warn("Scheduler did not stop in time",
				slog.Any("error", err),
			)
		}
	}

	// Running executions are recorded ABORTED
	cancel()
	executor.Wait()
	if localDispatcher != nil {
		localDispatcher.Wait()
	}

	appLogger.Info("Pipeline service shutdown complete")
	return nil
}

// initDispatcher selects where job runs execute. Local runs share the
// service database; rabbitmq runs are picked up by worker-service.
func initDispatcher(
	ctx context.Context,
	cfg *config.Config,
	runStore *jobstorage.Storage,
	dbClient *database.Client,
	rabbitClient *rabbitmq.Client,
	logger *slog.Logger,
) (job.Dispatcher, *job.LocalDispatcher, error) {
	switch cfg.Job.Dispatch {
	case "rabbitmq":
		return job.NewRabbitMQDispatcher(rabbitClient, cfg.RabbitMQ.RoutingKey, logger), nil, nil
	case "local", "":
		store, err := bootstrap.BlobStore(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}

		cat, err := bootstrap.Catalog(&cfg.Catalog)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}

		runner := worker.NewRunner(&worker.RunnerConfig{
			Logger:            logger,
			Store:             runStore,
			Script:            bootstrap.Script(cfg, store, cat, dbClient, logger),
			WorkerID:          "local-" + uuid.NewString()[:8],
			JobTimeout:        cfg.Job.Timeout,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		})

		local := job.NewLocalDispatcher(ctx, runner, logger)
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unsupported job dispatch: %s", cfg.Job.Dispatch)
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
