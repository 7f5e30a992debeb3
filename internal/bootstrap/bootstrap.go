// Package bootstrap builds the components every command shares from the
// loaded configuration.
package bootstrap

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/catalog"
	"github.com/cuongbtq/glue-pipeline/internal/config"
	jobstorage "github.com/cuongbtq/glue-pipeline/internal/job/storage"
	"github.com/cuongbtq/glue-pipeline/internal/naming"
	"github.com/cuongbtq/glue-pipeline/internal/notify"
	"github.com/cuongbtq/glue-pipeline/internal/transform"
	dqstorage "github.com/cuongbtq/glue-pipeline/internal/transform/storage"
	"github.com/cuongbtq/glue-pipeline/internal/workflow"
	wfstorage "github.com/cuongbtq/glue-pipeline/internal/workflow/storage"
	"github.com/cuongbtq/glue-pipeline/shared/blob"
	"github.com/cuongbtq/glue-pipeline/shared/database"
	"github.com/cuongbtq/glue-pipeline/shared/logger"
	"github.com/cuongbtq/glue-pipeline/shared/rabbitmq"
)

// ConfigDir holds one configuration file per environment
const ConfigDir = "configs"

// ConfigFlag registers -config on fs. An empty value selects
// configs/<PIPELINE_ENV>.yaml.
func ConfigFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to configuration file (default configs/$"+config.EnvVar+".yaml)")
}

// LoadConfig loads path, or the environment file when path is empty
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.Path(ConfigDir, os.Getenv(config.EnvVar))
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Logger initializes and configures the application logger
func Logger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// Names resolves every resource name of the deployment
func Names(cfg *config.Config) naming.Names {
	return naming.Resolve(naming.Prefixes{
		Job:          cfg.Job.NamePrefix,
		StateMachine: cfg.Workflow.NamePrefix,
		ScheduleRule: cfg.Schedule.NamePrefix,
		JobRole:      cfg.Job.RolePrefix,
		WorkflowRole: cfg.Workflow.RolePrefix,
	}, cfg.Deployment.Account, cfg.Deployment.Region, cfg.Deployment.Environment)
}

// Schema is every table the services use
func Schema() []string {
	var stmts []string
	stmts = append(stmts, jobstorage.Schema...)
	stmts = append(stmts, wfstorage.Schema...)
	stmts = append(stmts, dqstorage.Schema...)
	return stmts
}

// Database opens the database and applies the schema
func Database(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	if cfg.Driver == database.DriverSQLite {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	client, err := database.NewClient(&database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := client.Migrate(ctx, Schema()...); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// RabbitMQ initializes the RabbitMQ client
func RabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}, logger)
}

// BlobStore opens the object store holding source tables and job output
func BlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			Region:       cfg.Deployment.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
	case "file", "":
		return blob.NewFileStore(cfg.Storage.Root), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// Catalog builds the table catalog from configuration
func Catalog(cfg *config.CatalogConfig) (*catalog.Catalog, error) {
	tables := make([]catalog.Table, len(cfg.Tables))
	for i, t := range cfg.Tables {
		tables[i] = catalog.Table{
			Database: t.Database,
			Name:     t.Table,
			Location: t.Location,
			Format:   t.Format,
		}
	}
	return catalog.New(tables...)
}

// Script builds the transformation. Quality results go to the results table
// when db is set.
func Script(cfg *config.Config, store blob.Store, cat *catalog.Catalog, db *database.Client, logger *slog.Logger) *transform.Script {
	var publisher transform.ResultPublisher
	if db != nil {
		publisher = dqstorage.NewResultStore(db.GetDB(), logger)
	}

	return transform.NewScript(store, cat, transform.ComplaintsMappings(), transform.QualityOptions{
		Ruleset:           cfg.Quality.Ruleset,
		EvaluationContext: cfg.Quality.EvaluationContext,
		PublishResults:    cfg.Quality.PublishResults,
	}, publisher, logger)
}

// Notifier selects the failure notification backend
func Notifier(ctx context.Context, cfg *config.Config, rabbit *rabbitmq.Client, logger *slog.Logger) (notify.Notifier, error) {
	switch cfg.Notification.Backend {
	case "sns":
		return notify.NewSNSNotifier(ctx, cfg.Deployment.Region, logger)
	case "rabbitmq":
		if rabbit == nil {
			return nil, fmt.Errorf("rabbitmq notification backend needs a broker connection")
		}
		return notify.NewRabbitMQNotifier(rabbit, cfg.Notification.RoutingKey, logger), nil
	case "log", "":
		return notify.NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notification backend: %s", cfg.Notification.Backend)
	}
}

// WorkflowDefinition builds the state machine of the deployment
func WorkflowDefinition(cfg *config.Config, names naming.Names) workflow.Definition {
	return workflow.NewDefinition(workflow.Params{
		Name:    names.StateMachine,
		JobName: names.Job,
		Topic:   cfg.Notification.Topic,
		Subject: cfg.Notification.Subject,
		Retry: workflow.Retrier{
			IntervalSeconds: int(cfg.Workflow.Retry.Interval / time.Second),
			MaxAttempts:     cfg.Workflow.Retry.MaxAttempts,
			BackoffRate:     cfg.Workflow.Retry.BackoffRate,
		},
		Timeout: cfg.Workflow.Timeout,
	})
}
