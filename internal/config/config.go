package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvVar selects the environment specific configuration file
	EnvVar = "PIPELINE_ENV"
	// DefaultEnvironment is used when EnvVar is unset
	DefaultEnvironment = "dev"
)

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `yaml:"app"`
	Deployment   DeploymentConfig   `yaml:"deployment"`
	Logging      LoggingConfig      `yaml:"logging"`
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Storage      StorageConfig      `yaml:"storage"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Job          JobConfig          `yaml:"job"`
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Notification NotificationConfig `yaml:"notification"`
	Quality      QualityConfig      `yaml:"quality"`
	Worker       WorkerConfig       `yaml:"worker"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// DeploymentConfig is the identity every resource name is derived from
type DeploymentConfig struct {
	Account     string `yaml:"account"`
	Region      string `yaml:"region"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQL connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// StorageConfig selects the object store backing source and output paths
type StorageConfig struct {
	Backend      string `yaml:"backend"` // file, s3
	Root         string `yaml:"root"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// CatalogConfig lists the source tables known to the pipeline
type CatalogConfig struct {
	Tables []CatalogTable `yaml:"tables"`
}

// CatalogTable maps a database/table pair onto stored records
type CatalogTable struct {
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	Location string `yaml:"location"`
	Format   string `yaml:"format"`
}

// JobConfig declares the transformation job
type JobConfig struct {
	NamePrefix        string        `yaml:"name_prefix"`
	RolePrefix        string        `yaml:"role_prefix"`
	Script            string        `yaml:"script"`
	GlueVersion       string        `yaml:"glue_version"`
	WorkerType        string        `yaml:"worker_type"`
	NumberOfWorkers   int           `yaml:"number_of_workers"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`
	Timeout           time.Duration `yaml:"timeout"`
	EnableMetrics     bool          `yaml:"enable_metrics"`
	EnableSparkUI     bool          `yaml:"enable_spark_ui"`
	Database          string        `yaml:"database"`
	Table             string        `yaml:"table"`
	OutputPath        string        `yaml:"output_path"`
	Dispatch          string        `yaml:"dispatch"` // local, rabbitmq
}

// WorkflowConfig declares the state machine around the job
type WorkflowConfig struct {
	NamePrefix      string        `yaml:"name_prefix"`
	RolePrefix      string        `yaml:"role_prefix"`
	Timeout         time.Duration `yaml:"timeout"`
	NotifyOnTimeout bool          `yaml:"notify_on_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	Retry           RetryConfig   `yaml:"retry"`
}

// RetryConfig is the retry policy of the job task
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
	BackoffRate float64       `yaml:"backoff_rate"`
}

// ScheduleConfig declares the time based trigger
type ScheduleConfig struct {
	NamePrefix string `yaml:"name_prefix"`
	Expression string `yaml:"expression"`
	Enabled    bool   `yaml:"enabled"`
}

// NotificationConfig declares the failure notification sink
type NotificationConfig struct {
	Backend    string `yaml:"backend"` // log, rabbitmq, sns
	Topic      string `yaml:"topic"`
	Subject    string `yaml:"subject"`
	RoutingKey string `yaml:"routing_key"`
}

// QualityConfig declares the data quality evaluation of the job
type QualityConfig struct {
	Ruleset            string `yaml:"ruleset"`
	EvaluationContext  string `yaml:"evaluation_context"`
	PublishResults     bool   `yaml:"publish_results"`
	PublishingStrategy string `yaml:"publishing_strategy"`
	ObservationScope   string `yaml:"observation_scope"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Path returns the configuration file for an environment
func Path(dir, environment string) string {
	if environment == "" {
		environment = DefaultEnvironment
	}
	return filepath.Join(dir, environment+".yaml")
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the process environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Default returns the configuration values used when a file leaves them out
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "glue-pipeline", Environment: DefaultEnvironment},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "postgres", SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5},
		Storage:  StorageConfig{Backend: "file", Root: "data"},
		Job: JobConfig{
			NamePrefix:        "json-to-pq-",
			RolePrefix:        "glue-job-role-",
			Script:            "json-to-pq",
			GlueVersion:       "5.0",
			WorkerType:        "G.1X",
			NumberOfWorkers:   2,
			MaxConcurrentRuns: 1,
			Timeout:           time.Hour,
			EnableMetrics:     true,
			EnableSparkUI:     true,
			Dispatch:          "local",
		},
		Workflow: WorkflowConfig{
			NamePrefix:      "STF-Glue-json-to-pq-",
			RolePrefix:      "step-function-role-",
			Timeout:         2 * time.Hour,
			NotifyOnTimeout: true,
			PollInterval:    5 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				Interval:    10 * time.Second,
				BackoffRate: 1.0,
			},
		},
		Schedule: ScheduleConfig{
			NamePrefix: "STF-Hourly-Rule-",
			Expression: "cron(20 * * * ? *)",
			Enabled:    true,
		},
		Notification: NotificationConfig{
			Backend:    "log",
			Subject:    "Glue Job Status",
			RoutingKey: "pipeline.notifications",
		},
		Quality: QualityConfig{
			Ruleset:            "Rules = [ RowCount > 0 ]",
			EvaluationContext:  "EvaluateDataQuality_node1",
			PublishResults:     true,
			PublishingStrategy: "BEST_EFFORT",
			ObservationScope:   "ALL",
		},
		Worker: WorkerConfig{
			Concurrency:       1,
			HeartbeatInterval: 30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
	}
}

// Validate checks the sections shared by every service
func (c *Config) Validate() error {
	if c.Deployment.Account == "" {
		return fmt.Errorf("deployment account is required")
	}

	if c.Deployment.Region == "" {
		return fmt.Errorf("deployment region is required")
	}

	if c.Deployment.Environment == "" {
		return fmt.Errorf("deployment environment is required")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Job.Database == "" || c.Job.Table == "" {
		return fmt.Errorf("job database and table are required")
	}

	if c.Job.OutputPath == "" {
		return fmt.Errorf("job output_path is required")
	}

	if c.Job.NumberOfWorkers <= 0 {
		return fmt.Errorf("job number_of_workers must be greater than 0")
	}

	if c.Job.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("job max_concurrent_runs must be greater than 0")
	}

	switch c.Job.Dispatch {
	case "local":
	case "rabbitmq":
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid job dispatch: %q (must be local or rabbitmq)", c.Job.Dispatch)
	}

	switch c.Storage.Backend {
	case "file", "s3":
	default:
		return fmt.Errorf("invalid storage backend: %q (must be file or s3)", c.Storage.Backend)
	}

	for _, t := range c.Catalog.Tables {
		if t.Database == "" || t.Table == "" || t.Location == "" {
			return fmt.Errorf("catalog tables need database, table and location")
		}
	}

	return nil
}

// ValidateServiceConfig checks the sections used by the pipeline service
func (c *Config) ValidateServiceConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Workflow.Retry.MaxAttempts < 0 {
		return fmt.Errorf("workflow retry max_attempts must not be negative")
	}

	if c.Workflow.Retry.BackoffRate < 1.0 {
		return fmt.Errorf("workflow retry backoff_rate must be at least 1.0")
	}

	if c.Workflow.Timeout <= 0 {
		return fmt.Errorf("workflow timeout must be greater than 0")
	}

	if c.Workflow.PollInterval <= 0 {
		return fmt.Errorf("workflow poll_interval must be greater than 0")
	}

	if c.Schedule.Enabled && c.Schedule.Expression == "" {
		return fmt.Errorf("schedule expression is required when the schedule is enabled")
	}

	switch c.Notification.Backend {
	case "log":
	case "rabbitmq":
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	case "sns":
		if c.Notification.Topic == "" {
			return fmt.Errorf("notification topic is required for sns")
		}
	default:
		return fmt.Errorf("invalid notification backend: %q (must be log, rabbitmq or sns)", c.Notification.Backend)
	}

	if c.Notification.Subject == "" {
		return fmt.Errorf("notification subject is required")
	}

	return nil
}

// ValidateWorkerConfig checks the sections used by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}

		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	default:
		return fmt.Errorf("invalid database driver: %q (must be postgres or sqlite3)", c.Database.Driver)
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
