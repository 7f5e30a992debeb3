package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/glue-pipeline/internal/bootstrap"
	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/internal/transform"
	"github.com/cuongbtq/glue-pipeline/shared/database"
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
	jobName := flag.String("JOB_NAME", "", "Job name")
	dbName := flag.String("dbname", "", "Source database")
	table := flag.String("table", "", "Source table")
	outputPath := flag.String("outputpath", "", "Output location")
	results := flag.Bool("publish-results", false, "Store data quality results in the database")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	opts := transform.Options{
		JobName:    *jobName,
		RunID:      domain.NewRunID(),
		Database:   *dbName,
		Table:      *table,
		OutputPath: *outputPath,
	}
	if opts.JobName == "" {
		opts.JobName = bootstrap.Names(cfg).Job
	}
	if opts.Database == "" || opts.Table == "" || opts.OutputPath == "" {
		return fmt.Errorf("--dbname, --table and --outputpath are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.BlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	cat, err := bootstrap.Catalog(&cfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}

	var dbClient *database.Client
	if *results {
		dbClient, err = bootstrap.Database(ctx, &cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()
	}

	script := bootstrap.Script(cfg, store, cat, dbClient, appLogger.Logger)

	summary, err := script.Run(ctx, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}

	appLogger.Info("Transformation finished",
		slog.String("run_id", opts.RunID),
		slog.String("output", summary.Output),
	)

	return nil
}
