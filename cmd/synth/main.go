package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/glue-pipeline/internal/bootstrap"
	"github.com/cuongbtq/glue-pipeline/internal/stack"
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
	outDir := flag.String("out", "build/stack", "Directory the documents are written to")
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

	docs, err := stack.Render(cfg)
	if err != nil {
		return err
	}

	paths, err := stack.Write(*outDir, docs)
	if err != nil {
		return err
	}

	for _, p := range paths {
		appLogger.Info("Wrote stack document", slog.String("path", p))
	}

	return nil
}
