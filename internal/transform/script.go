package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/glue-pipeline/internal/catalog"
	"github.com/cuongbtq/glue-pipeline/shared/blob"
)

// Options are the resolved job arguments of one run.
type Options struct {
	JobName    string
	RunID      string
	Database   string
	Table      string
	OutputPath string
}

// QualityOptions configure the data quality evaluation.
type QualityOptions struct {
	Ruleset           string
	EvaluationContext string
	PublishResults    bool
}

// Summary describes a completed run.
type Summary struct {
	RowsRead    int            `json:"rows_read"`
	RowsWritten int            `json:"rows_written"`
	Output      string         `json:"output"`
	Quality     *QualityResult `json:"quality,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// Script is the json-to-parquet transformation.
type Script struct {
	store     blob.Store
	catalog   *catalog.Catalog
	mappings  []Mapping
	quality   QualityOptions
	publisher ResultPublisher
	logger    *slog.Logger
}

// NewScript creates the transformation. publisher may be nil.
func NewScript(
	store blob.Store,
	cat *catalog.Catalog,
	mappings []Mapping,
	quality QualityOptions,
	publisher ResultPublisher,
	logger *slog.Logger,
) *Script {
	return &Script{
		store:     store,
		catalog:   cat,
		mappings:  mappings,
		quality:   quality,
		publisher: publisher,
		logger:    logger,
	}
}

// Run reads the source table, maps it, evaluates the ruleset and writes the
// output. Any read, mapping or write error fails the run; the quality
// evaluation never does.
func (s *Script) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	logger := s.logger.With(
		slog.String("job_name", opts.JobName),
		slog.String("run_id", opts.RunID),
	)

	table, err := s.catalog.Lookup(opts.Database, opts.Table)
	if err != nil {
		return nil, err
	}

	output, err := blob.Parse(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("invalid output path: %w", err)
	}

	records, err := ReadRecords(ctx, s.store, table.Location)
	if err != nil {
		return nil, err
	}

	logger.Info("Source records read",
		slog.String("table", opts.Database+"."+opts.Table),
		slog.String("location", table.Location),
		slog.Int("records", len(records)),
	)

	frame, err := ApplyMapping(records, s.mappings)
	if err != nil {
		return nil, fmt.Errorf("failed to apply mapping: %w", err)
	}

	quality := s.evaluate(ctx, logger, opts, frame)

	data, err := EncodeParquet(frame)
	if err != nil {
		return nil, err
	}

	target := output.Join(OutputName(opts.RunID)).String()
	if err := s.store.Put(ctx, target, data); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	summary := &Summary{
		RowsRead:    len(records),
		RowsWritten: len(frame.Rows),
		Output:      target,
		Quality:     quality,
		Duration:    time.Since(start),
	}

	logger.Info("Transformation completed",
		slog.String("output", target),
		slog.Int("rows", summary.RowsWritten),
		slog.Duration("duration", summary.Duration),
	)

	return summary, nil
}

func (s *Script) evaluate(ctx context.Context, logger *slog.Logger, opts Options, frame *Frame) *QualityResult {
	if s.quality.Ruleset == "" {
		return nil
	}

	rs, err := ParseRuleset(s.quality.Ruleset)
	if err != nil {
		logger.Warn("Skipping data quality evaluation", slog.Any("error", err))
		return nil
	}

	result := Summarize(rs, rs.Evaluate(frame))
	result.ResultID = uuid.NewString()
	result.JobName = opts.JobName
	result.RunID = opts.RunID
	result.EvaluationContext = s.quality.EvaluationContext

	level := slog.LevelInfo
	if result.Failed > 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "Data quality evaluated",
		slog.String("ruleset", rs.Source),
		slog.Int("passed", result.Passed),
		slog.Int("failed", result.Failed),
		slog.Float64("score", result.Score),
	)

	if s.quality.PublishResults && s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, result); err != nil {
			logger.Warn("Failed to publish data quality results",
				slog.String("result_id", result.ResultID),
				slog.Any("error", err),
			)
		}
	}

	return result
}
