package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/bsaid97/go-polygon-overlap/config"
	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/bsaid97/go-polygon-overlap/utils"
	"github.com/google/uuid"
)

// Options configures one detection run.
type Options struct {
	Threshold   float64
	Concurrency int
	FieldNames  []string
	SkipSelf    bool
	UseIndex    bool
	Precision   int
	// Progress receives one line per completed chunk; nil disables it.
	Progress io.Writer
	Logger   *slog.Logger
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Threshold:   cfg.Detect.OverlapThreshold,
		Concurrency: cfg.Detect.Concurrency,
		FieldNames:  cfg.Detect.FieldNames(),
		SkipSelf:    cfg.Detect.SkipSelf,
		UseIndex:    cfg.Detect.UseIndex,
		Precision:   cfg.Detect.Precision,
	}
}

func (o Options) validate() error {
	if o.Threshold <= 0 || o.Threshold > 1 {
		return fmt.Errorf("overlap threshold must be in (0,1], got %v", o.Threshold)
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", o.Concurrency)
	}
	if len(o.FieldNames) == 0 {
		return fmt.Errorf("no field names to read geometries from")
	}
	return nil
}

// Summary is the outcome of a run.
type Summary struct {
	RunID       string         `json:"run_id"`
	Total       int            `json:"total_records"`
	Processed   int            `json:"processed_records"`
	Invalid     int            `json:"invalid_records"`
	Chunks      int            `json:"chunks"`
	Overlaps    int            `json:"total_overlaps"`
	Events      []OverlapEvent `json:"events"`
	Diagnostics []Diagnostic   `json:"diagnostics"`
	Elapsed     time.Duration  `json:"elapsed_ns"`
}

// DetectOverlaps fetches every record once, splits them into chunks and
// runs all chunks on a pool of opts.Concurrency workers. A failure to
// fetch the initial records is the only fatal error. Cancelling ctx stops
// chunks that have not started; the partial summary is returned with the
// context error.
func DetectOverlaps(ctx context.Context, backend store.Backend, opts Options) (*Summary, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", runID)

	var records []store.GeometryRecord
	err := store.With(ctx, backend, func(s store.RecordStore) error {
		var err error
		records, err = s.FindAll(ctx)
		return err
	})
	if err != nil {
		RunsTotal.WithLabelValues("failed").Inc()
		logger.Error("Error fetching records from store", "error", err)
		return nil, newError(StoreError, "", "", fmt.Errorf("fetch records: %w", err))
	}

	chunks := BuildChunks(records, opts.Concurrency)
	logger.Info("starting overlap detection",
		"records", len(records),
		"chunks", len(chunks),
		"concurrency", opts.Concurrency,
		"threshold", opts.Threshold)

	chunkOpts := ChunkOptions{
		FieldNames: opts.FieldNames,
		Threshold:  opts.Threshold,
		SkipSelf:   opts.SkipSelf,
		UseIndex:   opts.UseIndex,
		Precision:  opts.Precision,
		Logger:     logger,
	}

	tracker := utils.NewProgressTracker(int64(len(records)), "overlap")
	diags := &Diagnostics{}
	results := make([]ChunkResult, 0, len(chunks))

	runErr := utils.ProcessAll(ctx, utils.NewParallelProcessor(opts.Concurrency), chunks,
		func(ctx context.Context, chunk Chunk) ChunkResult {
			return ProcessChunk(ctx, backend, chunk, chunkOpts)
		},
		func(r ChunkResult) {
			results = append(results, r)
			diags.merge(r.Diagnostics)
			state := tracker.Advance(int64(r.Processed), int64(len(r.Events)))
			if opts.Progress != nil {
				fmt.Fprintln(opts.Progress, state.String())
			}
			logger.Info("chunk complete",
				"chunk", r.Index,
				"records", r.Size,
				"overlaps", len(r.Events),
				"diagnostics", r.Diagnostics.Len(),
				"duration", r.Duration)
		})

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	summary := &Summary{
		RunID:  runID,
		Total:  len(records),
		Chunks: len(chunks),
		Events: make([]OverlapEvent, 0),
	}
	for _, r := range results {
		summary.Processed += r.Processed
		summary.Invalid += r.Invalid
		summary.Events = append(summary.Events, r.Events...)
		if runErr == nil && isContextError(r.Err) {
			runErr = r.Err
		}
	}
	// Chunks that stop on cancellation still deliver a result, so the pool
	// alone does not see an interrupted run.
	if runErr == nil && summary.Processed < summary.Total {
		runErr = ctx.Err()
	}
	summary.Overlaps = len(summary.Events)
	summary.Diagnostics = diags.Entries()
	summary.Elapsed = tracker.State().Elapsed

	if runErr != nil {
		RunsTotal.WithLabelValues("cancelled").Inc()
		logger.Warn("overlap detection interrupted", "error", runErr, "processed", summary.Processed)
		return summary, runErr
	}

	RunsTotal.WithLabelValues("completed").Inc()
	logger.Info("overlap detection finished",
		"overlaps", summary.Overlaps,
		"invalid", summary.Invalid,
		"diagnostics", len(summary.Diagnostics),
		"elapsed", summary.Elapsed)
	return summary, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
