package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/bsaid97/go-polygon-overlap/utils"
	"github.com/twpayne/go-geos"
)

// ChunkOptions is the per-run configuration every chunk worker receives.
type ChunkOptions struct {
	FieldNames []string
	Threshold  float64
	// SkipSelf drops the comparison of a record with itself. Off by
	// default: every record is compared with the whole population.
	SkipSelf bool
	// UseIndex skips targets whose bounding boxes miss every source
	// polygon. Results are identical to the full sweep.
	UseIndex  bool
	Precision int
	Logger    *slog.Logger
}

type ChunkResult struct {
	Index       int
	Size        int
	Processed   int
	Invalid     int
	Events      []OverlapEvent
	Diagnostics *Diagnostics
	Duration    time.Duration
	// Err is set when the chunk could not run at all, e.g. the store handle
	// failed to open, or the context ended mid-chunk.
	Err error
}

// ProcessChunk compares every record of chunk against the full record
// population, writing overlap and invalid logs back as it goes. It opens
// its own store handle and GEOS context. Errors never escape: they end up
// in the result's Diagnostics.
func ProcessChunk(ctx context.Context, backend store.Backend, chunk Chunk, opts ChunkOptions) ChunkResult {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("chunk", chunk.Index)

	result := ChunkResult{
		Index:       chunk.Index,
		Size:        len(chunk.Records),
		Diagnostics: &Diagnostics{},
	}

	w := &chunkWorker{
		opts:    opts,
		parser:  NewParser(geos.NewContext(), opts.FieldNames, opts.Precision),
		diags:   result.Diagnostics,
		logger:  logger,
		invalid: make(map[string]bool),
	}

	err := store.With(ctx, backend, func(s store.RecordStore) error {
		w.store = s
		for _, source := range chunk.Records {
			if err := ctx.Err(); err != nil {
				return err
			}
			events, derr := w.processSource(ctx, source)
			if derr != nil && ctx.Err() != nil {
				// interrupted, not a failure of this record
				result.Events = append(result.Events, events...)
				return ctx.Err()
			}
			result.Processed++
			result.Events = append(result.Events, events...)
			if derr != nil {
				logger.Warn("record skipped", "record_id", derr.RecordID, "kind", derr.Kind.String(), "error", derr.Err)
				result.Diagnostics.Add(derr)
			}
		}
		return nil
	})
	if err != nil {
		result.Err = err
		logger.Error("chunk aborted", "error", err, "processed", result.Processed)
		kind := StoreError
		if isContextError(err) {
			kind = UnexpectedError
		}
		for _, r := range chunk.Records[result.Processed:] {
			result.Diagnostics.Add(newError(kind, r.ID, "", err))
		}
	}

	result.Invalid = w.invalidSources
	result.Duration = time.Since(start)
	RecordsProcessedTotal.Add(float64(result.Processed))
	OverlapsTotal.Add(float64(len(result.Events)))
	ChunkDurationSeconds.Observe(result.Duration.Seconds())
	return result
}

type chunkWorker struct {
	opts   ChunkOptions
	parser *Parser
	store  store.RecordStore
	diags  *Diagnostics
	logger *slog.Logger
	// invalid holds ids this worker already marked invalid, so a bad
	// target is written once per chunk rather than once per source.
	invalid        map[string]bool
	invalidSources int
}

// processSource runs one source record against the population. Any panic
// or store failure ends this record only.
func (w *chunkWorker) processSource(ctx context.Context, source store.GeometryRecord) (events []OverlapEvent, derr *DetectionError) {
	defer func() {
		if r := recover(); r != nil {
			derr = newError(UnexpectedError, source.ID, "", fmt.Errorf("panic: %v", r))
		}
	}()

	sourcePolygons := w.parser.ParseRecord(source, w.diags)
	defer destroyPolygons(sourcePolygons)

	if len(sourcePolygons) == 0 {
		w.invalidSources++
		InvalidRecordsTotal.Inc()
		w.diags.Add(invalidRecordError(source.ID))
		if err := w.markInvalid(ctx, source.ID); err != nil {
			return nil, newError(StoreError, source.ID, "", err)
		}
		return nil, nil
	}

	population, err := w.store.FindAll(ctx)
	if err != nil {
		return nil, newError(StoreError, source.ID, "", fmt.Errorf("fetch population: %w", err))
	}

	targets := make([][]ParsedPolygon, len(population))
	for i, target := range population {
		targets[i] = w.parser.ParseRecord(target, w.diags)
		if len(targets[i]) == 0 {
			if err := w.markInvalid(ctx, target.ID); err != nil {
				w.diags.Add(newError(StoreError, target.ID, "", err))
			}
		}
	}
	defer func() {
		for _, t := range targets {
			destroyPolygons(t)
		}
	}()

	var candidates map[int]struct{}
	if w.opts.UseIndex {
		candidates = candidateTargets(sourcePolygons, targets)
	}

	for i, target := range population {
		if w.opts.SkipSelf && target.ID == source.ID {
			continue
		}
		if candidates != nil {
			if _, ok := candidates[i]; !ok {
				continue
			}
		}
		if len(targets[i]) == 0 {
			continue
		}

		err := evaluatePairs(sourcePolygons, targets[i], w.opts.Threshold, w.diags, func(event OverlapEvent) error {
			events = append(events, event)
			entry := store.OverlapLog(event.SourceID, event.TargetID, event.Percentage)
			return w.store.UpdateLog(ctx, source.ID, entry)
		})
		if err != nil {
			return events, newError(StoreError, source.ID, "", fmt.Errorf("write overlap log: %w", err))
		}
	}
	return events, nil
}

func (w *chunkWorker) markInvalid(ctx context.Context, id string) error {
	if w.invalid[id] {
		return nil
	}
	if err := w.store.UpdateLog(ctx, id, store.InvalidLog(id, invalidRecordReason)); err != nil {
		return err
	}
	w.invalid[id] = true
	return nil
}

// evaluatePairs runs every (source, target) polygon pair. A topology
// failure skips that pair only. An error from onEvent stops the loop.
func evaluatePairs(sources, targets []ParsedPolygon, threshold float64, diags *Diagnostics, onEvent func(OverlapEvent) error) error {
	for _, sp := range sources {
		for _, tp := range targets {
			event, derr := EvaluatePair(sp, tp, threshold)
			if derr != nil {
				diags.Add(derr)
				continue
			}
			if event == nil {
				continue
			}
			if err := onEvent(*event); err != nil {
				return err
			}
		}
	}
	return nil
}

// candidateTargets returns the population positions whose polygons have a
// bounding box touching some source polygon's bounding box.
func candidateTargets(sources []ParsedPolygon, targets [][]ParsedPolygon) map[int]struct{} {
	var geoms []*geos.Geom
	for _, t := range targets {
		for _, p := range t {
			geoms = append(geoms, p.Geom)
		}
	}

	index := utils.NewSpatialIndex(utils.MeanExtent(geoms))
	for i, t := range targets {
		for _, p := range t {
			// A polygon without bounds cannot be indexed; the pair check
			// would fail on it anyway.
			_ = index.AddGeometry(p.Geom, i, p.RecordID)
		}
	}

	candidates := make(map[int]struct{})
	for _, sp := range sources {
		for i := range index.Candidates(sp.Geom) {
			candidates[i] = struct{}{}
		}
	}
	return candidates
}
