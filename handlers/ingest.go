package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bsaid97/go-polygon-overlap/store"
)

type IngestOptions struct {
	// Limit caps how many array entries are read; <= 0 reads them all.
	Limit int
	// Path is the dotted attribute path of the coordinates inside an
	// entry, e.g. "q461geo.coordinates".
	Path     string
	Logger   *slog.Logger
	OnInsert func(inserted int)
}

type IngestSummary struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

func IngestFile(ctx context.Context, backend store.Backend, path string, opts IngestOptions) (IngestSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Ingest(ctx, backend, f, opts)
}

// Ingest reads a JSON array and stores the coordinates of each entry as a
// single-field record. Field names count up from "1" over inserted
// records only, so every record carries a distinct field name.
func Ingest(ctx context.Context, backend store.Backend, r io.Reader, opts IngestOptions) (IngestSummary, error) {
	var summary IngestSummary
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var entries []any
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return summary, fmt.Errorf("decode input: %w", err)
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	path := strings.Split(opts.Path, ".")

	err := store.With(ctx, backend, func(s store.RecordStore) error {
		writer, ok := s.(store.RecordWriter)
		if !ok {
			return fmt.Errorf("store does not accept inserts")
		}

		fieldCount := 1
		for i, entry := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary.Read++

			coordinates := lookupPath(entry, path)
			if isEmptyPayload(coordinates) {
				summary.Skipped++
				logger.Debug("entry has no coordinates", "entry", i, "path", opts.Path)
				continue
			}

			field := strconv.Itoa(fieldCount)
			if _, err := writer.InsertRecord(ctx, map[string]any{field: coordinates}); err != nil {
				return fmt.Errorf("insert entry %d: %w", i, err)
			}
			fieldCount++
			summary.Inserted++
			if opts.OnInsert != nil {
				opts.OnInsert(summary.Inserted)
			}
		}
		return nil
	})

	logger.Info("ingest finished", "read", summary.Read, "inserted", summary.Inserted, "skipped", summary.Skipped)
	return summary, err
}

func lookupPath(v any, path []string) any {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}
