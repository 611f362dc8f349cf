// Package store holds the geometry record model and the persistence
// backends the overlap engine reads from and writes logs back to.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bsaid97/go-polygon-overlap/config"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrClosed   = errors.New("store handle closed")
)

// GeometryRecord is one stored document. Fields maps a field name ("1",
// "2", ...) to its raw coordinate payload: rings of [x, y] pairs. Payloads
// stay untyped here; the parser decides what is well formed.
type GeometryRecord struct {
	ID     string
	Fields map[string]any
	Log    *LogEntry
}

// LogEntry replaces the record's log attribute on every write.
type LogEntry struct {
	RecordID          string  `json:"record_id"`
	OverlapWith       string  `json:"overlap_with,omitempty"`
	OverlapPercentage float64 `json:"overlap_percentage,omitempty"`
	Invalid           bool    `json:"invalid,omitempty"`
	Reason            string  `json:"reason,omitempty"`
}

func OverlapLog(sourceID, targetID string, percentage float64) LogEntry {
	return LogEntry{
		RecordID:          sourceID,
		OverlapWith:       targetID,
		OverlapPercentage: percentage,
	}
}

func InvalidLog(recordID, reason string) LogEntry {
	return LogEntry{
		RecordID: recordID,
		Invalid:  true,
		Reason:   reason,
	}
}

// RecordStore is a scoped handle on the store. FindAll must return records
// in the same order on every call.
type RecordStore interface {
	FindAll(ctx context.Context) ([]GeometryRecord, error)
	UpdateLog(ctx context.Context, id string, entry LogEntry) error
	Close(ctx context.Context) error
}

// RecordWriter is implemented by handles that accept new records.
type RecordWriter interface {
	InsertRecord(ctx context.Context, fields map[string]any) (string, error)
}

// Backend hands out independent handles; each chunk worker opens its own.
type Backend interface {
	Open(ctx context.Context) (RecordStore, error)
	Close() error
}

// Open picks a backend from the URI scheme.
func Open(cfg config.Store) (Backend, error) {
	uri := cfg.URI
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return NewMongo(cfg), nil
	case strings.HasPrefix(uri, "bolt://"):
		return OpenBolt(strings.TrimPrefix(uri, "bolt://"), cfg.Collection)
	case strings.HasPrefix(uri, "memory://"):
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unsupported store uri %q", uri)
}

// With opens a handle, runs fn and closes the handle on every exit path.
func With(ctx context.Context, b Backend, fn func(RecordStore) error) (err error) {
	s, err := b.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	return fn(s)
}
