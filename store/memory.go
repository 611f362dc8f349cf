package store

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Memory is an in-process backend used by tests and one-off runs. All
// handles share the same records.
type Memory struct {
	mu      sync.RWMutex
	records []GeometryRecord
	index   map[string]int
	seq     int

	// FindAllHook, when set, is called with the 1-based FindAll call count
	// and may fail that call.
	FindAllHook func(call int) error
	// UpdateLogHook, when set, may fail the update for id.
	UpdateLogHook func(id string) error

	findAllCalls atomic.Int64
	updateCalls  atomic.Int64
	opens        atomic.Int64
	closes       atomic.Int64
}

func NewMemory(fields ...map[string]any) *Memory {
	m := &Memory{index: make(map[string]int)}
	for _, f := range fields {
		m.insert(f)
	}
	return m
}

func (m *Memory) insert(fields map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := strconv.Itoa(m.seq)
	m.index[id] = len(m.records)
	m.records = append(m.records, GeometryRecord{ID: id, Fields: fields})
	return id
}

func (m *Memory) Open(ctx context.Context) (RecordStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.opens.Add(1)
	return &memoryHandle{m: m}, nil
}

func (m *Memory) Close() error { return nil }

// Log returns the current log of id, or nil.
func (m *Memory) Log(id string) *LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok || m.records[i].Log == nil {
		return nil
	}
	entry := *m.records[i].Log
	return &entry
}

// Handles reports how many handles were opened and closed.
func (m *Memory) Handles() (opened, closed int64) {
	return m.opens.Load(), m.closes.Load()
}

func (m *Memory) FindAllCalls() int64 { return m.findAllCalls.Load() }
func (m *Memory) UpdateCalls() int64  { return m.updateCalls.Load() }

type memoryHandle struct {
	m      *Memory
	closed atomic.Bool
}

func (h *memoryHandle) FindAll(ctx context.Context) ([]GeometryRecord, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	call := int(h.m.findAllCalls.Add(1))
	if h.m.FindAllHook != nil {
		if err := h.m.FindAllHook(call); err != nil {
			return nil, err
		}
	}

	h.m.mu.RLock()
	defer h.m.mu.RUnlock()
	out := make([]GeometryRecord, len(h.m.records))
	for i, r := range h.m.records {
		out[i] = GeometryRecord{ID: r.ID, Fields: r.Fields}
		if r.Log != nil {
			entry := *r.Log
			out[i].Log = &entry
		}
	}
	return out, nil
}

func (h *memoryHandle) UpdateLog(ctx context.Context, id string, entry LogEntry) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.m.updateCalls.Add(1)
	if h.m.UpdateLogHook != nil {
		if err := h.m.UpdateLogHook(id); err != nil {
			return err
		}
	}

	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	i, ok := h.m.index[id]
	if !ok {
		return ErrNotFound
	}
	h.m.records[i].Log = &entry
	return nil
}

func (h *memoryHandle) InsertRecord(ctx context.Context, fields map[string]any) (string, error) {
	if h.closed.Load() {
		return "", ErrClosed
	}
	return h.m.insert(fields), nil
}

func (h *memoryHandle) Close(ctx context.Context) error {
	if h.closed.Swap(true) {
		return ErrClosed
	}
	h.m.closes.Add(1)
	return nil
}
