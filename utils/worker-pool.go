package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs a fixed number of goroutines over a job queue. Results
// arrive in completion order.
type WorkerPool[J any, R any] struct {
	NumWorkers int
	JobQueue   chan J
	Results    chan R
	group      errgroup.Group
	started    bool
	closed     bool
	mu         sync.Mutex
}

// NewWorkerPool creates a pool; numWorkers <= 0 means one per CPU.
func NewWorkerPool[J any, R any](numWorkers int, jobBufferSize int, resultBufferSize int) *WorkerPool[J, R] {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &WorkerPool[J, R]{
		NumWorkers: numWorkers,
		JobQueue:   make(chan J, jobBufferSize),
		Results:    make(chan R, resultBufferSize),
	}
}

// StartWorkers starts the worker goroutines. Workers stop taking jobs once
// ctx is done; a job already running is not interrupted.
func (wp *WorkerPool[J, R]) StartWorkers(ctx context.Context, workFunc func(context.Context, J) R) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return
	}
	wp.started = true

	for i := 0; i < wp.NumWorkers; i++ {
		wp.group.Go(func() error {
			wp.worker(ctx, workFunc)
			return nil
		})
	}
}

func (wp *WorkerPool[J, R]) worker(ctx context.Context, workFunc func(context.Context, J) R) {
	for {
		// select picks randomly between ready cases; a done context must
		// win over a queued job.
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.JobQueue:
			if !ok {
				return
			}
			wp.Results <- workFunc(ctx, job)
		}
	}
}

func (wp *WorkerPool[J, R]) SubmitJob(job J) {
	wp.JobQueue <- job
}

// Finish closes the job queue and closes Results once every worker has
// returned, so callers can range over Results.
func (wp *WorkerPool[J, R]) Finish() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.JobQueue)
	go func() {
		_ = wp.group.Wait()
		close(wp.Results)
	}()
}

// ProgressState is a snapshot of a ProgressTracker.
type ProgressState struct {
	Processed    int64
	Total        int64
	Overlaps     int64
	Elapsed      time.Duration
	AvgPerRecord time.Duration
	ETA          time.Duration
}

func (s ProgressState) String() string {
	return fmt.Sprintf("Processed %d/%d records. Total Overlaps: %d. Elapsed Time: %.2f seconds. Estimated Time Remaining: %.2f seconds",
		s.Processed, s.Total, s.Overlaps, s.Elapsed.Seconds(), s.ETA.Seconds())
}

// ProgressTracker aggregates processed and overlap counts for a run.
type ProgressTracker struct {
	Total     int64
	Processed int64
	Overlaps  int64
	StartTime time.Time
	Name      string
	now       func() time.Time
	mu        sync.Mutex
}

func NewProgressTracker(total int64, name string) *ProgressTracker {
	return newProgressTracker(total, name, time.Now)
}

func newProgressTracker(total int64, name string, now func() time.Time) *ProgressTracker {
	return &ProgressTracker{
		Total:     total,
		StartTime: now(),
		Name:      name,
		now:       now,
	}
}

// Advance adds processed records and overlaps and returns the new state.
func (pt *ProgressTracker) Advance(processed int64, overlaps int64) ProgressState {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.Processed += processed
	pt.Overlaps += overlaps
	return pt.stateLocked()
}

func (pt *ProgressTracker) State() ProgressState {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.stateLocked()
}

func (pt *ProgressTracker) stateLocked() ProgressState {
	elapsed := pt.now().Sub(pt.StartTime)
	var avg time.Duration
	if pt.Processed > 0 {
		avg = elapsed / time.Duration(pt.Processed)
	}
	var eta time.Duration
	if avg > 0 {
		remaining := pt.Total - pt.Processed
		eta = time.Duration(remaining) * avg
	}
	return ProgressState{
		Processed:    pt.Processed,
		Total:        pt.Total,
		Overlaps:     pt.Overlaps,
		Elapsed:      elapsed,
		AvgPerRecord: avg,
		ETA:          eta,
	}
}

// ParallelProcessor fans items out to a WorkerPool and hands each result
// to onResult as soon as it completes.
type ParallelProcessor struct {
	NumWorkers int
}

func NewParallelProcessor(numWorkers int) *ParallelProcessor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &ParallelProcessor{
		NumWorkers: numWorkers,
	}
}

// ProcessAll submits every item up front and calls onResult on the
// caller's goroutine once per completed item. It returns ctx.Err() if the
// context ended before all items ran.
func ProcessAll[J any, R any](ctx context.Context, pp *ParallelProcessor, items []J,
	workFunc func(context.Context, J) R,
	onResult func(R)) error {

	if len(items) == 0 {
		return nil
	}

	wp := NewWorkerPool[J, R](pp.NumWorkers, len(items), len(items))
	wp.StartWorkers(ctx, workFunc)

	for _, item := range items {
		wp.SubmitJob(item)
	}
	wp.Finish()

	completed := 0
	for result := range wp.Results {
		onResult(result)
		completed++
	}

	if completed < len(items) {
		return ctx.Err()
	}
	return nil
}
