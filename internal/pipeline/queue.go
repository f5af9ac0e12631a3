package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/havenapp/haven/internal/metrics"
	"github.com/havenapp/haven/internal/storage"
)

// Processor analyzes a single entry.
type Processor interface {
	Analyze(ctx context.Context, entryID string) (storage.Insight, error)
}

// PendingLister lists entries waiting for analysis. Implemented by storage.Store.
type PendingLister interface {
	PendingEntryIDs(ownerID string, limit int) ([]string, error)
}

// DefaultPendingBatch is used by ProcessPending when limit <= 0.
const DefaultPendingBatch = 50

// Stats is a snapshot of queue counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
	Depth     int   `json:"depth"`
}

// Queue is a bounded in-process work queue of entry ids served by a fixed
// number of workers. Submit never blocks.
type Queue struct {
	proc    Processor
	pending PendingLister
	workers int
	jobs    chan string
	g       errgroup.Group
	logger  *slog.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	mu       sync.Mutex
	started  bool
	closed   bool
	inflight int
	idle     chan struct{}
}

// NewQueue creates a Queue with the given worker count and capacity.
// Non-positive values default to 2 workers and 64 slots.
func NewQueue(proc Processor, pending PendingLister, workers, size int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if size <= 0 {
		size = 64
	}
	return &Queue{
		proc:    proc,
		pending: pending,
		workers: workers,
		jobs:    make(chan string, size),
		logger:  slog.Default(),
	}
}

// Start launches the workers. Analyses run under ctx, not under the
// context of whichever request submitted them.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.g.Go(func() error {
			for id := range q.jobs {
				metrics.QueueDepth.Set(float64(len(q.jobs)))
				q.process(ctx, id)
				q.finish()
			}
			return nil
		})
	}
}

// Submit enqueues an entry id. It returns false when the queue is full or closed.
func (q *Queue) Submit(entryID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- entryID:
		q.inflight++
		q.submitted.Add(1)
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		return false
	}
}

// ProcessPending submits up to limit unprocessed entries of every owner,
// oldest first, and returns how many were accepted. Entries submitted twice
// are analyzed once because only one claim on them can succeed.
func (q *Queue) ProcessPending(ctx context.Context, limit int) (int, error) {
	return q.ProcessPendingFor(ctx, "", limit)
}

// ProcessPendingFor is ProcessPending restricted to ownerID's entries.
func (q *Queue) ProcessPendingFor(ctx context.Context, ownerID string, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultPendingBatch
	}
	ids, err := q.pending.PendingEntryIDs(ownerID, limit)
	if err != nil {
		return 0, fmt.Errorf("listing pending entries: %w", err)
	}

	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if !q.Submit(id) {
			q.logger.Debug("queue full, stopping pending submission", "submitted", n, "pending", len(ids))
			break
		}
		n++
	}
	return n, nil
}

// WaitIdle blocks until every submitted id has been processed or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	if q.inflight == 0 {
		q.mu.Unlock()
		return nil
	}
	if q.idle == nil {
		q.idle = make(chan struct{})
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, lets the workers drain what is queued and
// waits for them to exit.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	return q.g.Wait()
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Skipped:   q.skipped.Load(),
		Depth:     len(q.jobs),
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	_, err := q.proc.Analyze(ctx, id)
	switch {
	case err == nil:
		q.completed.Add(1)
	case errors.Is(err, ErrNotClaimed), errors.Is(err, ErrStale):
		q.skipped.Add(1)
		q.logger.Debug("analysis skipped", "entry_id", id, "reason", err)
	default:
		q.failed.Add(1)
		q.logger.Warn("analysis failed", "entry_id", id, "error", err)
	}
}

func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	if q.inflight == 0 && q.idle != nil {
		close(q.idle)
		q.idle = nil
	}
}
