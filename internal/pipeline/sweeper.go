package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// PendingProcessor submits pending entries for analysis. Implemented by Queue.
type PendingProcessor interface {
	ProcessPending(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically resubmits entries left unprocessed by earlier failures
// or a full queue.
type Sweeper struct {
	queue    PendingProcessor
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. An interval <= 0 disables Run.
func NewSweeper(queue PendingProcessor, interval time.Duration, batch int) *Sweeper {
	if batch <= 0 {
		batch = DefaultPendingBatch
	}
	return &Sweeper{
		queue:    queue,
		interval: interval,
		batch:    batch,
		logger:   slog.Default(),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("pending sweep failed", "error", err)
			}
		}
	}
}

// RunOnce submits one batch of pending entries.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.queue.ProcessPending(ctx, s.batch)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("resubmitted pending entries", "count", n)
	}
	return n, nil
}
