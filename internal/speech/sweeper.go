package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/havenapp/haven/internal/metrics"
)

// OutputSweeper deletes synthesized audio files older than a TTL.
type OutputSweeper struct {
	dir      string
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewOutputSweeper creates a sweeper for dir.
func NewOutputSweeper(dir string, ttl, interval time.Duration) *OutputSweeper {
	return &OutputSweeper{
		dir:      dir,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the sweeper.
func (s *OutputSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.logger.Info("speech output sweeper started", "dir", s.dir, "ttl", s.ttl, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("speech output sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(); err != nil {
				s.logger.Error("sweeping speech output", "error", err)
			}
		}
	}
}

// RunOnce removes expired regular files and returns how many were removed.
// A missing directory is not an error.
func (s *OutputSweeper) RunOnce() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading output dir: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing expired audio", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.SpeechFilesSwept.Add(float64(removed))
		s.logger.Debug("removed expired audio files", "count", removed)
	}
	return removed, nil
}
