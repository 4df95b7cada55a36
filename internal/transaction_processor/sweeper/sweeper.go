// Package sweeper runs the periodic expiry sweep in the processor.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/linebroker/internal/engine/orchestrator"
)

// SweepFunc is orchestrator.Orchestrator.SweepDue
type SweepFunc func(ctx context.Context, now time.Time, batch int) (*orchestrator.SweepReport, error)

// Sweeper calls SweepFunc on a fixed interval
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(logger *slog.Logger, sweep SweepFunc, interval time.Duration, batch int) *Sweeper {
	return &Sweeper{
		sweep:    sweep,
		interval: interval,
		batch:    batch,
		logger:   logger.With("component", "sweeper"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start sweeps once immediately and then every interval until ctx is done.
// A sweep that returns a full batch is followed by another one right away.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting sweeper", "interval", s.interval.String(), "batch", s.batch)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.drain(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) drain(ctx context.Context) {
	for ctx.Err() == nil {
		report, err := s.sweep(ctx, s.now(), s.batch)
		if err != nil {
			s.logger.Error("Sweep failed", "error", err)
			return
		}
		if !full(report, s.batch) {
			return
		}
	}
}

// full reports whether any of the sweep's queries hit the batch limit
func full(r *orchestrator.SweepReport, batch int) bool {
	if batch <= 0 {
		return false
	}
	verifications := r.Completed + r.Expired
	return verifications >= batch || r.RentalsExpired >= batch || r.Failed >= batch
}
