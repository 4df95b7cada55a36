package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linebroker/internal/engine/orchestrator"
)

type recorder struct {
	mu      sync.Mutex
	calls   int
	reports []*orchestrator.SweepReport
	err     error
}

func (r *recorder) sweep(_ context.Context, _ time.Time, _ int) (*orchestrator.SweepReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.reports) == 0 {
		return &orchestrator.SweepReport{}, nil
	}
	next := r.reports[0]
	r.reports = r.reports[1:]
	return next, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_DrainsFullBatches(t *testing.T) {
	rec := &recorder{reports: []*orchestrator.SweepReport{
		{Expired: 2},
		{RentalsExpired: 2},
		{Expired: 1},
	}}
	s := NewSweeper(testLogger(), rec.sweep, time.Hour, 2)

	s.drain(context.Background())

	assert.Equal(t, 3, rec.count())
}

func TestSweeper_StopsOnError(t *testing.T) {
	rec := &recorder{err: errors.New("db down")}
	s := NewSweeper(testLogger(), rec.sweep, time.Hour, 2)

	s.drain(context.Background())

	assert.Equal(t, 1, rec.count())
}

func TestSweeper_StartTicksUntilCancel(t *testing.T) {
	rec := &recorder{}
	s := NewSweeper(testLogger(), rec.sweep, 5*time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
