package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

type scriptedAnalyzer struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
}

func (s *scriptedAnalyzer) Analyze(_ context.Context, experiment string) (domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, experiment)
	if err := s.errs[experiment]; err != nil {
		return domain.Report{}, err
	}
	return domain.Report{ID: "r-" + experiment, Experiment: experiment}, nil
}

func (s *scriptedAnalyzer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshAll(t *testing.T) {
	a := &scriptedAnalyzer{errs: map[string]error{
		"busy":   domain.ErrLockHeld,
		"broken": errors.New("mongo down"),
	}}
	var got []string
	r := NewRefresher(a, []string{"safety_areas", "busy", "broken", "velocity_scaling"}, time.Hour, testLogger(),
		func(_ context.Context, rep domain.Report) { got = append(got, rep.ID) })

	n := r.RefreshAll(context.Background())
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"r-safety_areas", "r-velocity_scaling"}, got)
	assert.Equal(t, []string{"safety_areas", "busy", "broken", "velocity_scaling"}, a.calls)
}

func TestRefreshAll_StopsWhenCanceled(t *testing.T) {
	a := &scriptedAnalyzer{}
	r := NewRefresher(a, []string{"a", "b"}, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, r.RefreshAll(ctx))
	assert.Empty(t, a.calls)
}

func TestRun_RefreshesOnTick(t *testing.T) {
	a := &scriptedAnalyzer{}
	r := NewRefresher(a, []string{"safety_areas"}, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return a.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
