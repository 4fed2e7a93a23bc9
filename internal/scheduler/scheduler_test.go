package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Add(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Period: time.Second, Run: noop}), "missing name")
	assert.Error(t, s.Add(Job{Name: "a", Run: noop}), "missing period")
	assert.Error(t, s.Add(Job{Name: "a", Period: time.Second}), "missing run")
	require.NoError(t, s.Add(Job{Name: "a", Period: time.Second, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Period: time.Second, Run: noop}), "duplicate name")

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background()) //nolint:errcheck

	assert.Error(t, s.Add(Job{Name: "b", Period: time.Second, Run: noop}), "add after start")
	assert.Error(t, s.Start(context.Background()), "double start")
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Add(Job{
		Name:       "tick",
		Period:     10 * time.Millisecond,
		RunOnStart: true,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after stop")

	stats, ok := s.Stats("tick")
	require.True(t, ok)
	assert.Equal(t, int64(after), stats.Runs)
	assert.Zero(t, stats.Failures)
}

func TestScheduler_FailuresAndPanicsDoNotStopJob(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Add(Job{
		Name:   "flaky",
		Period: 5 * time.Millisecond,
		Run: func(context.Context) error {
			n := runs.Add(1)
			if n == 1 {
				panic("boom")
			}
			return errors.New("persistence unavailable")
		},
	}))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	stats, _ := s.Stats("flaky")
	assert.Equal(t, stats.Runs, stats.Failures)
	assert.Equal(t, "persistence unavailable", stats.LastError)
}

func TestScheduler_TimeoutCancelsRun(t *testing.T) {
	s := New(nil)
	errs := make(chan error, 1)
	require.NoError(t, s.Add(Job{
		Name:       "slow",
		Period:     time.Hour,
		Timeout:    10 * time.Millisecond,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			errs <- ctx.Err()
			return ctx.Err()
		},
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background()) //nolint:errcheck

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("run was not cancelled by its timeout")
	}
}

func TestScheduler_StopHonoursContext(t *testing.T) {
	s := New(nil)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Add(Job{
		Name:       "stuck",
		Period:     time.Hour,
		RunOnStart: true,
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))
	require.NoError(t, s.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Stop(context.Background()))
}
