// Package scheduler runs named periodic jobs. Each job gets its own loop, so
// runs of one job never overlap while different jobs proceed independently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic task.
type Job struct {
	Name string
	// Period between the start of consecutive runs.
	Period time.Duration
	// Jitter delays each run by a random duration in [0, Jitter).
	Jitter time.Duration
	// Timeout bounds a single run. Zero means no deadline beyond Stop.
	Timeout time.Duration
	// RunOnStart runs the job once immediately instead of waiting a period.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Stats counts the outcomes of a job's runs.
type Stats struct {
	Runs      int64
	Failures  int64
	LastRunAt time.Time
	LastError string
}

type jobState struct {
	job      Job
	runs     atomic.Int64
	failures atomic.Int64

	mu        sync.Mutex
	lastRunAt time.Time
	lastError string
}

// Scheduler drives a fixed set of jobs between Start and Stop.
type Scheduler struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	jobs    []*jobState
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{log: log}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return errors.New("scheduler: job name is required")
	}
	if job.Period <= 0 {
		return fmt.Errorf("scheduler: job %q needs a positive period", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %q has no run function", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: cannot add job %q after start", job.Name)
	}
	for _, js := range s.jobs {
		if js.job.Name == job.Name {
			return fmt.Errorf("scheduler: duplicate job %q", job.Name)
		}
	}
	s.jobs = append(s.jobs, &jobState{job: job})
	return nil
}

// Start launches every registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler: already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, js := range s.jobs {
		s.wg.Add(1)
		go s.loop(js)
		s.log.Infow("job scheduled",
			"job", js.job.Name,
			"period", js.job.Period,
			"jitter", js.job.Jitter,
		)
	}
	return nil
}

// Stop cancels all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the counters for a job.
func (s *Scheduler) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, js := range s.jobs {
		if js.job.Name != name {
			continue
		}
		js.mu.Lock()
		defer js.mu.Unlock()
		return Stats{
			Runs:      js.runs.Load(),
			Failures:  js.failures.Load(),
			LastRunAt: js.lastRunAt,
			LastError: js.lastError,
		}, true
	}
	return Stats{}, false
}

func (s *Scheduler) loop(js *jobState) {
	defer s.wg.Done()

	ticker := time.NewTicker(js.job.Period)
	defer ticker.Stop()

	if js.job.RunOnStart {
		s.runOnce(js)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.waitJitter(js.job.Jitter) {
				return
			}
			s.runOnce(js)
		}
	}
}

// waitJitter sleeps for a random slice of jitter. It reports false if the
// scheduler stopped meanwhile.
func (s *Scheduler) waitJitter(jitter time.Duration) bool {
	if jitter <= 0 {
		return true
	}
	timer := time.NewTimer(rand.N(jitter))
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) runOnce(js *jobState) {
	ctx := s.ctx
	if js.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, js.job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(ctx, js.job.Run)
	js.runs.Add(1)

	js.mu.Lock()
	js.lastRunAt = start
	if err != nil {
		js.lastError = err.Error()
	} else {
		js.lastError = ""
	}
	js.mu.Unlock()

	if err != nil {
		js.failures.Add(1)
		s.log.Errorw("job failed",
			"job", js.job.Name,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	s.log.Debugw("job completed",
		"job", js.job.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func safeRun(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return run(ctx)
}
