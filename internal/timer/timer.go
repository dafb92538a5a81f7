// Package timer runs a job at a fixed rate on its own goroutine.
//
// Iterations are scheduled against a running deadline, so a sleep that
// wakes late shortens the next one. An iteration that overruns the period is
// followed immediately by the next one and the deadline restarts from there;
// missed periods are never replayed.
package timer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chase3718/gesturebridge/internal/timeutil"
)

var (
	ErrAlreadyRunning = errors.New("timer already running")
	ErrNotRunning     = errors.New("timer not running")
)

// Job is one unit of periodic work. A returned error is logged and counted;
// it never stops the timer.
type Job func() error

// Stats is a snapshot of a timer's counters.
type Stats struct {
	Ticks    uint64
	Failures uint64
	Overruns uint64
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces the wall clock, for tests.
func WithClock(c timeutil.Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithLogger sets the logger used for job failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) { t.logger = l }
}

// Timer owns one goroutine that invokes a single job every period.
type Timer struct {
	name   string
	period time.Duration
	job    Job
	clock  timeutil.Clock
	logger *slog.Logger

	mu      sync.Mutex // serializes Start/Stop
	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	ticks    atomic.Uint64
	failures atomic.Uint64
	overruns atomic.Uint64
}

// New creates a stopped timer that will run job every period.
func New(name string, period time.Duration, job Job, opts ...Option) (*Timer, error) {
	if period <= 0 {
		return nil, fmt.Errorf("timer %q: period must be positive, got %s", name, period)
	}
	if job == nil {
		return nil, fmt.Errorf("timer %q: nil job", name)
	}
	t := &Timer{
		name:   name,
		period: period,
		job:    job,
		clock:  timeutil.RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewHz creates a stopped timer that runs job hz times per second.
func NewHz(name string, hz float64, job Job, opts ...Option) (*Timer, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("timer %q: rate must be positive, got %v Hz", name, hz)
	}
	return New(name, time.Duration(float64(time.Second)/hz), job, opts...)
}

// Name returns the name the timer logs under.
func (t *Timer) Name() string { return t.name }

// Period returns the target interval between invocations.
func (t *Timer) Period() time.Duration { return t.period }

// Running reports whether the timer goroutine is active.
func (t *Timer) Running() bool { return t.running.Load() }

// Stats returns the current counters.
func (t *Timer) Stats() Stats {
	return Stats{
		Ticks:    t.ticks.Load(),
		Failures: t.failures.Load(),
		Overruns: t.overruns.Load(),
	}
}

// Start launches the timer goroutine. Starting a running timer returns
// ErrAlreadyRunning. A stopped timer may be started again.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return fmt.Errorf("timer %q: %w", t.name, ErrAlreadyRunning)
	}
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.running.Store(true)
	go t.run(t.stopCh, t.doneCh)

	t.logger.Debug("timer: started", "timer", t.name, "period", t.period)
	return nil
}

// Stop asks the goroutine to exit once its current job returns and blocks
// until it has. It must not be called from inside the job.
func (t *Timer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running.Load() {
		return fmt.Errorf("timer %q: %w", t.name, ErrNotRunning)
	}
	close(t.stopCh)
	<-t.doneCh
	t.running.Store(false)

	t.logger.Debug("timer: stopped", "timer", t.name, "ticks", t.ticks.Load())
	return nil
}

func (t *Timer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	next := t.clock.Now()
	for {
		select {
		case <-stop:
			return
		default:
		}

		t.invoke()
		next = next.Add(t.period)
		now := t.clock.Now()
		wait := next.Sub(now)
		if wait <= 0 {
			// late: run again now and measure from here, no catch-up
			t.overruns.Add(1)
			next = now
			continue
		}

		select {
		case <-stop:
			return
		case <-t.clock.After(wait):
		}
	}
}

// invoke runs the job once, containing both errors and panics.
func (t *Timer) invoke() {
	tick := t.ticks.Add(1)
	defer func() {
		if r := recover(); r != nil {
			t.failures.Add(1)
			t.logger.Error("timer: job panicked", "timer", t.name, "tick", tick, "panic", r)
		}
	}()
	if err := t.job(); err != nil {
		t.failures.Add(1)
		t.logger.Error("timer: job failed", "timer", t.name, "tick", tick, "err", err)
	}
}

// StopAll stops every running timer concurrently and returns once all of
// their goroutines have exited. Timers that are not running are skipped.
func StopAll(timers ...*Timer) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, t := range timers {
		if t == nil {
			continue
		}
		wg.Add(1)
		go func(t *Timer) {
			defer wg.Done()
			if err := t.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return errors.Join(errs...)
}
