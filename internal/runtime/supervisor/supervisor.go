// Package supervisor runs the daemon's long-lived goroutines under one
// context, recovering panics and recording the first failure.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "todox/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log         logx.Logger
	cancelOnErr bool

	mu       sync.Mutex
	firstErr error
	stats    map[string]*GoroutineStats
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first failure cancel every goroutine.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, stats: map[string]*GoroutineStats{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Go runs fn once. A returned error other than context.Canceled, or a
// panic, is recorded as a failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.invoke(name, false, fn); err != nil {
			s.fail(err)
		}
	}()
}

// Go0 is Go for functions that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

type restartConfig struct {
	min, max time.Duration
}

type RestartOption func(*restartConfig)

// WithRestartBackoff bounds the doubling delay between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartConfig) {
		if min > 0 {
			c.min = min
		}
		if max > 0 {
			c.max = max
		}
	}
}

// healthyRun resets the backoff when a run lasted at least this long.
const healthyRun = 30 * time.Second

// GoRestart runs fn until it returns nil or context.Canceled, or the
// context ends. Errors and panics are logged and retried after a jittered
// backoff; they are never recorded as failures.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartConfig{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.max = max(cfg.max, cfg.min)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		delay := cfg.min
		for restart := false; s.ctx.Err() == nil; restart = true {
			began := time.Now()
			err := s.invoke(name, restart, fn)
			if err == nil || s.ctx.Err() != nil {
				return
			}
			if time.Since(began) >= healthyRun {
				delay = cfg.min
			}
			wait := delay + rand.N(delay/5+1)
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			delay = min(delay*2, cfg.max)
		}
	}()
}

// invoke runs fn once with bookkeeping. It returns nil for a clean exit or
// context.Canceled.
func (s *Supervisor) invoke(name string, restart bool, fn func(ctx context.Context) error) (err error) {
	s.track(name, func(st *GoroutineStats) {
		st.Active++
		st.Started++
		if restart {
			st.Restarts++
		}
		st.LastStartAt = time.Now()
	})
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic in %s: %v", name, r)
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		s.track(name, func(st *GoroutineStats) {
			st.Active--
			if panicked {
				st.Panics++
			}
			if err != nil {
				st.LastErr = err.Error()
			}
		})
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()

	s.log.Debug("goroutine started", logx.String("name", name))
	if e := fn(s.ctx); e != nil && !errors.Is(e, context.Canceled) {
		return fmt.Errorf("%s: %w", name, e)
	}
	return nil
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
	if s.cancelOnErr {
		s.cancel()
	}
}

// Stop cancels the context and waits for all goroutines.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine has returned or ctx ends, and then
// reports the first failure.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}

// GoroutineStats aggregates the runs of goroutines sharing a name.
type GoroutineStats struct {
	Name        string    `json:"name"`
	Active      int64     `json:"active"`
	Started     uint64    `json:"started"`
	Panics      uint64    `json:"panics"`
	Restarts    uint64    `json:"restarts"`
	LastStartAt time.Time `json:"last_start_at"`
	LastErr     string    `json:"last_err,omitempty"`
}

type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

// Snapshot is served on /status.
type Snapshot struct {
	Counters   Counters         `json:"counters"`
	FirstError string           `json:"first_error,omitempty"`
	Goroutines []GoroutineStats `json:"goroutines"`
}

func (s *Supervisor) track(name string, fn func(*GoroutineStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[name]
	if !ok {
		st = &GoroutineStats{Name: name}
		s.stats[name] = st
	}
	fn(st)
}

func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	if s.firstErr != nil {
		snap.FirstError = s.firstErr.Error()
	}
	snap.Goroutines = make([]GoroutineStats, 0, len(s.stats))
	for _, st := range s.stats {
		snap.Goroutines = append(snap.Goroutines, *st)
		snap.Counters.Active += st.Active
		snap.Counters.Started += st.Started
	}
	sort.Slice(snap.Goroutines, func(i, j int) bool { return snap.Goroutines[i].Name < snap.Goroutines[j].Name })
	return snap
}
