package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	logx "todox/pkg/logx"
)

// DefaultTimeout bounds a run when AddSchedule gets no timeout.
const DefaultTimeout = time.Minute

// ErrSkipped is returned by RunNow when the job is already running.
var ErrSkipped = errors.New("job skipped: previous run still in flight")

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional accepts both 5 and 6 field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Location returns the timezone schedules are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

// Apply swaps the config. A timezone change on a running service rebuilds the
// cron instance and re-registers every schedule.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		return
	}
	<-s.c.Stop().Done()
	s.startLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Start begins triggering. Disabled services keep their definitions and stay idle.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("disabled; schedules will not run", logx.Int("schedules", len(s.defs)))
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	s.c.Start()
}

// Stop halts triggering and cancels in-flight runs, waiting for them until ctx ends.
// Definitions survive so a later Start resumes them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// AddSchedule registers job under name, replacing any schedule with that name.
// It returns the name, which is the handle for Remove.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Func) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	if spec.Kind == KindCron {
		if _, err := s.parser.Parse(spec.Cron); err != nil {
			return "", fmt.Errorf("parse cron %q: %w", spec.Cron, err)
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &def{name: name, spec: spec, timeout: timeout, job: job, state: &runState{}}
	s.defs = append(s.defs, d)
	if s.c == nil {
		return name, nil
	}
	if err := s.addCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec.CronSpec()), logx.Err(err))
		return name, err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("spec", spec.CronSpec()), logx.Duration("timeout", timeout)}
	if next := s.previewLocked(spec, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)
	return name, nil
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Has reports whether a schedule named name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return true
		}
	}
	return false
}

// RunNow runs the named job synchronously through the same wrapper the
// scheduler uses (timeout, overlap skip, panic recovery, counters).
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var d *def
	for _, it := range s.defs {
		if it.name == name {
			d = it
			break
		}
	}
	s.mu.Unlock()
	if d == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, d)
}

func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	for i := n; i < len(s.defs); i++ {
		s.defs[i] = nil
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *def) error {
	ctx := s.ctx
	job := cron.FuncJob(func() {
		if err := s.run(ctx, d); err != nil && !errors.Is(err, ErrSkipped) {
			s.log.Warn("job failed", logx.String("name", d.name), logx.Err(err))
		}
	})
	if d.spec.Kind == KindInterval {
		sched, jitter := intervalWithSpread(d.spec.Every, s.now().In(s.loc), d.name)
		d.spread = jitter
		d.entryID = s.c.Schedule(sched, job)
		return nil
	}
	d.spread = 0
	id, err := s.c.AddJob(d.spec.Cron, job)
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) run(parent context.Context, d *def) (err error) {
	st := d.state
	if !st.running.CompareAndSwap(false, true) {
		st.skips.Add(1)
		s.log.Debug("job skipped; still running", logx.String("name", d.name))
		return ErrSkipped
	}
	defer st.running.Store(false)
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panic", logx.String("name", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		took := time.Since(start)
		st.runs.Add(1)
		st.mu.Lock()
		st.lastRun = start
		st.took = took
		st.lastErr = ""
		if err != nil {
			st.lastErr = err.Error()
		}
		st.mu.Unlock()
		if err != nil {
			st.failures.Add(1)
		}
		s.log.Trace("job finished", logx.String("name", d.name), logx.Duration("took", took), logx.Bool("ok", err == nil))
	}()
	return d.job(ctx)
}

// Snapshot lists schedules in registration order.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	out := Snapshot{Enabled: s.cfg.Enabled, Started: s.c != nil, Timezone: loc.String()}
	out.Schedules = make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{
			Name:          d.name,
			Spec:          d.spec.CronSpec(),
			Timeout:       d.timeout,
			StartupSpread: d.spread,
			Running:       d.state.running.Load(),
			Runs:          d.state.runs.Load(),
			Skips:         d.state.skips.Load(),
			Failures:      d.state.failures.Load(),
		}
		d.state.mu.Lock()
		it.LastRun = d.state.lastRun
		it.LastTook = d.state.took
		it.LastErr = d.state.lastErr
		d.state.mu.Unlock()
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out.Schedules = append(out.Schedules, it)
	}
	return out
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewLocked renders the next n run times for debug logs.
func (s *Service) previewLocked(spec Spec, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || spec.Kind != KindCron {
		return ""
	}
	sched, err := s.parser.Parse(spec.Cron)
	if err != nil {
		return ""
	}
	t := s.now().In(s.loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}
