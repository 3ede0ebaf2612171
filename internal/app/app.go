// Package app wires the reminder daemon together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"todox/internal/clock"
	"todox/internal/config"
	"todox/internal/digest"
	"todox/internal/eventbus"
	"todox/internal/jobs"
	"todox/internal/notifier"
	"todox/internal/observability/diag"
	"todox/internal/observability/metrics"
	"todox/internal/reminder"
	rtsup "todox/internal/runtime/supervisor"
	"todox/internal/storage"
	"todox/internal/systemd"
	"todox/internal/tasksync"
	"todox/internal/transport"
	logx "todox/pkg/logx"
)

// MirrorFlushJob is the job name of the periodic mirror re-save.
const MirrorFlushJob = "reminders.mirror_flush"

// Options carries process-level dependencies; zero values mean the real ones.
type Options struct {
	Stdout io.Writer
	Stdin  io.Reader
	Clock  clock.Clock
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	clk   clock.Clock
	loc   *time.Location

	surface transport.Surface
	notif   *notifier.Service
	sched   *reminder.Scheduler
	jobs    *jobs.Service
	digest  *digest.Digest
	tasks   *tasksync.Service
	metrics *metrics.Metrics
	diag    *diag.Service
	sd      *systemd.Notifier
}

func New(cfgPath string, o Options) (*App, error) {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	} else {
		log.Warn("storage disabled; reminders will not survive a restart")
	}

	loc, err := loadLocation(cfg)
	if err != nil {
		return nil, err
	}

	surface, err := buildSurface(cfg, o, log.With(logx.String("comp", "surface")))
	if err != nil {
		closeStore(store)
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	notif := notifier.New(ncfg, notifier.Deps{
		Surface: surface,
		Log:     log.With(logx.String("comp", "notifier")),
		Bus:     bus,
		Store:   store,
		Clock:   o.Clock,
	})

	var mirror reminder.Mirror
	if store != nil {
		mirror = reminder.NewStoreMirror(store)
	}
	sched := reminder.New(reminder.Options{
		Clock:    o.Clock,
		Location: loc,
		Mirror:   mirror,
		Notifier: notif,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "reminders")),
	})

	js := jobs.New(mapJobsConfig(cfg), log.With(logx.String("comp", "jobs")))
	ts := tasksync.New(tasksync.Options{
		Path:          cfg.Reminders.TasksFile,
		Scheduler:     sched,
		Bus:           bus,
		Log:           log.With(logx.String("comp", "tasks")),
		PruneRestored: cfg.Reminders.PruneRestoredEnabled(),
	})
	dg := digest.New(digest.Options{
		Source:   ts,
		Notifier: notif,
		Clock:    o.Clock,
		Location: loc,
		Log:      log.With(logx.String("comp", "digest")),
	})

	m, err := metrics.New(sched.Total, log.With(logx.String("comp", "metrics")))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		store:   store,
		clk:     o.Clock,
		loc:     loc,
		surface: surface,
		notif:   notif,
		sched:   sched,
		jobs:    js,
		digest:  dg,
		tasks:   ts,
		metrics: m,
		sd:      systemd.NewNotifier(log.With(logx.String("comp", "systemd"))),
	}

	dcfg, err := mapDiagConfig(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	a.diag = diag.New(dcfg, diag.Sources{
		Gatherer:  m.Registry(),
		Reminders: sched,
		Status:    func() any { return a.Status() },
	}, log.With(logx.String("comp", "diag")))
	return a, nil
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

// Scheduler exposes the reminder scheduler.
func (a *App) Scheduler() *reminder.Scheduler { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return Validate(cfg) })

	cfg := a.cfgm.Get()

	if a.notif.Enabled() {
		a.notif.Start(run)
	} else {
		a.log.Warn("notifier disabled; reminders will only be logged")
	}
	if !a.sched.AreNotificationsSupported() {
		a.log.Warn("notifications not permitted on surface", logx.String("surface", a.surface.Name()))
	}

	// Reconcile persisted reminders with the task file before anything fires.
	if err := a.tasks.Start(run); err != nil {
		a.log.Warn("task source not loaded; continuing with restored reminders", logx.Err(err))
	}

	if err := a.applyJobs(cfg); err != nil {
		return err
	}
	a.jobs.Start(run)

	a.sup.Go("tasks.watch", a.tasks.Run)
	a.sup.Go("metrics.events", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.sup.Go("systemd.watchdog", a.sd.RunWatchdog)

	if a.diag.Enabled() {
		a.diag.Start(run)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sd.Ready()
	a.sd.Status(fmt.Sprintf("%d reminders scheduled", a.sched.Total()))
	a.log.Info("app started",
		logx.String("surface", a.surface.Name()),
		logx.Int("reminders", a.sched.Total()),
		logx.String("tz", a.loc.String()),
	)
	return nil
}

// applyJobs (re)registers the periodic jobs for cfg.
func (a *App) applyJobs(cfg *config.Config) error {
	if spec := strings.TrimSpace(cfg.Reminders.MirrorFlush); spec != "" {
		if _, err := a.jobs.AddSchedule(MirrorFlushJob, spec, 10*time.Second, a.sched.Flush); err != nil {
			return fmt.Errorf("reminders.mirror_flush: %w", err)
		}
	} else {
		a.jobs.Remove(MirrorFlushJob)
	}
	dcfg, err := mapDigestConfig(cfg)
	if err != nil {
		return err
	}
	return a.digest.Register(a.jobs, dcfg)
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	a.sd.Reloading()
	defer a.sd.Ready()

	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	if restartNeeded(prev, next) {
		a.log.Warn("storage, surface, timezone or tasks file changed; restart required for those to take effect")
	}

	a.logs.Apply(mapLoggingConfig(next))

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(c)
		}
	}

	if err := a.applyJobs(next); err != nil {
		a.log.Warn("invalid job config; keeping previous", logx.Err(err))
	}

	if dcfg, err := mapDiagConfig(next); err != nil {
		a.log.Warn("invalid diag config; keeping previous", logx.Err(err))
	} else {
		a.diag.Reconfigure(c, dcfg)
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

// restartNeeded reports changes that are only read at startup.
func restartNeeded(prev, next *config.Config) bool {
	if prev == nil || next == nil {
		return false
	}
	ps, _, _ := mapStorageConfig(prev)
	ns, _, _ := mapStorageConfig(next)
	if ps != ns {
		return true
	}
	if surfaceName(prev) != surfaceName(next) || prev.Telegram != next.Telegram || prev.Console != next.Console {
		return true
	}
	return prev.Reminders.Timezone != next.Reminders.Timezone || prev.Reminders.TasksFile != next.Reminders.TasksFile
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "diag", time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	a.step(ctx, "jobs", 2*time.Second, func(c context.Context) error { a.jobs.Stop(c); return nil })
	a.step(ctx, "reminders.flush", 2*time.Second, a.sched.Flush)
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
