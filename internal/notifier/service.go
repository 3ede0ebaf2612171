package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"todox/internal/clock"
	"todox/internal/eventbus"
	rtsup "todox/internal/runtime/supervisor"
	"todox/internal/storage"
	"todox/internal/tasks"
	"todox/internal/transport"
	logx "todox/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historyLimit = 300

type job struct {
	m transport.Message
}

// display is a message currently shown on the surface.
type display struct {
	ref   transport.Ref
	timer clock.Timer
	seq   uint64
}

type Deps struct {
	Surface transport.Surface
	Log     logx.Logger
	Bus     eventbus.Bus
	Store   storage.Store
	Clock   clock.Clock
}

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + retry + dedup + replace/auto-dismiss.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	surface transport.Surface
	bus     eventbus.Bus
	store   storage.Store
	clk     clock.Clock

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory dedup cache: tag -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	persistCh chan dedupWrite

	// Displayed messages by tag.
	vmu       sync.Mutex
	displayed map[string]*display
	dispSeq   uint64

	hmu     sync.Mutex
	history []HistoryItem
}

type dedupWrite struct {
	key   string
	until time.Time
}

func New(cfg Config, d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	s := &Service{
		surface:   d.Surface,
		log:       d.Log,
		bus:       d.Bus,
		store:     d.Store,
		clk:       d.Clock,
		dedup:     map[string]time.Time{},
		displayed: map[string]*display{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Supervisor returns the notifier's internal supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Apply updates tuning knobs. Workers and queue size take effect on the
// next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.DismissAfter <= 0 {
		cfg.DismissAfter = DefaultDismissAfter
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Supported reports whether the surface can show notifications and the
// user granted permission.
func (s *Service) Supported() bool {
	if s.surface == nil || !s.surface.Supported() {
		return false
	}
	return s.surface.Permission() == transport.PermissionGranted
}

// RequestPermission prompts once if the permission is undecided and
// reports whether it is granted. Unsupported surfaces never prompt.
func (s *Service) RequestPermission(ctx context.Context) bool {
	if s.surface == nil || !s.surface.Supported() {
		s.log.Info("notifications are not supported", logx.String("surface", s.surfaceName()))
		return false
	}
	p := s.surface.Permission()
	if p == transport.PermissionDefault {
		var err error
		p, err = s.surface.RequestPermission(ctx)
		if err != nil {
			s.log.Warn("permission request failed", logx.String("surface", s.surfaceName()), logx.Err(err))
		}
	}
	return p == transport.PermissionGranted
}

// ShowTaskNotification enqueues a reminder for the task. Without permission
// it only logs. It never blocks on delivery.
func (s *Service) ShowTaskNotification(ctx context.Context, t tasks.Task, label string) {
	if !s.Supported() {
		s.log.Info("notification permission not granted; skipping", logx.String("task_id", t.ID), logx.String("label", label))
		return
	}
	if err := s.Notify(ctx, BuildMessage(t, label)); err != nil {
		s.log.Warn("notification not queued", logx.String("task_id", t.ID), logx.String("label", label), logx.Err(err))
	}
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// notifier failures should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	pch := s.persistCh
	st := s.store
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch, st)
			return s.exitErr(c, "persist loop")
		})
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitErr(c, "worker")
		})
	}
}

// exitErr classifies a loop exit: shutdown is clean, anything else restarts.
func (s *Service) exitErr(c context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return context.Canceled
	}
	if c.Err() != nil {
		return c.Err()
	}
	return fmt.Errorf("notifier %s exited unexpectedly", what)
}

// Stop stops intake, drains the queue best-effort until ctx deadline and
// dismisses whatever is still displayed.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	pch := s.persistCh
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain.
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
	s.dismissAll(ctx)
}

// Notify enqueues m. It returns nil when m was suppressed by dedup.
func (s *Service) Notify(ctx context.Context, m transport.Message) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	dedupWindow := s.cfg.DedupWindow
	dedupMax := s.cfg.DedupMaxEntries
	persistDedup := s.cfg.PersistDedup
	st := s.store
	pch := s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if dedupWindow > 0 && m.Tag != "" {
		if !s.dedupAllow(ctx, m.Tag, dedupWindow, dedupMax, persistDedup, st, pch) {
			s.emit(eventbus.NotificationDeduped, m.Tag, 0, nil)
			return nil
		}
	}

	select {
	case q <- job{m: m}:
		return nil
	default:
		s.emit(eventbus.NotificationDropped, m.Tag, 0, ErrQueueFull)
		s.record(context.Background(), m, "dropped", 0, ErrQueueFull, 0)
		return ErrQueueFull
	}
}

// History returns recent delivery outcomes, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// Displayed returns the number of messages currently shown.
func (s *Service) Displayed() int {
	s.vmu.Lock()
	defer s.vmu.Unlock()
	return len(s.displayed)
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := st.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if s.surface == nil {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	started := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(runCtx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
		err := s.deliver(callCtx, j.m, cfg.DismissAfter)
		cancel()
		if err == nil {
			s.emit(eventbus.NotificationSent, j.m.Tag, attempt, nil)
			s.record(runCtx, j.m, "sent", attempt, nil, time.Since(started))
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.String("tag", j.m.Tag), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		var ra *transport.RetryAfterError
		if errors.As(err, &ra) && ra.After > delay {
			delay = ra.After
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}

	s.log.Warn("notification failed", logx.String("tag", j.m.Tag), logx.Int("attempts", maxAttempts), logx.Err(lastErr))
	s.emit(eventbus.NotificationFailed, j.m.Tag, maxAttempts, lastErr)
	s.record(runCtx, j.m, "failed", maxAttempts, lastErr, time.Since(started))
}

// deliver replaces any message with the same tag and arms auto-dismiss.
func (s *Service) deliver(ctx context.Context, m transport.Message, dismissAfter time.Duration) error {
	if prev := s.takeDisplayed(m.Tag, 0); prev != nil {
		s.dismiss(ctx, m.Tag, prev)
	}

	ref, err := s.surface.Show(ctx, m)
	if err != nil {
		return err
	}

	s.vmu.Lock()
	// Another worker may have shown the same tag meanwhile.
	stale := s.displayed[m.Tag]
	s.dispSeq++
	seq := s.dispSeq
	d := &display{ref: ref, seq: seq}
	d.timer = s.clk.AfterFunc(dismissAfter, func() { s.autoDismiss(m.Tag, seq) })
	s.displayed[m.Tag] = d
	s.vmu.Unlock()

	if stale != nil {
		stale.timer.Stop()
		s.dismiss(ctx, m.Tag, stale)
	}
	return nil
}

// takeDisplayed removes and returns the display for tag. When seq is
// non-zero it only matches that exact display.
func (s *Service) takeDisplayed(tag string, seq uint64) *display {
	s.vmu.Lock()
	defer s.vmu.Unlock()
	d := s.displayed[tag]
	if d == nil || (seq != 0 && d.seq != seq) {
		return nil
	}
	delete(s.displayed, tag)
	if seq == 0 && d.timer != nil {
		d.timer.Stop()
	}
	return d
}

func (s *Service) autoDismiss(tag string, seq uint64) {
	d := s.takeDisplayed(tag, seq)
	if d == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.dismiss(ctx, tag, d)
}

func (s *Service) dismiss(ctx context.Context, tag string, d *display) {
	if err := s.surface.Dismiss(ctx, d.ref); err != nil {
		s.log.Debug("dismiss failed", logx.String("tag", tag), logx.Err(err))
	}
}

func (s *Service) dismissAll(ctx context.Context) {
	s.vmu.Lock()
	all := s.displayed
	s.displayed = map[string]*display{}
	s.vmu.Unlock()
	for tag, d := range all {
		if d.timer != nil {
			d.timer.Stop()
		}
		s.dismiss(ctx, tag, d)
	}
}

func (s *Service) emit(typ, tag string, attempts int, err error) {
	ev := eventbus.NotificationEvent{Tag: tag, Surface: s.surfaceName(), Attempts: attempts}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Emit(s.bus, typ, ev)
}

func (s *Service) record(ctx context.Context, m transport.Message, result string, attempts int, err error, took time.Duration) {
	now := time.Now()
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: now, Tag: m.Tag, Text: m.Body, Result: result})
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	s.hmu.Unlock()

	if s.store == nil {
		return
	}
	e := storage.HistoryEntry{
		At:       now,
		Tag:      m.Tag,
		Surface:  s.surfaceName(),
		Result:   result,
		Attempts: attempts,
		TookMS:   took.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	hctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	if herr := s.store.AppendHistory(hctx, e); herr != nil {
		s.log.Debug("history append failed", logx.Err(herr))
	}
}

func (s *Service) surfaceName() string {
	if s.surface == nil {
		return ""
	}
	return s.surface.Name()
}

func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration, max int, persist bool, st storage.Store, pch chan dedupWrite) bool {
	now := s.clk.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	// Persistent check (best-effort) for cross-restart dedup.
	if persist && st != nil {
		qctx := ctx
		if qctx == nil {
			qctx = context.Background()
		}
		cctx, cancel := context.WithTimeout(qctx, 25*time.Millisecond)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	// Over the cap: evict the entries that expire first.
	for max > 0 && len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
		)
		for k, u := range s.dedup {
			if minKey == "" || u.Before(minT) {
				minKey, minT = k, u
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if persist && pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > maxD {
		d = maxD
	}
	return d
}
