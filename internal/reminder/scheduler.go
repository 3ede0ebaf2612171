package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"todox/internal/clock"
	"todox/internal/eventbus"
	"todox/internal/tasks"
	logx "todox/pkg/logx"
)

// Notifier is the notification surface seen by the scheduler.
//
// ShowTaskNotification must not block and must not call back into the
// Scheduler; label is empty for reminders that are not tied to an interval.
type Notifier interface {
	ShowTaskNotification(ctx context.Context, task tasks.Task, label string)
	RequestPermission(ctx context.Context) bool
	Supported() bool
}

type Options struct {
	Clock    clock.Clock
	Location *time.Location
	Mirror   Mirror
	Notifier Notifier
	Bus      eventbus.Bus
	Log      logx.Logger

	// SaveTimeout bounds a single mirror write. Default 5s.
	SaveTimeout time.Duration
}

// Scheduler owns the reminder registry. It is safe for concurrent use.
//
// Every entry carries a generation number; a timer callback whose generation
// no longer matches the registry (because the entry was cancelled or
// replaced) does nothing.
type Scheduler struct {
	clk         clock.Clock
	loc         *time.Location
	mirror      Mirror
	notifier    Notifier
	bus         eventbus.Bus
	log         logx.Logger
	saveTimeout time.Duration

	mu      sync.Mutex
	entries map[Key]*entry
	gen     uint64
	seq     uint64
}

type entry struct {
	timer  clock.Timer // nil for restored sentinels
	fireAt time.Time
	gen    uint64
	seq    uint64 // insertion order, kept in the mirror
}

// EntryInfo is a read-only view of one registry entry.
type EntryInfo struct {
	Key      string    `json:"key"`
	TaskID   string    `json:"task_id"`
	Label    string    `json:"label"`
	FireAt   time.Time `json:"fire_at,omitempty"`
	Restored bool      `json:"restored"`
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		clk:         opts.Clock,
		loc:         opts.Location,
		mirror:      opts.Mirror,
		notifier:    opts.Notifier,
		bus:         opts.Bus,
		log:         opts.Log,
		saveTimeout: opts.SaveTimeout,
		entries:     map[Key]*entry{},
	}
	if s.clk == nil {
		s.clk = clock.Real{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.saveTimeout <= 0 {
		s.saveTimeout = 5 * time.Second
	}
	return s
}

// Location is the zone due dates are resolved in.
func (s *Scheduler) Location() *time.Location { return s.loc }

// ScheduleTaskReminders replaces the task's reminders with one delayed call
// per interval whose fire time is still in the future. Tasks without a
// usable due date, and completed tasks, are left alone.
func (s *Scheduler) ScheduleTaskReminders(t tasks.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduleLocked(t) {
		s.saveLocked()
	}
}

// CancelTaskReminders stops and removes every entry of the task. Calling it
// for a task without entries is a no-op.
func (s *Scheduler) CancelTaskReminders(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLocked(taskID) > 0 {
		s.saveLocked()
	}
}

// UpdateTaskReminders cancels everything scheduled for oldTask, then
// schedules newTask if it has a due date and is not complete. Both steps
// happen under one lock so no stale reminder can fire in between.
func (s *Scheduler) UpdateTaskReminders(oldTask, newTask tasks.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.cancelLocked(oldTask.ID) > 0
	if newTask.HasDueDate() && !newTask.Complete() {
		if s.scheduleLocked(newTask) {
			changed = true
		}
	}
	if changed {
		s.saveLocked()
	}
}

// ScheduledReminderCount returns the number of entries (live or restored)
// for the task, read from the registry on every call.
func (s *Scheduler) ScheduledReminderCount(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if k.TaskID == taskID {
			n++
		}
	}
	return n
}

// Total returns the number of registry entries across all tasks.
func (s *Scheduler) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot lists the registry in insertion order.
func (s *Scheduler) Snapshot() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.orderedKeysLocked()
	out := make([]EntryInfo, 0, len(keys))
	for _, k := range keys {
		e := s.entries[k]
		out = append(out, EntryInfo{
			Key:      k.String(),
			TaskID:   k.TaskID,
			Label:    k.Label,
			FireAt:   e.fireAt,
			Restored: e.timer == nil,
		})
	}
	return out
}

// RestoreRemindersFromStorage replaces the registry with the persisted keys
// as sentinels. A missing or unreadable mirror leaves the registry as it was.
// It returns the number of restored entries.
func (s *Scheduler) RestoreRemindersFromStorage(ctx context.Context) int {
	if s.mirror == nil {
		return 0
	}
	saved, err := s.mirror.Load(ctx)
	if err != nil {
		s.log.Warn("reminder mirror unreadable; starting empty", logx.Err(err))
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, k)
	}
	for _, me := range saved {
		k, ok := mirrorKey(me)
		if !ok {
			s.log.Debug("skipping malformed mirror entry", logx.String("key", me.Key))
			continue
		}
		if _, dup := s.entries[k]; dup {
			continue
		}
		s.gen++
		s.seq++
		s.entries[k] = &entry{gen: s.gen, seq: s.seq}
		eventbus.Emit(s.bus, eventbus.ReminderRestored, eventbus.ReminderEvent{Key: k.String(), TaskID: k.TaskID, Label: k.Label})
	}
	n := len(s.entries)
	s.log.Info("reminders restored from storage", logx.Int("count", n))
	return n
}

// PruneSentinels removes every restored entry that has not been replaced by
// a live one and returns how many were removed.
func (s *Scheduler) PruneSentinels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.timer == nil {
			delete(s.entries, k)
			n++
		}
	}
	if n > 0 {
		s.saveLocked()
		s.log.Info("pruned restored reminders", logx.Int("count", n))
	}
	return n
}

// Flush writes the current registry to the mirror.
func (s *Scheduler) Flush(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()
	return s.mirror.Save(sctx, s.mirrorEntriesLocked())
}

// ShowTaskNotification forwards to the notifier (no-op without one).
func (s *Scheduler) ShowTaskNotification(ctx context.Context, t tasks.Task, label string) {
	if s.notifier == nil {
		s.log.Debug("no notifier; notification skipped", logx.String("task_id", t.ID))
		return
	}
	s.notifier.ShowTaskNotification(ctx, t, label)
}

// RequestNotificationPermission asks the notification surface for
// permission, prompting at most once. It reports whether it is granted.
func (s *Scheduler) RequestNotificationPermission(ctx context.Context) bool {
	if s.notifier == nil {
		return false
	}
	return s.notifier.RequestPermission(ctx)
}

// AreNotificationsSupported reports whether notifications can be shown.
func (s *Scheduler) AreNotificationsSupported() bool {
	if s.notifier == nil {
		return false
	}
	return s.notifier.Supported()
}

// scheduleLocked reports whether the registry changed.
func (s *Scheduler) scheduleLocked(t tasks.Task) bool {
	if t.Complete() {
		return false
	}
	due, ok := tasks.ResolveDue(t, s.loc)
	if !ok {
		if t.HasDueDate() {
			s.log.Debug("task due date not schedulable", logx.String("task_id", t.ID), logx.String("due_date", t.DueDate), logx.String("due_time", t.DueTime))
		}
		return false
	}

	changed := s.cancelLocked(t.ID) > 0
	now := s.clk.Now()
	for _, iv := range Intervals {
		fireAt := due.Add(-iv.Offset)
		if !fireAt.After(now) {
			continue
		}
		k := Key{TaskID: t.ID, Label: iv.Label}
		s.gen++
		s.seq++
		gen := s.gen
		task := t
		e := &entry{fireAt: fireAt, gen: gen, seq: s.seq}
		e.timer = s.clk.AfterFunc(fireAt.Sub(now), func() { s.fire(k, gen, task) })
		s.entries[k] = e
		changed = true

		eventbus.Emit(s.bus, eventbus.ReminderScheduled, eventbus.ReminderEvent{Key: k.String(), TaskID: k.TaskID, Label: k.Label, FireAt: fireAt})
		s.log.Debug("reminder scheduled", logx.String("key", k.String()), logx.Time("fire_at", fireAt))
	}
	return changed
}

func (s *Scheduler) cancelLocked(taskID string) int {
	n := 0
	for k, e := range s.entries {
		if k.TaskID != taskID {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, k)
		n++
		eventbus.Emit(s.bus, eventbus.ReminderCancelled, eventbus.ReminderEvent{Key: k.String(), TaskID: k.TaskID, Label: k.Label})
	}
	return n
}

func (s *Scheduler) fire(k Key, gen uint64, t tasks.Task) {
	s.mu.Lock()
	e, ok := s.entries[k]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.entries, k)
	s.saveLocked()
	s.mu.Unlock()

	eventbus.Emit(s.bus, eventbus.ReminderFired, eventbus.ReminderEvent{Key: k.String(), TaskID: k.TaskID, Label: k.Label, FireAt: e.fireAt})
	s.log.Info("reminder fired", logx.String("key", k.String()), logx.String("title", t.Title))
	s.ShowTaskNotification(context.Background(), t, k.Label)
}

func (s *Scheduler) saveLocked() {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.mirror.Save(ctx, s.mirrorEntriesLocked()); err != nil {
		s.log.Warn("reminder mirror save failed", logx.Err(err))
	}
}

func (s *Scheduler) mirrorEntriesLocked() []MirrorEntry {
	keys := s.orderedKeysLocked()
	out := make([]MirrorEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, MirrorEntry{Key: k.String(), TaskID: k.TaskID, ReminderType: k.Label})
	}
	return out
}

func (s *Scheduler) orderedKeysLocked() []Key {
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return s.entries[keys[i]].seq < s.entries[keys[j]].seq })
	return keys
}

// mirrorKey prefers the structured fields and falls back to parsing the key.
func mirrorKey(me MirrorEntry) (Key, bool) {
	if me.TaskID != "" && me.ReminderType != "" {
		return Key{TaskID: me.TaskID, Label: me.ReminderType}, true
	}
	return ParseKey(me.Key)
}
