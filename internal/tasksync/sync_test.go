package tasksync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"todox/internal/clock"
	"todox/internal/eventbus"
	"todox/internal/reminder"
	"todox/internal/tasks"
	logx "todox/pkg/logx"
)

type call struct {
	op string
	id string
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []call
}

func (r *recordingScheduler) add(op, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op, id})
}

func (r *recordingScheduler) ScheduleTaskReminders(t tasks.Task)  { r.add("schedule", t.ID) }
func (r *recordingScheduler) UpdateTaskReminders(_, n tasks.Task) { r.add("update", n.ID) }
func (r *recordingScheduler) CancelTaskReminders(id string)       { r.add("cancel", id) }
func (r *recordingScheduler) RestoreRemindersFromStorage(context.Context) int {
	r.add("restore", "")
	return 0
}
func (r *recordingScheduler) PruneSentinels() int { r.add("prune", ""); return 0 }

func (r *recordingScheduler) take() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

func TestSyncDiffsByID(t *testing.T) {
	t.Parallel()
	rs := &recordingScheduler{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s := New(Options{Scheduler: rs, Bus: bus, Log: logx.Nop()})

	a := tasks.Task{ID: "a", Title: "A", DueDate: "2026-03-02", Status: "active"}
	b := tasks.Task{ID: "b", Title: "B", DueDate: "2026-03-03", Status: "active"}
	res := s.Sync([]tasks.Task{a, b})
	if res != (Result{Added: 2}) {
		t.Fatalf("first sync = %+v", res)
	}
	if got := rs.take(); len(got) != 2 || got[0] != (call{"schedule", "a"}) || got[1] != (call{"schedule", "b"}) {
		t.Fatalf("calls = %v", got)
	}

	a2 := a
	a2.DueTime = "10:00"
	c := tasks.Task{ID: "c", Title: "C", Status: "active"}
	res = s.Sync([]tasks.Task{a2, c})
	if res != (Result{Added: 1, Updated: 1, Removed: 1}) {
		t.Fatalf("second sync = %+v", res)
	}
	got := rs.take()
	want := []call{{"update", "a"}, {"schedule", "c"}, {"cancel", "b"}}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}

	if res := s.Sync([]tasks.Task{a2, c}); res.Changed() {
		t.Fatalf("unchanged sync reported %+v", res)
	}
	if ids := s.Tasks(); len(ids) != 2 || ids[0].ID != "a" || ids[1].ID != "c" {
		t.Fatalf("Tasks = %+v", ids)
	}

	select {
	case ev := <-events:
		if ev.Type != eventbus.TasksReloaded {
			t.Fatalf("event type = %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no tasks.reloaded event")
	}
}

func TestStartRestoresThenPrunes(t *testing.T) {
	t.Parallel()
	rs := &recordingScheduler{}
	s := New(Options{
		Path:          "tasks.json",
		Scheduler:     rs,
		PruneRestored: true,
		Load: func(string) ([]tasks.Task, error) {
			return []tasks.Task{{ID: "x", Title: "X", DueDate: "2026-03-02"}}, nil
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := rs.take()
	want := []call{{"restore", ""}, {"schedule", "x"}, {"prune", ""}}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestStartParseErrorSkipsPrune(t *testing.T) {
	t.Parallel()
	rs := &recordingScheduler{}
	s := New(Options{
		Path:          "tasks.json",
		Scheduler:     rs,
		PruneRestored: true,
		Load:          func(string) ([]tasks.Task, error) { return nil, errors.New("bad json") },
	})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	for _, c := range rs.take() {
		if c.op == "prune" {
			t.Fatal("prune must not run after a failed load")
		}
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	rs := &recordingScheduler{}
	s := New(Options{Path: filepath.Join(t.TempDir(), "missing.json"), Scheduler: rs, PruneRestored: true})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(s.Tasks()) != 0 {
		t.Fatal("expected no tasks")
	}
}

func TestReloadFailureKeepsTasks(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","title":"A"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	rs := &recordingScheduler{}
	s := New(Options{Path: path, Scheduler: rs})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := os.WriteFile(path, []byte(`[{"id":`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if _, ok := s.Task("a"); !ok {
		t.Fatal("previous tasks lost after failed reload")
	}
}

// Full reconciliation against the real scheduler: a persisted entry for a task
// that is still present gets a live timer, the others are pruned.
func TestReconcileWithScheduler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	mirror := reminder.NewMemoryMirror()
	_ = mirror.Save(ctx, []reminder.MirrorEntry{
		{Key: "keep-1hour", TaskID: "keep", ReminderType: "1hour"},
		{Key: "gone-1day", TaskID: "gone", ReminderType: "1day"},
		{Key: "done-15min", TaskID: "done", ReminderType: "15min"},
	})
	sched := reminder.New(reminder.Options{Clock: clk, Location: time.UTC, Mirror: mirror})

	path := filepath.Join(t.TempDir(), "tasks.yaml")
	doc := "tasks:\n" +
		"  - id: keep\n    title: Keep\n    dueDate: \"2026-03-01\"\n    dueTime: \"12:00\"\n    status: active\n" +
		"  - id: done\n    title: Done\n    dueDate: \"2026-03-01\"\n    dueTime: \"12:00\"\n    status: complete\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(Options{Path: path, Scheduler: sched, PruneRestored: true})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := sched.ScheduledReminderCount("keep"); got != 3 {
		t.Fatalf("keep reminders = %d, want 3", got)
	}
	if got := sched.ScheduledReminderCount("gone") + sched.ScheduledReminderCount("done"); got != 0 {
		t.Fatalf("stale reminders survived: %d", got)
	}
	for _, e := range sched.Snapshot() {
		if e.Restored {
			t.Fatalf("sentinel left behind: %+v", e)
		}
	}
	if n := len(mirror.Entries()); n != 3 {
		t.Fatalf("mirror entries = %d, want 3", n)
	}
}
