package digest

import (
	"context"
	"sync"
	"testing"
	"time"

	"todox/internal/clock"
	"todox/internal/jobs"
	"todox/internal/tasks"
	logx "todox/pkg/logx"
)

type staticSource []tasks.Task

func (s staticSource) Tasks() []tasks.Task { return s }

type recordingNotifier struct {
	mu    sync.Mutex
	shown []string
}

func (r *recordingNotifier) ShowTaskNotification(_ context.Context, t tasks.Task, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, t.ID+"|"+label)
}

func (r *recordingNotifier) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.shown...)
}

func fixture() staticSource {
	return staticSource{
		{ID: "late", Title: "Report", DueDate: "2026-03-02", DueTime: "08:00", Status: "active"},
		{ID: "soon", Title: "Call", DueDate: "2026-03-01", DueTime: "11:30", Status: "active"},
		{ID: "done", Title: "Done", DueDate: "2026-03-01", DueTime: "11:00", Status: "complete"},
		{ID: "past", Title: "Past", DueDate: "2026-03-01", DueTime: "09:00", Status: "active"},
		{ID: "far", Title: "Far", DueDate: "2026-03-05", Status: "active"},
		{ID: "nodue", Title: "Someday", Status: "active"},
	}
}

func TestLinesSortedWithRemaining(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	d := New(Options{Source: fixture(), Clock: clk, Location: time.UTC, Log: logx.Nop()})

	lines := d.Lines()
	if len(lines) != 2 {
		t.Fatalf("lines = %+v, want 2", lines)
	}
	if lines[0].TaskID != "soon" || lines[0].Remaining != "1h 30m" {
		t.Fatalf("first line = %+v", lines[0])
	}
	if lines[1].TaskID != "late" || lines[1].Remaining != "22h 0m" {
		t.Fatalf("second line = %+v", lines[1])
	}
}

func TestRunNotifiesOncePerTask(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &recordingNotifier{}
	d := New(Options{Source: fixture(), Notifier: n, Clock: clk, Location: time.UTC, Log: logx.Nop()})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	clk.Advance(10 * time.Minute)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	got := n.calls()
	if len(got) != 2 || got[0] != "soon|" || got[1] != "late|" {
		t.Fatalf("notifications = %v, want [soon| late|]", got)
	}
	if d.Notified() != 2 {
		t.Fatalf("Notified = %d", d.Notified())
	}
}

func TestRunNewTaskEntersWindow(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &recordingNotifier{}
	src := staticSource{{ID: "tmrw", Title: "Tomorrow", DueDate: "2026-03-02", DueTime: "12:00", Status: "active"}}
	d := New(Options{Source: src, Notifier: n, Clock: clk, Location: time.UTC})

	_ = d.Run(context.Background())
	if len(n.calls()) != 0 {
		t.Fatal("task outside the window must not notify")
	}
	clk.Advance(3 * time.Hour)
	_ = d.Run(context.Background())
	if got := n.calls(); len(got) != 1 || got[0] != "tmrw|" {
		t.Fatalf("notifications = %v", got)
	}
}

func TestRegisterHonorsEnabledAndWindow(t *testing.T) {
	t.Parallel()
	js := jobs.New(jobs.Config{Enabled: true}, logx.Nop())
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &recordingNotifier{}
	d := New(Options{Source: fixture(), Notifier: n, Clock: clk, Location: time.UTC})

	if err := d.Register(js, Config{Enabled: true, Window: 2 * time.Hour}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	snap := js.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != DefaultSchedule {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if err := js.RunNow(context.Background(), JobName); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if got := n.calls(); len(got) != 1 || got[0] != "soon|" {
		t.Fatalf("2h window notifications = %v", got)
	}

	if err := d.Register(js, Config{Enabled: true, Schedule: "bogus"}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := d.Register(js, Config{Enabled: false}); err != nil {
		t.Fatalf("Register disabled: %v", err)
	}
	if js.Has(JobName) {
		t.Fatal("disabled digest must remove the job")
	}
}
