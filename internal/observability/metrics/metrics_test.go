package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"todox/internal/eventbus"
	logx "todox/pkg/logx"
)

func TestObserveCountsEvents(t *testing.T) {
	t.Parallel()
	m, err := New(nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, typ := range []string{
		eventbus.ReminderScheduled, eventbus.ReminderScheduled, eventbus.ReminderFired,
		eventbus.ReminderCancelled, eventbus.NotificationSent, eventbus.NotificationFailed,
		eventbus.NotificationSent, "something.else",
	} {
		m.Observe(eventbus.Event{Type: typ})
	}

	if got := testutil.ToFloat64(m.scheduled); got != 2 {
		t.Fatalf("scheduled = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.fired); got != 1 {
		t.Fatalf("fired = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("sent")); got != 2 {
		t.Fatalf("sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("dropped")); got != 0 {
		t.Fatalf("dropped = %v, want 0", got)
	}
}

func TestLiveGauge(t *testing.T) {
	t.Parallel()
	n := 3
	m, err := New(func() int { return n }, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := `
# HELP todox_reminders_live Entries currently in the reminder registry.
# TYPE todox_reminders_live gauge
todox_reminders_live 3
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "todox_reminders_live"); err != nil {
		t.Fatalf("gauge mismatch: %v", err)
	}
}

func TestRunConsumesBus(t *testing.T) {
	t.Parallel()
	m, err := New(nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx, bus)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.taskReloads) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("task reload never counted")
		}
		eventbus.Emit(bus, eventbus.TasksReloaded, eventbus.TasksEvent{})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}
