package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))

	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait err = %v, want boom", err)
	}
	if c := s.Snapshot().Counters; c.Active != 0 || c.Started != 2 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("panicky", func(context.Context) { panic("nope") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoRestartRetriesUntilClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartRecordsPanicsWithoutFailing(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	var runs atomic.Int32
	s.GoRestart("shaky", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("first run")
		}
		<-ctx.Done()
		return ctx.Err()
	}, WithRestartBackoff(time.Millisecond, time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("goroutine was not restarted after panic")
		}
		time.Sleep(time.Millisecond)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("restart loop recorded failure: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 {
		t.Fatalf("goroutines = %+v", snap.Goroutines)
	}
	g := snap.Goroutines[0]
	if g.Name != "shaky" || g.Panics != 1 || g.Restarts != 1 || g.Started != 2 || g.Active != 0 {
		t.Fatalf("stats = %+v", g)
	}
}

func TestStopCancelsContext(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
