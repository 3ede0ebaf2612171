package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a virtual clock. Callbacks run synchronously inside Advance, in
// deadline order, on the caller's goroutine.
type Fake struct {
	mu     sync.Mutex
	cond   *sync.Cond
	now    time.Time
	seq    uint64
	timers map[uint64]*fakeTimer
}

type fakeTimer struct {
	f   *Fake
	id  uint64
	at  time.Time
	fn  func()
	seq uint64
}

// NewFake returns a Fake positioned at now.
func NewFake(now time.Time) *Fake {
	f := &Fake{now: now, timers: map[uint64]*fakeTimer{}}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d < 0 {
		d = 0
	}
	f.seq++
	t := &fakeTimer{f: f, id: f.seq, at: f.now.Add(d), fn: fn, seq: f.seq}
	f.timers[t.id] = t
	f.cond.Broadcast()
	return t
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if _, ok := t.f.timers[t.id]; !ok {
		return false
	}
	delete(t.f.timers, t.id)
	t.f.cond.Broadcast()
	return true
}

// Advance moves virtual time forward by d, running every callback whose
// deadline falls within the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()
	f.AdvanceTo(target)
}

// AdvanceTo moves virtual time to t (never backwards).
func (f *Fake) AdvanceTo(t time.Time) {
	for {
		f.mu.Lock()
		next := f.nextDueLocked(t)
		if next == nil {
			if t.After(f.now) {
				f.now = t
			}
			f.mu.Unlock()
			return
		}
		delete(f.timers, next.id)
		if next.at.After(f.now) {
			f.now = next.at
		}
		f.cond.Broadcast()
		f.mu.Unlock()

		// Callbacks may schedule or stop timers; run them unlocked.
		next.fn()
	}
}

func (f *Fake) nextDueLocked(limit time.Time) *fakeTimer {
	due := make([]*fakeTimer, 0, len(f.timers))
	for _, t := range f.timers {
		if !t.at.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

// Pending returns the number of timers that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Deadlines returns the fire times of pending timers in ascending order.
func (f *Fake) Deadlines() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, 0, len(f.timers))
	for _, t := range f.timers {
		out = append(out, t.at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// BlockUntil waits until at least n timers are pending or timeout elapses.
// It reports whether the condition was met.
func (f *Fake) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	done := make(chan struct{})
	defer close(done)
	go func() {
		// Wake the waiter periodically so the timeout is honored.
		tk := time.NewTicker(5 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case <-tk.C:
				f.mu.Lock()
				f.cond.Broadcast()
				f.mu.Unlock()
			}
		}
	}()

	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.timers) < n {
		if time.Now().After(deadline) {
			return false
		}
		f.cond.Wait()
	}
	return true
}
