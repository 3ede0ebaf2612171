package eventbus

import (
	"sync"
	"time"
)

// Event is one in-process signal. Scheduler and notifier publish; metrics,
// diagnostics and tests subscribe.
//
// Publish never blocks: each subscriber owns a buffered channel and events
// that do not fit are dropped for that subscriber only.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

const defaultBuffer = 8

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus { return &fanout{} }

// Emit publishes an event of the given type on b. A nil bus is a no-op.
func Emit(b Bus, typ string, data any) {
	if b != nil {
		b.Publish(Event{Type: typ, Data: data})
	}
}

type subscriber struct {
	ch     chan Event
	closed bool
}

type fanout struct {
	mu   sync.RWMutex
	subs []*subscriber
}

// Publish holds the read lock while sending; unsubscribe needs the write
// lock to close, so a send never races a close.
func (f *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (f *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s.ch, func() { f.remove(s) }
}

func (f *fanout) remove(s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for i, cur := range f.subs {
		if cur == s {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
	close(s.ch)
}
