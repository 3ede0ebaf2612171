// Package clock is the time port used by the reminder scheduler and the notifier.
//
// Production code uses Real (time.AfterFunc underneath); tests use Fake, which
// only moves when Advance is called.
package clock

import "time"

// Timer is a pending delayed call.
type Timer interface {
	// Stop prevents the call from running. It reports false if the call
	// already ran or the timer was already stopped.
	Stop() bool
}

// Clock supplies the current time and delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, fn)
}
