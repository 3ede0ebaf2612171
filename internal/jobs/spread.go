package jobs

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

// maxStartupSpread caps how far the first run of an interval job is pushed out.
const maxStartupSpread = 30 * time.Second

// delayedStart runs first at a fixed instant, then follows base.
type delayedStart struct {
	base  cron.Schedule
	first time.Time
}

func (d *delayedStart) Next(t time.Time) time.Time {
	if t.Before(d.first) {
		return d.first
	}
	return d.base.Next(t)
}

// intervalWithSpread staggers interval jobs so they do not all fire together
// after a restart. The offset is derived from the job name, so it is stable
// across restarts, and is a whole number of seconds because cron.Every
// schedules on second boundaries. Intervals under a second use a sub-second
// offset instead.
func intervalWithSpread(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	limit := min(every, maxStartupSpread)
	if limit <= 0 {
		return base, 0
	}
	h := nameHash(name)
	var offset time.Duration
	if secs := uint64(limit / time.Second); secs > 0 {
		offset = time.Duration(h%secs) * time.Second
	} else {
		offset = time.Duration(h % uint64(limit))
	}
	first := now.Truncate(time.Second).Add(every + offset)
	if every < time.Second {
		first = now.Add(every + offset)
	}
	return &delayedStart{base: base, first: first}, offset
}

func nameHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
