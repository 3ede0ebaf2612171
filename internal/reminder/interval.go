package reminder

import (
	"strings"
	"time"
)

// Interval is one reminder offset before a task's due instant.
type Interval struct {
	Label  string
	Offset time.Duration
}

// Intervals are the fixed reminder offsets, largest first.
var Intervals = []Interval{
	{Label: "1day", Offset: 24 * time.Hour},
	{Label: "1hour", Offset: time.Hour},
	{Label: "30min", Offset: 30 * time.Minute},
	{Label: "15min", Offset: 15 * time.Minute},
}

// LookupInterval finds an interval by label.
func LookupInterval(label string) (Interval, bool) {
	for _, iv := range Intervals {
		if iv.Label == label {
			return iv, true
		}
	}
	return Interval{}, false
}

// Key identifies one registry entry.
type Key struct {
	TaskID string
	Label  string
}

// String renders the persisted form "<taskID>-<label>".
func (k Key) String() string { return k.TaskID + "-" + k.Label }

// ParseKey splits "<taskID>-<label>". Task ids may contain dashes; the label
// must be a known interval.
func ParseKey(s string) (Key, bool) {
	i := strings.LastIndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return Key{}, false
	}
	k := Key{TaskID: s[:i], Label: s[i+1:]}
	if _, ok := LookupInterval(k.Label); !ok {
		return Key{}, false
	}
	return k, true
}
