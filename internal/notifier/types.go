package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	DismissAfter    time.Duration
}

// DefaultDismissAfter is how long a notification stays up.
const DefaultDismissAfter = 5 * time.Second

type HistoryItem struct {
	At     time.Time `json:"at"`
	Tag    string    `json:"tag"`
	Text   string    `json:"text"`
	Result string    `json:"result"`
}
