package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`

	// Notifier controls the async delivery pipeline. If the whole section is
	// omitted the notifier defaults to enabled with the console surface.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Console  ConsoleConfig  `json:"console,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`

	// Storage holds the reminder mirror, delivery history and dedup state.
	// Nil or driver "none" disables persistence (restore becomes a no-op).
	Storage *StorageConfig `json:"storage,omitempty"`

	Digest DigestConfig `json:"digest,omitempty"`
	Diag   DiagConfig   `json:"diag,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RemindersConfig controls the reminder scheduler and its task source.
type RemindersConfig struct {
	// Timezone used to interpret task due dates (IANA name). Empty means Local.
	Timezone string `json:"timezone,omitempty"`

	// TasksFile is the JSON/YAML task list the daemon watches.
	TasksFile string `json:"tasks_file"`

	// PruneRestored drops restored mirror entries whose task is gone or no
	// longer schedulable after the first task load. Defaults to true.
	PruneRestored *bool `json:"prune_restored,omitempty"`

	// MirrorFlush re-saves the mirror on this schedule (cron, @every or
	// duration). Empty disables the periodic flush.
	MirrorFlush string `json:"mirror_flush,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// Defaults (when fields are omitted/zero):
//   - surface: "console"
//   - workers: 2, queue_size: 512, rate_per_sec: 3
//   - retry_max: 0, retry_base: "500ms", retry_max_delay: "10s"
//   - dedup_window: "0s" (disabled), dedup_max_entries: 2000
//   - dismiss_after: "5s"
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Surface         string `json:"surface,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	DismissAfter    string `json:"dismiss_after,omitempty"`
}

// ConsoleConfig configures the console surface.
//
// Permission is one of "granted" (default), "denied" or "prompt"
// (ask once on stdin when permission is requested).
type ConsoleConfig struct {
	Permission string `json:"permission,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/todox" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DigestConfig controls the "due soon" digest job.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // default "@every 5m"
	Window   string `json:"window,omitempty"`   // default "24h"
}

// DiagConfig controls the optional diagnostics HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9310").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"` // default "/debug/pprof/"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// PruneRestoredEnabled resolves the prune_restored default.
func (r RemindersConfig) PruneRestoredEnabled() bool {
	if r.PruneRestored == nil {
		return true
	}
	return *r.PruneRestored
}
