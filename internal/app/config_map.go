package app

import (
	"fmt"
	"strings"
	"time"

	"todox/internal/config"
	"todox/internal/digest"
	"todox/internal/jobs"
	"todox/internal/notifier"
	"todox/internal/observability/diag"
	"todox/internal/storage"
	"todox/internal/transport"
	logx "todox/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, true, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// surfaceName resolves notifier.surface; an omitted notifier section means console.
func surfaceName(cfg *config.Config) string {
	if cfg.Notifier == nil {
		return "console"
	}
	s := strings.ToLower(strings.TrimSpace(cfg.Notifier.Surface))
	if s == "" {
		return "console"
	}
	return s
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true}, nil
	}
	if nc.Workers < 0 || nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 || nc.DedupMaxEntries < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec, retry_max and dedup_max_entries must be >= 0")
	}
	switch surfaceName(cfg) {
	case "console", "telegram":
	default:
		return notifier.Config{}, fmt.Errorf("notifier.surface: unknown %q (want console|telegram)", nc.Surface)
	}
	out := notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", nc.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", nc.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	if out.DismissAfter, err = config.ParseDurationOrDefault("notifier.dismiss_after", nc.DismissAfter, notifier.DefaultDismissAfter); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

// consolePermission maps console.permission; empty means granted.
func consolePermission(cfg *config.Config) (transport.Permission, error) {
	p := strings.ToLower(strings.TrimSpace(cfg.Console.Permission))
	if p == "" {
		return transport.PermissionGranted, nil
	}
	perm, err := transport.ParsePermission(p)
	if err != nil {
		return "", fmt.Errorf("console.permission: %w", err)
	}
	return perm, nil
}

func mapJobsConfig(cfg *config.Config) jobs.Config {
	return jobs.Config{Enabled: true, Timezone: cfg.Reminders.Timezone}
}

func mapDigestConfig(cfg *config.Config) (digest.Config, error) {
	window, err := config.ParseDurationField("digest.window", cfg.Digest.Window)
	if err != nil {
		return digest.Config{}, err
	}
	if s := strings.TrimSpace(cfg.Digest.Schedule); s != "" {
		if _, err := jobs.ParseSchedule(s); err != nil {
			return digest.Config{}, fmt.Errorf("digest.schedule: %w", err)
		}
	}
	return digest.Config{Enabled: cfg.Digest.Enabled, Schedule: cfg.Digest.Schedule, Window: window}, nil
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	d := cfg.Diag
	out := diag.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
		PprofPrefix:   d.PprofPrefix,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("diag.read_timeout", d.ReadTimeout, 10*time.Second); err != nil {
		return diag.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationOrDefault("diag.write_timeout", d.WriteTimeout, 60*time.Second); err != nil {
		return diag.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("diag.idle_timeout", d.IdleTimeout, 60*time.Second); err != nil {
		return diag.Config{}, err
	}
	if d.Enabled {
		if err := diag.CheckBind(out); err != nil {
			return diag.Config{}, err
		}
	}
	return out, nil
}

// loadLocation resolves reminders.timezone; empty means Local.
func loadLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Reminders.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// Validate checks everything Start and hot reload would map.
func Validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("logging.level: unknown %q", lvl)
	}
	if _, err := loadLocation(cfg); err != nil {
		return err
	}
	if s := strings.TrimSpace(cfg.Reminders.MirrorFlush); s != "" {
		if _, err := jobs.ParseSchedule(s); err != nil {
			return fmt.Errorf("reminders.mirror_flush: %w", err)
		}
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := consolePermission(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if surfaceName(cfg) == "telegram" && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required when notifier.surface=telegram")
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDigestConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDiagConfig(cfg); err != nil {
		return err
	}
	return nil
}
