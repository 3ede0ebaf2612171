package config

import (
	"reflect"
	"strings"

	logx "todox/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.timezone", strings.TrimSpace(newCfg.Reminders.Timezone)),
			logx.String("reminders.tasks_file", strings.TrimSpace(newCfg.Reminders.TasksFile)),
			logx.Bool("reminders.prune_restored", newCfg.Reminders.PruneRestoredEnabled()),
			logx.String("reminders.mirror_flush", strings.TrimSpace(newCfg.Reminders.MirrorFlush)),
		)
	}

	oN, nN := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	if (oldCfg.Notifier != nil) != (newCfg.Notifier != nil) || oN != nN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.present", newCfg.Notifier != nil),
			logx.Bool("notifier.enabled", nN.Enabled),
			logx.String("notifier.surface", nN.Surface),
			logx.Int("notifier.workers", nN.Workers),
			logx.Int("notifier.queue_size", nN.QueueSize),
			logx.Int("notifier.rate_per_sec", nN.RatePerSec),
			logx.String("notifier.dedup_window", strings.TrimSpace(nN.DedupWindow)),
			logx.String("notifier.dismiss_after", strings.TrimSpace(nN.DismissAfter)),
		)
	}

	if oldCfg.Console != newCfg.Console {
		changed = append(changed, "console")
		attrs = append(attrs, logx.String("console.permission", newCfg.Console.Permission))
	}

	// Telegram (never log token)
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.chat_set", newCfg.Telegram.ChatID != 0),
			logx.Int("telegram.thread_id", newCfg.Telegram.ThreadID),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
		)
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if (oldCfg.Storage != nil) != (newCfg.Storage != nil) || oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.String("storage.path", strings.TrimSpace(nS.Path)),
		)
	}

	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.schedule", strings.TrimSpace(newCfg.Digest.Schedule)),
			logx.String("digest.window", strings.TrimSpace(newCfg.Digest.Window)),
		)
	}

	// Diag (never log token)
	if oldCfg.Diag != newCfg.Diag {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newCfg.Diag.Enabled),
			logx.String("diag.addr", strings.TrimSpace(newCfg.Diag.Addr)),
			logx.Bool("diag.token_set", strings.TrimSpace(newCfg.Diag.Token) != ""),
			logx.Bool("diag.pprof", newCfg.Diag.Pprof),
			logx.Bool("diag.allow_insecure", newCfg.Diag.AllowInsecure),
		)
	}

	return changed, attrs
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
