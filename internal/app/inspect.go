package app

import (
	"context"
	"errors"
	"fmt"

	"todox/internal/config"
	"todox/internal/notifier"
	"todox/internal/reminder"
	"todox/internal/storage"
	"todox/internal/tasks"
	logx "todox/pkg/logx"
)

// ErrNoStorage is returned by Inspect when persistence is disabled.
var ErrNoStorage = errors.New("storage disabled in config; no reminders are persisted")

// TaskReminders is one task's persisted reminders.
type TaskReminders struct {
	TaskID string   `json:"task_id"`
	Title  string   `json:"title,omitempty"`
	Count  int      `json:"count"`
	Labels []string `json:"labels"`
}

// Inspection is the persisted reminder state as a restarted daemon would see it.
type Inspection struct {
	Driver string          `json:"driver"`
	Total  int             `json:"total"`
	Tasks  []TaskReminders `json:"tasks"`
}

// Inspect restores the reminder mirror into a throwaway scheduler and
// reports the per-task counts. Titles come from the task file when readable.
func Inspect(ctx context.Context, cfgPath string) (Inspection, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return Inspection{}, err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return Inspection{}, err
	}
	if !enabled || sc.Driver == "memory" {
		return Inspection{}, ErrNoStorage
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return Inspection{}, err
	}
	defer st.Close()

	loc, err := loadLocation(cfg)
	if err != nil {
		return Inspection{}, err
	}
	sched := reminder.New(reminder.Options{Location: loc, Mirror: reminder.NewStoreMirror(st)})
	total := sched.RestoreRemindersFromStorage(ctx)

	titles := map[string]string{}
	if cfg.Reminders.TasksFile != "" {
		if list, err := tasks.LoadFile(cfg.Reminders.TasksFile); err == nil {
			for _, t := range list {
				titles[t.ID] = t.Title
			}
		}
	}

	out := Inspection{Driver: sc.Driver, Total: total}
	idx := map[string]int{}
	for _, e := range sched.Snapshot() {
		i, ok := idx[e.TaskID]
		if !ok {
			i = len(out.Tasks)
			idx[e.TaskID] = i
			out.Tasks = append(out.Tasks, TaskReminders{
				TaskID: e.TaskID,
				Title:  titles[e.TaskID],
				Count:  sched.ScheduledReminderCount(e.TaskID),
			})
		}
		out.Tasks[i].Labels = append(out.Tasks[i].Labels, e.Label)
	}
	return out, nil
}

// PermissionResult reports the outcome of a permission request.
type PermissionResult struct {
	Surface   string `json:"surface"`
	Granted   bool   `json:"granted"`
	Supported bool   `json:"supported"`
}

// RequestPermission asks the configured surface for notification permission,
// prompting on o.Stdin when the surface supports it.
func RequestPermission(ctx context.Context, cfgPath string, o Options) (PermissionResult, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return PermissionResult{}, err
	}
	if err := Validate(cfg); err != nil {
		return PermissionResult{}, err
	}
	log := logx.NewConsole("WARN")
	surface, err := buildSurface(cfg, o, log)
	if err != nil {
		return PermissionResult{}, fmt.Errorf("build surface: %w", err)
	}
	ncfg, _ := mapNotifierConfig(cfg)
	notif := notifier.New(ncfg, notifier.Deps{Surface: surface, Log: log})
	sched := reminder.New(reminder.Options{Notifier: notif, Log: log})

	granted := sched.RequestNotificationPermission(ctx)
	return PermissionResult{
		Surface:   surface.Name(),
		Granted:   granted,
		Supported: sched.AreNotificationsSupported(),
	}, nil
}
