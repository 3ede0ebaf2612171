package eventbus

import "time"

// Event types published by the reminder scheduler and the notifier.
const (
	ReminderScheduled = "reminder.scheduled"
	ReminderFired     = "reminder.fired"
	ReminderCancelled = "reminder.cancelled"
	ReminderRestored  = "reminder.restored"

	NotificationSent    = "notification.sent"
	NotificationFailed  = "notification.failed"
	NotificationDropped = "notification.dropped"
	NotificationDeduped = "notification.deduped"

	TasksReloaded = "tasks.reloaded"
)

// ReminderEvent is the payload of the reminder.* events.
type ReminderEvent struct {
	Key    string    `json:"key"`
	TaskID string    `json:"task_id"`
	Label  string    `json:"label"`
	FireAt time.Time `json:"fire_at,omitempty"`
}

// NotificationEvent is the payload of the notification.* events.
type NotificationEvent struct {
	Tag      string `json:"tag"`
	Surface  string `json:"surface"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TasksEvent is the payload of tasks.reloaded.
type TasksEvent struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}
