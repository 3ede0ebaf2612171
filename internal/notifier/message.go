package notifier

import (
	"todox/internal/tasks"
	"todox/internal/transport"
)

const reminderTitle = "Task Reminder"

// Tag identifies a task notification; label may be empty.
func Tag(taskID, label string) string {
	if label == "" {
		return "task-" + taskID
	}
	return "task-" + taskID + "-" + label
}

// BuildMessage renders the notification for a task reminder.
func BuildMessage(t tasks.Task, label string) transport.Message {
	body := "Task due soon: " + t.Title
	if label != "" {
		body = "Task due soon (" + label + "): " + t.Title
	}
	return transport.Message{
		Tag:   Tag(t.ID, label),
		Title: reminderTitle,
		Body:  body,
	}
}
