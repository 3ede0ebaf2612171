// Package notifier shows task reminders on a notification surface.
//
// Delivery is asynchronous: ShowTaskNotification only checks permission and
// enqueues. A small worker pool drains the queue under a rate limit, retries
// failed sends with jittered exponential backoff and optionally suppresses
// repeats of the same tag within a dedup window.
//
// # Replace and auto-dismiss
//
// Messages are tagged. Showing a tag that is still displayed dismisses the
// older message first, and every message is dismissed automatically after
// DismissAfter unless something replaced it sooner.
//
// # History
//
// Delivery outcomes are kept in a small in-memory ring and, when a store is
// configured, appended to persistent history.
package notifier
