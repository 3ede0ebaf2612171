// Package reminder keeps the process-wide registry of pending task reminders.
//
// A task with a due instant gets up to four reminders (1 day, 1 hour, 30 and
// 15 minutes before). Each one is a delayed call registered through the
// clock port; the registry is mirrored to storage after every mutation so the
// set of keys survives a restart. Restored keys come back as sentinels: they
// count and cancel like live entries but never fire.
package reminder
