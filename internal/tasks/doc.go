// Package tasks holds the task fields the reminder engine cares about and the
// helpers that turn a task's due date/time into an absolute instant.
package tasks
