package tasks

import (
	"strconv"
	"strings"
	"time"
)

// Status values used by the task application. Only StatusComplete changes
// reminder behavior; anything else counts as open.
const (
	StatusActive   = "active"
	StatusComplete = "complete"
)

// Task is the subset of a task record supplied by the surrounding application.
type Task struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	DueDate string `json:"dueDate,omitempty"`
	DueTime string `json:"dueTime,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Complete reports whether the task is marked complete.
func (t Task) Complete() bool {
	return strings.EqualFold(strings.TrimSpace(t.Status), StatusComplete)
}

// HasDueDate reports whether a due date is present (it may still be malformed).
func (t Task) HasDueDate() bool { return strings.TrimSpace(t.DueDate) != "" }

// ResolveDue computes the absolute due instant in loc.
//
// With a due time the instant is date + HH:MM (seconds zero); without one it
// is the last instant of the day (23:59:59.999). ok is false when the due date
// is absent or either field is malformed.
func ResolveDue(t Task, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	y, m, d, ok := parseDate(t.DueDate)
	if !ok {
		return time.Time{}, false
	}
	if strings.TrimSpace(t.DueTime) == "" {
		return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc), true
	}
	hh, mm, ok := parseClock(t.DueTime)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc), true
}

// parseDate accepts "2006-01-02" and anything that starts with it
// (e.g. "2024-06-01T00:00:00.000Z" as stored by the API). The calendar
// date is taken as written.
func parseDate(raw string) (int, time.Month, int, bool) {
	s := strings.TrimSpace(raw)
	if len(s) < len("2006-01-02") {
		return 0, 0, 0, false
	}
	if len(s) > 10 && s[10] != 'T' && s[10] != ' ' {
		return 0, 0, 0, false
	}
	d, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return 0, 0, 0, false
	}
	return d.Year(), d.Month(), d.Day(), true
}

// parseClock accepts "H:MM", "HH:MM" and "HH:MM:SS" (seconds are ignored).
func parseClock(raw string) (int, int, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, false
	}
	if len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, 0, false
		}
	}
	return h, m, true
}
