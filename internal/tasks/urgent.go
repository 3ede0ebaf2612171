package tasks

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// UrgentWindow is how far ahead a task counts as "due soon".
const UrgentWindow = 24 * time.Hour

// Urgent is an active task due within the urgent window.
type Urgent struct {
	Task Task
	Due  time.Time
}

// SelectUrgent returns active tasks whose due instant lies in (now, now+window],
// closest deadline first. A non-positive window means UrgentWindow.
func SelectUrgent(all []Task, now time.Time, window time.Duration, loc *time.Location) []Urgent {
	if window <= 0 {
		window = UrgentWindow
	}
	out := make([]Urgent, 0)
	for _, t := range all {
		if !strings.EqualFold(strings.TrimSpace(t.Status), StatusActive) {
			continue
		}
		due, ok := ResolveDue(t, loc)
		if !ok {
			continue
		}
		left := due.Sub(now)
		if left <= 0 || left > window {
			continue
		}
		out = append(out, Urgent{Task: t, Due: due})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}

// FormatRemaining renders the time left until due: "3h 12m", "45m" or
// "Overdue". Less than a whole minute left counts as overdue.
func FormatRemaining(due, now time.Time) string {
	left := due.Sub(now)
	hours := int(left / time.Hour)
	minutes := int((left % time.Hour) / time.Minute)
	if left <= 0 || (hours == 0 && minutes == 0) {
		return "Overdue"
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
