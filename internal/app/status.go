package app

import (
	"todox/internal/digest"
	"todox/internal/jobs"
	rtsup "todox/internal/runtime/supervisor"
)

// Status is the /status payload.
type Status struct {
	Surface    string         `json:"surface"`
	Permitted  bool           `json:"permitted"`
	Timezone   string         `json:"timezone"`
	Reminders  int            `json:"reminders"`
	Tasks      int            `json:"tasks"`
	Displayed  int            `json:"displayed"`
	DueSoon    []digest.Line  `json:"due_soon"`
	Jobs       jobs.Snapshot  `json:"jobs"`
	Goroutines rtsup.Snapshot `json:"goroutines"`
}

func (a *App) Status() Status {
	st := Status{
		Surface:   a.surface.Name(),
		Permitted: a.sched.AreNotificationsSupported(),
		Timezone:  a.loc.String(),
		Reminders: a.sched.Total(),
		Tasks:     len(a.tasks.Tasks()),
		Displayed: a.notif.Displayed(),
		DueSoon:   a.digest.Lines(),
		Jobs:      a.jobs.Snapshot(),
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}
