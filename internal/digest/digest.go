// Package digest surfaces active tasks that are due within a window.
//
// Each run logs a banner of the urgent tasks, closest deadline first, and
// shows a label-less notification for any task not yet announced by this
// process.
package digest

import (
	"context"
	"strings"
	"sync"
	"time"

	"todox/internal/clock"
	"todox/internal/jobs"
	"todox/internal/tasks"
	logx "todox/pkg/logx"
)

const (
	JobName         = "digest"
	DefaultSchedule = "@every 5m"
	DefaultTimeout  = 30 * time.Second
)

type Config struct {
	Enabled  bool
	Schedule string
	Window   time.Duration
}

// Source supplies the current task list.
type Source interface {
	Tasks() []tasks.Task
}

// Notifier shows a task notification; label is empty for digest entries.
type Notifier interface {
	ShowTaskNotification(ctx context.Context, t tasks.Task, label string)
}

// Line is one banner row.
type Line struct {
	TaskID    string    `json:"taskId"`
	Title     string    `json:"title"`
	Due       time.Time `json:"due"`
	Remaining string    `json:"remaining"`
}

type Options struct {
	Source   Source
	Notifier Notifier
	Clock    clock.Clock
	Location *time.Location
	Log      logx.Logger
}

type Digest struct {
	src   Source
	notif Notifier
	clk   clock.Clock
	loc   *time.Location
	log   logx.Logger

	mu       sync.Mutex
	window   time.Duration
	notified map[string]struct{}
}

func New(opts Options) *Digest {
	d := &Digest{
		src:      opts.Source,
		notif:    opts.Notifier,
		clk:      opts.Clock,
		loc:      opts.Location,
		log:      opts.Log,
		window:   tasks.UrgentWindow,
		notified: map[string]struct{}{},
	}
	if d.clk == nil {
		d.clk = clock.Real{}
	}
	if d.loc == nil {
		d.loc = time.Local
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	return d
}

// Lines returns the urgent tasks at the current time.
func (d *Digest) Lines() []Line {
	if d.src == nil {
		return nil
	}
	d.mu.Lock()
	window := d.window
	d.mu.Unlock()
	now := d.clk.Now()
	urgent := tasks.SelectUrgent(d.src.Tasks(), now, window, d.loc)
	out := make([]Line, 0, len(urgent))
	for _, u := range urgent {
		out = append(out, Line{
			TaskID:    u.Task.ID,
			Title:     u.Task.Title,
			Due:       u.Due,
			Remaining: tasks.FormatRemaining(u.Due, now),
		})
	}
	return out
}

// Run logs the banner and notifies tasks seen for the first time.
func (d *Digest) Run(ctx context.Context) error {
	if d.src == nil {
		return nil
	}
	d.mu.Lock()
	window := d.window
	d.mu.Unlock()
	now := d.clk.Now()
	urgent := tasks.SelectUrgent(d.src.Tasks(), now, window, d.loc)
	if len(urgent) == 0 {
		d.log.Debug("no urgent tasks")
		return nil
	}

	rows := make([]string, 0, len(urgent))
	fresh := make([]tasks.Task, 0, len(urgent))
	d.mu.Lock()
	for _, u := range urgent {
		rows = append(rows, u.Task.Title+" ("+tasks.FormatRemaining(u.Due, now)+")")
		if _, seen := d.notified[u.Task.ID]; seen {
			continue
		}
		d.notified[u.Task.ID] = struct{}{}
		fresh = append(fresh, u.Task)
	}
	d.mu.Unlock()

	d.log.Info("tasks due soon",
		logx.Int("count", len(urgent)),
		logx.String("tasks", strings.Join(rows, "; ")),
	)
	if d.notif == nil {
		return nil
	}
	for _, t := range fresh {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.notif.ShowTaskNotification(ctx, t, "")
	}
	return nil
}

// Notified reports how many tasks have been announced by this process.
func (d *Digest) Notified() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.notified)
}

// Register installs or removes the digest job on js according to cfg.
func (d *Digest) Register(js *jobs.Service, cfg Config) error {
	if !cfg.Enabled {
		js.Remove(JobName)
		return nil
	}
	d.mu.Lock()
	if cfg.Window > 0 {
		d.window = cfg.Window
	} else {
		d.window = tasks.UrgentWindow
	}
	d.mu.Unlock()
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	_, err := js.AddSchedule(JobName, spec, DefaultTimeout, d.Run)
	return err
}
