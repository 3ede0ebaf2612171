// Package tasksync keeps the reminder registry in step with the task file.
//
// It stands in for the application that owns the tasks: every change to the
// file is diffed by task id and turned into schedule, update and cancel calls.
package tasksync

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"

	"todox/internal/config"
	"todox/internal/eventbus"
	"todox/internal/tasks"
	logx "todox/pkg/logx"
)

// Scheduler is the part of the reminder scheduler the sync drives.
type Scheduler interface {
	ScheduleTaskReminders(t tasks.Task)
	UpdateTaskReminders(oldTask, newTask tasks.Task)
	CancelTaskReminders(taskID string)
	RestoreRemindersFromStorage(ctx context.Context) int
	PruneSentinels() int
}

type Options struct {
	Path      string
	Scheduler Scheduler
	Bus       eventbus.Bus
	Log       logx.Logger
	// PruneRestored drops restored reminders that the first load did not
	// reschedule.
	PruneRestored bool
	// Load overrides tasks.LoadFile; tests use it.
	Load func(path string) ([]tasks.Task, error)
}

// Result counts what one sync changed.
type Result struct {
	Added   int
	Updated int
	Removed int
}

func (r Result) Changed() bool { return r.Added+r.Updated+r.Removed > 0 }

type Service struct {
	path  string
	sched Scheduler
	bus   eventbus.Bus
	log   logx.Logger
	prune bool
	load  func(string) ([]tasks.Task, error)

	mu      sync.Mutex
	current map[string]tasks.Task
	order   []string
}

func New(opts Options) *Service {
	s := &Service{
		path:    opts.Path,
		sched:   opts.Scheduler,
		bus:     opts.Bus,
		log:     opts.Log,
		prune:   opts.PruneRestored,
		load:    opts.Load,
		current: map[string]tasks.Task{},
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.load == nil {
		s.load = tasks.LoadFile
	}
	return s
}

func (s *Service) Path() string { return s.path }

// Start restores persisted reminders, performs the first load and, when
// enabled, prunes restored entries that the load did not replace.
// A task file that exists but cannot be parsed skips pruning so a typo never
// wipes the persisted registry.
func (s *Service) Start(ctx context.Context) error {
	restored := s.sched.RestoreRemindersFromStorage(ctx)

	list, err := s.readFile()
	if err != nil {
		s.log.Error("initial task load failed; keeping restored reminders", logx.String("path", s.path), logx.Err(err))
		return err
	}
	res := s.Sync(list)
	pruned := 0
	if s.prune {
		pruned = s.sched.PruneSentinels()
	}
	s.log.Info("tasks loaded",
		logx.String("path", s.path),
		logx.Int("tasks", len(list)),
		logx.Int("restored", restored),
		logx.Int("pruned", pruned),
		logx.Int("scheduled", res.Added),
	)
	return nil
}

// Run watches the task file until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	return config.WatchFile(ctx, s.path, s.log, func() { _ = s.Reload() })
}

// Reload reads the task file and applies the differences.
func (s *Service) Reload() error {
	list, err := s.readFile()
	if err != nil {
		s.log.Warn("task reload failed; keeping previous tasks", logx.String("path", s.path), logx.Err(err))
		return err
	}
	res := s.Sync(list)
	if res.Changed() {
		s.log.Info("tasks reloaded", logx.Int("added", res.Added), logx.Int("updated", res.Updated), logx.Int("removed", res.Removed))
	} else {
		s.log.Debug("tasks reloaded; no changes")
	}
	return nil
}

// readFile treats a missing file as an empty list.
func (s *Service) readFile() ([]tasks.Task, error) {
	if s.path == "" {
		return nil, nil
	}
	list, err := s.load(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("task file not found; treating as empty", logx.String("path", s.path))
		return nil, nil
	}
	return list, err
}

// Sync makes list the current task set: new ids are scheduled, changed tasks
// are updated and vanished ids are cancelled.
func (s *Service) Sync(list []tasks.Task) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]tasks.Task, len(list))
	order := make([]string, 0, len(list))
	var res Result
	for _, t := range list {
		if _, dup := next[t.ID]; !dup {
			order = append(order, t.ID)
		}
		next[t.ID] = t
	}
	for _, id := range order {
		t := next[id]
		old, ok := s.current[id]
		switch {
		case !ok:
			s.sched.ScheduleTaskReminders(t)
			res.Added++
		case old != t:
			s.sched.UpdateTaskReminders(old, t)
			res.Updated++
		}
	}
	gone := make([]string, 0)
	for id := range s.current {
		if _, ok := next[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		s.sched.CancelTaskReminders(id)
		res.Removed++
	}

	s.current = next
	s.order = order
	eventbus.Emit(s.bus, eventbus.TasksReloaded, eventbus.TasksEvent{Added: res.Added, Updated: res.Updated, Removed: res.Removed})
	return res
}

// Tasks returns the current task list in file order.
func (s *Service) Tasks() []tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tasks.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.current[id])
	}
	return out
}

// Task looks up one task by id.
func (s *Service) Task(id string) (tasks.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.current[id]
	return t, ok
}
