package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	logx "todox/pkg/logx"
)

// Config controls the job runner.
type Config struct {
	Enabled  bool
	Timezone string // IANA name, empty means Local
}

// Func is the body of a scheduled job.
type Func func(ctx context.Context) error

type runState struct {
	running  atomic.Bool
	runs     atomic.Uint64
	skips    atomic.Uint64
	failures atomic.Uint64

	mu      sync.Mutex
	lastErr string
	lastRun time.Time
	took    time.Duration
}

type def struct {
	name    string
	spec    Spec
	timeout time.Duration
	job     Func
	entryID cron.EntryID
	spread  time.Duration
	state   *runState
}

// ScheduleInfo describes one registered schedule.
type ScheduleInfo struct {
	Name          string        `json:"name"`
	Spec          string        `json:"spec"`
	Timeout       time.Duration `json:"timeout"`
	StartupSpread time.Duration `json:"startupSpread,omitempty"`
	Next          time.Time     `json:"next,omitempty"`
	Prev          time.Time     `json:"prev,omitempty"`
	Running       bool          `json:"running"`
	Runs          uint64        `json:"runs"`
	Skips         uint64        `json:"skips"`
	Failures      uint64        `json:"failures"`
	LastRun       time.Time     `json:"lastRun,omitempty"`
	LastTook      time.Duration `json:"lastTook,omitempty"`
	LastErr       string        `json:"lastErr,omitempty"`
}

// Snapshot is a point-in-time view of the runner.
type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Started   bool           `json:"started"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}

// Service owns the cron instance and the schedule definitions.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []*def

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}
