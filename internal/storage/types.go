package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("record not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": plain files (atomic record snapshot + jsonl journals)
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory": process-local maps, nothing survives a restart
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// HistoryEntry records one notification delivery attempt.
// Keep it compact and schema-stable.
type HistoryEntry struct {
	At       time.Time `json:"at"`
	Tag      string    `json:"tag"`
	Surface  string    `json:"surface"`
	Result   string    `json:"result"` // sent | failed | dropped
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
