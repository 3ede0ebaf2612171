package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "todox/pkg/logx"
)

// Store is the persistence API used by the scheduler mirror and the notifier.
type Store interface {
	// GetRecord returns ErrNotFound when key has never been written.
	GetRecord(ctx context.Context, key string) ([]byte, error)
	PutRecord(ctx context.Context, key string, value []byte) error

	AppendHistory(ctx context.Context, e HistoryEntry) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// ValidDriver reports whether d names a supported driver (or disables storage).
func ValidDriver(d string) bool {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "none", "file", "sqlite", "sqlite3", "memory", "mem":
		return true
	}
	return false
}
