package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	records map[string][]byte
	history []HistoryEntry
	dedup   map[string]time.Time
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		records: map[string][]byte{},
		dedup:   map[string]time.Time{},
	}
}

func (m *Memory) GetRecord(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrDisabled
	}
	v, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) PutRecord(ctx context.Context, key string, value []byte) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	m.records[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) AppendHistory(ctx context.Context, e HistoryEntry) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.history = append(m.history, e)
	return nil
}

// History returns a copy of the appended history entries.
func (m *Memory) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.history...)
}

func (m *Memory) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	m.dedup[key] = until
	return nil
}

func (m *Memory) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return time.Time{}, false, ErrDisabled
	}
	until, ok := m.dedup[strings.TrimSpace(key)]
	return until, ok, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
