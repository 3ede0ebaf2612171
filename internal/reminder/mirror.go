package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"todox/internal/storage"
)

// MirrorKey is the storage record holding the persisted registry keys.
const MirrorKey = "todox_scheduled_reminders"

// MirrorEntry is one persisted registry key. Timer handles are never stored.
type MirrorEntry struct {
	Key          string `json:"key"`
	TaskID       string `json:"taskId"`
	ReminderType string `json:"reminderType"`
}

// Mirror loads and saves the ordered list of registry keys.
type Mirror interface {
	Load(ctx context.Context) ([]MirrorEntry, error)
	Save(ctx context.Context, entries []MirrorEntry) error
}

// StoreMirror keeps the mirror as one JSON record in a storage.Store.
type StoreMirror struct {
	store storage.Store
	key   string
}

func NewStoreMirror(st storage.Store) *StoreMirror {
	return &StoreMirror{store: st, key: MirrorKey}
}

// Load returns nil entries when nothing was saved yet.
func (m *StoreMirror) Load(ctx context.Context) ([]MirrorEntry, error) {
	if m == nil || m.store == nil {
		return nil, storage.ErrDisabled
	}
	b, err := m.store.GetRecord(ctx, m.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeMirror(b)
}

func (m *StoreMirror) Save(ctx context.Context, entries []MirrorEntry) error {
	if m == nil || m.store == nil {
		return storage.ErrDisabled
	}
	b, err := encodeMirror(entries)
	if err != nil {
		return err
	}
	return m.store.PutRecord(ctx, m.key, b)
}

func encodeMirror(entries []MirrorEntry) ([]byte, error) {
	if entries == nil {
		entries = []MirrorEntry{}
	}
	return json.Marshal(entries)
}

func decodeMirror(b []byte) ([]MirrorEntry, error) {
	var out []MirrorEntry
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode reminder mirror: %w", err)
	}
	return out, nil
}

// MemoryMirror is an in-process Mirror that keeps the encoded bytes, so a
// corrupt payload can be injected with SetRaw.
type MemoryMirror struct {
	mu    sync.Mutex
	raw   []byte
	saves int
	err   error
}

func NewMemoryMirror() *MemoryMirror { return &MemoryMirror{} }

func (m *MemoryMirror) Load(ctx context.Context) ([]MirrorEntry, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.raw == nil {
		return nil, nil
	}
	return decodeMirror(m.raw)
}

func (m *MemoryMirror) Save(ctx context.Context, entries []MirrorEntry) error {
	_ = ctx
	b, err := encodeMirror(entries)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.raw = b
	m.saves++
	return nil
}

// Entries decodes the last saved payload (nil if it is unreadable).
func (m *MemoryMirror) Entries() []MirrorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil
	}
	out, _ := decodeMirror(m.raw)
	return out
}

// Saves reports how many successful Save calls happened.
func (m *MemoryMirror) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// SetRaw replaces the stored payload verbatim.
func (m *MemoryMirror) SetRaw(b []byte) {
	m.mu.Lock()
	m.raw = append([]byte(nil), b...)
	m.mu.Unlock()
}

// SetErr makes subsequent Load and Save calls fail with err (nil clears it).
func (m *MemoryMirror) SetErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
