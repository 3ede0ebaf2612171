package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "todox/pkg/logx"
)

// compactEvery folds the dedup journal into its snapshot after this many
// appends.
const compactEvery = 1000

// fileStore keeps state next to cfg.Path, using its name without extension
// as a prefix:
//
//	<prefix>.records.json         records, rewritten atomically on every put
//	<prefix>.history.jsonl        delivery history, append-only
//	<prefix>.dedup.snapshot.json  dedup state at the last compaction
//	<prefix>.dedup.journal.jsonl  dedup updates since then
type fileStore struct {
	log    logx.Logger
	prefix string

	mu      sync.Mutex
	closed  bool
	records map[string]string
	history *os.File
	journal *os.File
	dedup   map[string]int64 // key -> until, unix millis
	pending int
}

type dedupLine struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{
		log:     log,
		prefix:  strings.TrimSuffix(path, filepath.Ext(path)),
		records: map[string]string{},
		dedup:   map[string]int64{},
	}

	if err := readJSON(s.file("records.json"), &s.records); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("records snapshot unreadable; starting empty", logx.String("path", s.file("records.json")), logx.Err(err))
		s.records = map[string]string{}
	}
	_ = readJSON(s.file("dedup.snapshot.json"), &s.dedup)
	_ = replayJournal(s.file("dedup.journal.jsonl"), s.dedup)
	dropExpired(s.dedup, time.Now())

	var err error
	if s.history, err = openAppend(s.file("history.jsonl")); err != nil {
		return nil, err
	}
	if s.journal, err = openAppend(s.file("dedup.journal.jsonl")); err != nil {
		_ = s.history.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) file(suffix string) string { return s.prefix + "." + suffix }

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.history.Close(), s.journal.Close())
}

func (s *fileStore) GetRecord(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

// PutRecord keeps the in-memory map unchanged when the snapshot write fails.
func (s *fileStore) PutRecord(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	next := make(map[string]string, len(s.records)+1)
	for k, v := range s.records {
		next[k] = v
	}
	next[key] = string(value)
	if err := writeJSONAtomic(s.file("records.json"), next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *fileStore) AppendHistory(_ context.Context, e HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.history).Encode(e)
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	line := dedupLine{Key: key, Until: until.UnixMilli()}
	if err := json.NewEncoder(s.journal).Encode(line); err != nil {
		return err
	}
	s.dedup[key] = line.Until
	if s.pending++; s.pending >= compactEvery {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok || key == "" {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// compactLocked writes the live dedup map as the new snapshot and empties
// the journal.
func (s *fileStore) compactLocked() error {
	dropExpired(s.dedup, time.Now())
	if err := writeJSONAtomic(s.file("dedup.snapshot.json"), s.dedup); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	s.pending = 0
	return nil
}

// writeJSONAtomic replaces path with v through a synced temp file.
func writeJSONAtomic(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := json.NewEncoder(tmp).Encode(v); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// replayJournal applies journal lines in order; torn or malformed lines are
// skipped.
func replayJournal(path string, into map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return scanLines(f, func(b []byte) {
		var l dedupLine
		if json.Unmarshal(b, &l) == nil && l.Key != "" {
			into[l.Key] = l.Until
		}
	})
}

func scanLines(r io.Reader, fn func([]byte)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fn(sc.Bytes())
	}
	return sc.Err()
}

func dropExpired(m map[string]int64, now time.Time) {
	cutoff := now.UnixMilli()
	for k, until := range m {
		if until < cutoff {
			delete(m, k)
		}
	}
}
