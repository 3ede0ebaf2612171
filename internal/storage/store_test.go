package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "todox/pkg/logx"
)

func openDriver(t *testing.T, driver, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	if st == nil {
		t.Fatalf("open %s: nil store", driver)
	}
	return st
}

func TestStoreContract(t *testing.T) {
	t.Parallel()
	drivers := []struct {
		name string
		path string
	}{
		{"memory", ""},
		{"file", "todox.db"},
		{"sqlite", "todox.sqlite"},
	}
	for _, d := range drivers {
		d := d
		t.Run(d.name, func(t *testing.T) {
			t.Parallel()
			path := ""
			if d.path != "" {
				path = filepath.Join(t.TempDir(), d.path)
			}
			st := openDriver(t, d.name, path)
			t.Cleanup(func() { _ = st.Close() })
			ctx := context.Background()

			if _, err := st.GetRecord(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetRecord missing err = %v", err)
			}
			if err := st.PutRecord(ctx, "k", []byte(`[{"key":"1-1hour"}]`)); err != nil {
				t.Fatalf("PutRecord: %v", err)
			}
			if err := st.PutRecord(ctx, "k", []byte(`[]`)); err != nil {
				t.Fatalf("PutRecord overwrite: %v", err)
			}
			got, err := st.GetRecord(ctx, "k")
			if err != nil || string(got) != `[]` {
				t.Fatalf("GetRecord = %q, %v", got, err)
			}

			if err := st.AppendHistory(ctx, HistoryEntry{Tag: "task-1-1hour", Surface: "console", Result: "sent", Attempts: 1}); err != nil {
				t.Fatalf("AppendHistory: %v", err)
			}

			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			if err := st.PutDedup(ctx, "task-1-1hour", until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			u, ok, err := st.GetDedup(ctx, "task-1-1hour")
			if err != nil || !ok || !u.Equal(until) {
				t.Fatalf("GetDedup = %v %v %v", u, ok, err)
			}
			if _, ok, _ := st.GetDedup(ctx, "nope"); ok {
				t.Fatalf("unexpected dedup hit")
			}
		})
	}
}

func TestPersistentDriversSurviveReopen(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "state.db")
			ctx := context.Background()

			st := openDriver(t, driver, path)
			if err := st.PutRecord(ctx, "mirror", []byte("payload")); err != nil {
				t.Fatalf("PutRecord: %v", err)
			}
			until := time.Now().Add(time.Hour)
			if err := st.PutDedup(ctx, "tag", until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st = openDriver(t, driver, path)
			defer st.Close()
			got, err := st.GetRecord(ctx, "mirror")
			if err != nil || string(got) != "payload" {
				t.Fatalf("after reopen GetRecord = %q, %v", got, err)
			}
			if _, ok, err := st.GetDedup(ctx, "tag"); err != nil || !ok {
				t.Fatalf("after reopen GetDedup ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestFileStoreToleratesCorruptRecords(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "state.records.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st := openDriver(t, "file", filepath.Join(dir, "state.db"))
	defer st.Close()
	if _, err := st.GetRecord(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestFileStoreCompactsDedupJournal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	until := time.Now().Add(time.Hour)

	st := openDriver(t, "file", path)
	if err := st.PutDedup(ctx, "expired", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("PutDedup expired: %v", err)
	}
	for i := range compactEvery {
		if err := st.PutDedup(ctx, fmt.Sprintf("k%d", i), until); err != nil {
			t.Fatalf("PutDedup %d: %v", i, err)
		}
	}
	if err := st.PutDedup(ctx, "last", until); err != nil {
		t.Fatalf("PutDedup last: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.PutDedup(ctx, "closed", until); !errors.Is(err, ErrDisabled) {
		t.Fatalf("PutDedup after Close err = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "state.dedup.snapshot.json")); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	st = openDriver(t, "file", path)
	defer st.Close()
	for _, key := range []string{"k0", fmt.Sprintf("k%d", compactEvery-1), "last"} {
		got, ok, err := st.GetDedup(ctx, key)
		if err != nil || !ok || got.UnixMilli() != until.UnixMilli() {
			t.Fatalf("GetDedup(%s) = %v, %v, %v", key, got, ok, err)
		}
	}
	if _, ok, _ := st.GetDedup(ctx, "expired"); ok {
		t.Fatalf("expired key survived compaction")
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none"} {
		st, err := Open(Config{Driver: d}, logx.Logger{})
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
	if !ValidDriver("SQLite") || ValidDriver("redis") {
		t.Fatalf("ValidDriver mismatch")
	}
}
