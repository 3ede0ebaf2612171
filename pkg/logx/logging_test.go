package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "reminder"))

	log.Info("scheduled", Int("count", 3), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if m["message"] != "scheduled" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["comp"] != "reminder" {
		t.Fatalf("comp = %v", m["comp"])
	}
	if m["count"] != float64(3) {
		t.Fatalf("count = %v", m["count"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err = %v", m["err"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should be disabled")
	}
	if !log.Enabled(LevelError) {
		t.Fatal("error should be enabled")
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Info("ignored")
	if Nop().IsZero() {
		t.Fatal("Nop logger is not zero")
	}
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "info", "WARNING", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}

func TestServiceApplyReachesDerivedLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todox.log")
	svc, root := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()
	log := root.With(String("comp", "jobs"))

	log.Debug("before")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("after")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q, want only the debug line written after Apply", lines)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatal(err)
	}
	if m["message"] != "after" || m["comp"] != "jobs" {
		t.Fatalf("line = %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}
