package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd("1.2.3")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{{"version"}, {"--version"}} {
		out, err := execute(t, "", args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if strings.TrimSpace(out) != "todox version 1.2.3" {
			t.Fatalf("%v output = %q", args, out)
		}
	}
}

func TestStatusEmptyFileStorage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	body := `{"reminders":{"tasks_file":"` + filepath.ToSlash(filepath.Join(dir, "tasks.json")) + `"},` +
		`"storage":{"driver":"file","path":"` + filepath.ToSlash(filepath.Join(dir, "data")) + `"}}`
	cfg := writeConfig(t, body)

	out, err := execute(t, "", "status", "--config", cfg)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "storage file: 0 reminders across 0 tasks") {
		t.Fatalf("output = %q", out)
	}

	out, err = execute(t, "", "status", "--json", "-c", cfg)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var rep statusReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if rep.Reminders == nil || rep.Reminders.Total != 0 || rep.Unit != nil {
		t.Fatalf("report = %+v", rep)
	}
}

func TestStatusWithoutStorageFails(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t, `{"reminders":{"tasks_file":"tasks.json"}}`)
	if _, err := execute(t, "", "status", "--config", cfg); err == nil {
		t.Fatal("expected error when storage is disabled")
	}
}

func TestPermissionPrompt(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t, `{"logging":{"level":"error"},"reminders":{"tasks_file":"tasks.json"},"console":{"permission":"prompt"}}`)

	out, err := execute(t, "no\n", "permission", "--config", cfg)
	if err != nil {
		t.Fatalf("permission: %v", err)
	}
	if !strings.Contains(out, "[y/N]") || !strings.Contains(out, "console: notifications denied") {
		t.Fatalf("output = %q", out)
	}
}
