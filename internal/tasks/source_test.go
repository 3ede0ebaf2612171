package tasks

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONList(t *testing.T) {
	t.Parallel()
	data := []byte(`[
		{"_id": "a1", "title": "Write report", "dueDate": "2024-06-01", "dueTime": "09:00", "status": "active"},
		{"id": "b2", "title": "No id wins over _id"},
		{"title": "dropped: no id"},
		{"id": "a1", "title": "Write report v2", "status": "complete"}
	]`)
	got, err := Parse("tasks.json", data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].ID != "a1" || got[0].Title != "Write report v2" || !got[0].Complete() {
		t.Fatalf("duplicate id should keep last record, got %+v", got[0])
	}
	if got[1].ID != "b2" {
		t.Fatalf("second task = %+v", got[1])
	}
}

func TestLoadFileYAMLWrapped(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	body := "tasks:\n  - id: t1\n    title: Pay rent\n    dueDate: \"2024-06-01\"\n    dueTime: \"08:30\"\n    status: active\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" || got[0].DueTime != "08:30" {
		t.Fatalf("unexpected tasks: %+v", got)
	}
}

func TestParseEmptyAndInvalid(t *testing.T) {
	t.Parallel()
	got, err := Parse("tasks.json", []byte("  "))
	if err != nil || len(got) != 0 {
		t.Fatalf("empty file: got %v, err %v", got, err)
	}
	if _, err := Parse("tasks.json", []byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
