package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"todox/internal/config"
)

// fileTask accepts both "id" and the API's "_id".
type fileTask struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	Title   string `json:"title"`
	DueDate string `json:"dueDate"`
	DueTime string `json:"dueTime"`
	Status  string `json:"status"`
}

// LoadFile reads a task file. JSON and YAML (by extension) are supported; the
// document is either a list of tasks or an object with a "tasks" list.
// Tasks without an id are dropped; for duplicate ids the last one wins.
func LoadFile(path string) ([]Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b)
}

// Parse decodes task file content; path is only used to pick the format.
func Parse(path string, data []byte) ([]Task, error) {
	jb, format, err := config.CoerceToJSON(path, data)
	if err != nil {
		return nil, err
	}
	jb = bytes.TrimSpace(jb)
	if len(jb) == 0 || bytes.Equal(jb, []byte("null")) {
		return nil, nil
	}

	var raw []fileTask
	if jb[0] == '{' {
		var wrap struct {
			Tasks []fileTask `json:"tasks"`
		}
		if err := json.Unmarshal(jb, &wrap); err != nil {
			return nil, fmt.Errorf("%s task file: %w", format, err)
		}
		raw = wrap.Tasks
	} else if err := json.Unmarshal(jb, &raw); err != nil {
		return nil, fmt.Errorf("%s task file: %w", format, err)
	}

	idx := make(map[string]int, len(raw))
	out := make([]Task, 0, len(raw))
	for _, r := range raw {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = strings.TrimSpace(r.MongoID)
		}
		if id == "" {
			continue
		}
		t := Task{ID: id, Title: r.Title, DueDate: r.DueDate, DueTime: r.DueTime, Status: r.Status}
		if i, ok := idx[id]; ok {
			out[i] = t
			continue
		}
		idx[id] = len(out)
		out = append(out, t)
	}
	return out, nil
}
