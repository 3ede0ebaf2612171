package systemd

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by unit queries on platforms without systemd.
var ErrUnsupported = errors.New("systemd: unsupported OS (linux only)")

// UnitStatus is the state of a systemd unit.
type UnitStatus struct {
	Name          string    `json:"name"`
	Active        string    `json:"active"`
	SubState      string    `json:"sub_state"`
	LoadState     string    `json:"load_state"`
	Description   string    `json:"description,omitempty"`
	ActiveSince   time.Time `json:"active_since,omitempty"`
	InactiveSince time.Time `json:"inactive_since,omitempty"`
}

// Found reports whether systemd knows the unit.
func (s UnitStatus) Found() bool { return s.LoadState != "" && s.LoadState != "not-found" }

func notFound(name string) *UnitStatus {
	return &UnitStatus{Name: name, Active: "unknown", SubState: "not-found", LoadState: "not-found"}
}

func unitName(name string) string {
	for _, suf := range []string{".service", ".timer", ".socket", ".target"} {
		if len(name) > len(suf) && name[len(name)-len(suf):] == suf {
			return name
		}
	}
	return name + ".service"
}

// parseTimestamp reads a systemd microsecond timestamp property.
func parseTimestamp(props map[string]any, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.Unix(int64(ts/1_000_000), 0)
	}
	return time.Time{}
}

func stringProp(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func statusFromProps(name string, props map[string]any) *UnitStatus {
	load := stringProp(props, "LoadState")
	if load == "" || load == "not-found" {
		return notFound(name)
	}
	return &UnitStatus{
		Name:          name,
		Active:        stringProp(props, "ActiveState"),
		SubState:      stringProp(props, "SubState"),
		LoadState:     load,
		Description:   stringProp(props, "Description"),
		ActiveSince:   parseTimestamp(props, "ActiveEnterTimestamp"),
		InactiveSince: parseTimestamp(props, "InactiveEnterTimestamp"),
	}
}
