package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Format names reported by CoerceToJSON.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// CoerceToJSON returns data as JSON together with the source format. YAML
// (by extension) is decoded and re-encoded so one strict JSON decoder serves
// config and task files alike; anything else is passed through.
func CoerceToJSON(path string, data []byte) ([]byte, string, error) {
	if !isYAMLPath(path) {
		return data, FormatJSON, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, FormatYAML, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, FormatYAML, fmt.Errorf("convert yaml to json: %w", err)
	}
	return out, FormatYAML, nil
}

// stringKeys rewrites non-string map keys (yaml allows `1: x`) so the tree
// can be JSON-encoded.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = stringKeys(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = stringKeys(child)
		}
		return t
	}
	return v
}
