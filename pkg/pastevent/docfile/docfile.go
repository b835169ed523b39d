// Package docfile reads past event documents authored as YAML or JSON files
// and converts them to the JSON payloads the API accepts.
package docfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Read loads a single document from path. Files ending in .json are passed
// through after a syntax check; anything else is parsed as YAML.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if isJSON(path) {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s: malformed JSON", path)
		}
		return data, nil
	}
	return FromYAML(data)
}

// FromYAML converts one YAML document to JSON.
func FromYAML(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil, errors.New("empty document")
	}
	return json.Marshal(doc)
}

// ReadAll loads a list of documents, either a top-level sequence or a
// mapping with an "events" key.
func ReadAll(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var docs []map[string]any
	if isJSON(path) {
		docs, err = decodeList(data, json.Unmarshal)
	} else {
		docs, err = decodeList(data, yaml.Unmarshal)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([][]byte, 0, len(docs))
	for i, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeList(data []byte, unmarshal func([]byte, any) error) ([]map[string]any, error) {
	var list []map[string]any
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Events []map[string]any `json:"events" yaml:"events"`
	}
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("expected a list of documents or an events key: %w", err)
	}
	return wrapped.Events, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
