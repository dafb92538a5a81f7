// Package config loads the static parameter table.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chase3718/gesturebridge/internal/param"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Table is the root of a parameter table file.
type Table struct {
	Parameters []param.Spec `json:"parameters" yaml:"parameters"`
}

// LoadTable reads a parameter table from a .json, .yaml or .yml file.
// Unknown keys are rejected.
func LoadTable(path string) (*Table, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	t := &Table{}
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(t); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(t); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return t, nil
}

// Validate checks the table shape. Per-parameter rules are enforced by
// param.NewStore.
func (t *Table) Validate() error {
	if len(t.Parameters) == 0 {
		return errors.New("no parameters defined")
	}
	for i, p := range t.Parameters {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("parameter %d: id is required", i)
		}
	}
	return nil
}

// Encode writes t as YAML, or as indented JSON when format is "json".
func (t *Table) Encode(w io.Writer, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return enc.Close()
}
