// Package artifact owns the on-disk layout of pipeline outputs and writes them atomically.
package artifact

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidSegment reports an id that cannot be used as a path segment.
var ErrInvalidSegment = errors.New("invalid path segment")

// Layout resolves artifact paths under one data directory.
type Layout struct {
	DataDir string
}

// NewLayout constructs a layout rooted at dataDir.
func NewLayout(dataDir string) Layout {
	return Layout{DataDir: filepath.Clean(strings.TrimSpace(dataDir))}
}

// ValidateSegment rejects ids that would escape their directory.
func ValidateSegment(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidSegment, id)
	}
	return nil
}

// ManifestPath returns <data>/<project_id>/proposal_manifest.json.
func (l Layout) ManifestPath(projectID string) string {
	return filepath.Join(l.DataDir, projectID, "proposal_manifest.json")
}

// ScopeDir returns <data>/outputs/scope/<project_id>.
func (l Layout) ScopeDir(projectID string) string {
	return filepath.Join(l.DataDir, "outputs", "scope", projectID)
}

// ScheduleDir returns <data>/outputs/schedule/<project_id>, or the _revised sibling.
func (l Layout) ScheduleDir(projectID string, revised bool) string {
	if revised {
		projectID += "_revised"
	}
	return filepath.Join(l.DataDir, "outputs", "schedule", projectID)
}

// ScopeDebugDir returns the root for scope debug dumps.
func (l Layout) ScopeDebugDir() string {
	return filepath.Join(l.DataDir, "outputs", "scope", "dbg")
}

// ScheduleDebugDir returns the root for schedule debug dumps.
func (l Layout) ScheduleDebugDir() string {
	return filepath.Join(l.DataDir, "outputs", "schedule", "dbg")
}

// MarshalJSON renders v as indented JSON with a trailing newline.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return WriteFile(path, data)
}

// WriteCSV writes one header row followed by rows.
func WriteCSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return WriteFile(path, buf.Bytes())
}

// WriteText writes body as-is.
func WriteText(path, body string) error {
	return WriteFile(path, []byte(body))
}

// WriteFile creates parent directories and replaces path atomically.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
