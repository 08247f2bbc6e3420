package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/tmp/data/")
	if got := l.ManifestPath("p1"); got != filepath.Join("/tmp/data", "p1", "proposal_manifest.json") {
		t.Fatalf("unexpected manifest path %q", got)
	}
	if got := l.ScheduleDir("p1", true); got != filepath.Join("/tmp/data", "outputs", "schedule", "p1_revised") {
		t.Fatalf("unexpected revised path %q", got)
	}
	if got := l.ScopeDir("p1"); got != filepath.Join("/tmp/data", "outputs", "scope", "p1") {
		t.Fatalf("unexpected scope path %q", got)
	}
}

func TestValidateSegment(t *testing.T) {
	for _, bad := range []string{"", "..", "a/b", `a\b`} {
		if err := ValidateSegment(bad); !errors.Is(err, ErrInvalidSegment) {
			t.Fatalf("ValidateSegment(%q) error = %v, want ErrInvalidSegment", bad, err)
		}
	}
	if err := ValidateSegment("proj-1"); err != nil {
		t.Fatalf("ValidateSegment() error = %v", err)
	}
}

func TestWriteJSONAndCSV(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "nested", "out.json")
	if err := WriteJSON(jsonPath, map[string]any{"b": 1, "a": "<x>"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "{\n  \"a\": \"<x>\",\n  \"b\": 1\n}\n" {
		t.Fatalf("unexpected json %q", data)
	}

	csvPath := filepath.Join(dir, "plan.csv")
	if err := WriteCSV(csvPath, []string{"id", "name"}, [][]string{{"1", "a, b"}}); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	data, err = os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "id,name\n1,\"a, b\"\n" {
		t.Fatalf("unexpected csv %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
