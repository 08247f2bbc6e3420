package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Recorder writes raw replies to disk for offline inspection.
// Files land at <dir>/<project_id>/llm_raw_attempt<N>_<ts>.txt.
type Recorder struct {
	dir string
	now func() time.Time
}

// NewRecorder constructs a Recorder rooted at dir. An empty dir disables recording.
func NewRecorder(dir string, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{dir: strings.TrimSpace(dir), now: now}
}

// Enabled reports whether dumps are written.
func (r *Recorder) Enabled() bool {
	return r != nil && r.dir != ""
}

// Dump writes one raw reply and returns its path.
func (r *Recorder) Dump(projectID string, attempt int, raw string) (string, error) {
	if !r.Enabled() {
		return "", nil
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" || strings.ContainsAny(projectID, `/\`) || projectID == ".." {
		return "", fmt.Errorf("invalid project id %q for debug dump", projectID)
	}
	dir := filepath.Join(r.dir, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	name := fmt.Sprintf("llm_raw_attempt%d_%s.txt", attempt, r.now().UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return "", fmt.Errorf("write debug dump: %w", err)
	}
	return path, nil
}
