package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evanschultz/pmforge/internal/config"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/planner"
)

const meetingNotes = `# Kickoff meeting

The portal shall allow customers to reset their password.
The portal must export invoices as PDF.
Responses should load within two seconds.

ACTION: Confirm hosting budget @dana due:2026-03-06
`

// cliEnv points every path at dataDir and disables dev-mode file logging.
func cliEnv(t *testing.T, dataDir string) {
	t.Helper()
	t.Setenv("PMFORGE_CONFIG", filepath.Join(dataDir, "config.toml"))
	t.Setenv("PMFORGE_DATA_DIR", dataDir)
	t.Setenv("PMFORGE_DB_PATH", "")
	t.Setenv("PMFORGE_DEV_MODE", "false")
	t.Setenv("PMFORGE_APP_NAME", "")
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v\nstderr:\n%s", args, err, errOut)
	}
	return out
}

func TestRunPaths(t *testing.T) {
	dataDir := t.TempDir()
	cliEnv(t, dataDir)

	out := mustRunCLI(t, "paths")
	for _, want := range []string{
		"app: pmforge",
		"dev_mode: false",
		"data_dir: " + dataDir,
		"outputs: " + filepath.Join(dataDir, "outputs"),
		"db: " + filepath.Join(dataDir, "pmforge.db"),
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got\n%s", want, out)
		}
	}

	custom := filepath.Join(t.TempDir(), "other.db")
	out = mustRunCLI(t, "--db", custom, "paths")
	if !strings.Contains(out, "db: "+custom) {
		t.Fatalf("expected --db override, got\n%s", out)
	}
}

func TestRunVersion(t *testing.T) {
	cliEnv(t, t.TempDir())
	out := mustRunCLI(t, "version")
	if strings.TrimSpace(out) != "pmforge "+version {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dataDir := t.TempDir()
	cliEnv(t, dataDir)
	if err := os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte("[llm]\nprovider = \"gpt\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, _, err := runCLI(t, "project", "list")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestPlanningFlow(t *testing.T) {
	dataDir := t.TempDir()
	cliEnv(t, dataDir)

	out := mustRunCLI(t, "project", "create", "--name", "Portal Upgrade", "--owner", "dana")
	if !strings.Contains(out, "created project portal-upgrade") {
		t.Fatalf("unexpected create output %q", out)
	}
	out = mustRunCLI(t, "project", "list")
	if !strings.Contains(out, "portal-upgrade") || !strings.Contains(out, "waterfall") {
		t.Fatalf("unexpected list output %q", out)
	}

	notes := filepath.Join(t.TempDir(), "kickoff-minutes.md")
	if err := os.WriteFile(notes, []byte(meetingNotes), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	out = mustRunCLI(t, "ingest", "-p", "portal-upgrade", notes)
	if !strings.Contains(out, "meeting") || !strings.Contains(out, "1 action item(s)") {
		t.Fatalf("unexpected ingest output %q", out)
	}

	out = mustRunCLI(t, "generate", "-p", "portal-upgrade", "--json")
	var m planner.Manifest
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("decode manifest: %v\n%s", err, out)
	}
	if len(m.Scope.Requirements) != 3 {
		t.Fatalf("expected 3 fallback requirements, got %d", len(m.Scope.Requirements))
	}
	if len(m.Steps) == 0 || m.Steps[0].ID != "scope" || m.Steps[0].Status != planner.StatusOK {
		t.Fatalf("unexpected steps %#v", m.Steps)
	}
	manifestPath := filepath.Join(dataDir, m.ProjectID, "proposal_manifest.json")
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("expected manifest on disk at %s: %v", manifestPath, err)
	}

	out = mustRunCLI(t, "show", "schedule", "-p", "portal-upgrade")
	if !strings.Contains(out, "critical path:") || !strings.Contains(out, "FLOAT") {
		t.Fatalf("unexpected schedule output\n%s", out)
	}
	out = mustRunCLI(t, "show", "srs", "-p", "portal-upgrade", "--style", "raw")
	if !strings.Contains(out, "reset their password") {
		t.Fatalf("expected srs body, got\n%s", out)
	}

	changes := filepath.Join(t.TempDir(), "changes.json")
	if err := os.WriteFile(changes, []byte(`[{"op":"update_duration","id":"missing","duration":4}]`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	out = mustRunCLI(t, "replan", "-p", "portal-upgrade", "--changes", changes)
	if !strings.Contains(out, "update_duration missing: rejected") {
		t.Fatalf("expected rejected change request, got\n%s", out)
	}

	out = mustRunCLI(t, "report", "-p", "portal-upgrade", "--week", "2026-03-04", "--style", "raw")
	if !strings.Contains(out, "# Weekly status: Portal Upgrade") || !strings.Contains(out, "Confirm hosting budget") {
		t.Fatalf("unexpected report output\n%s", out)
	}
	out = mustRunCLI(t, "show", "report", "-p", "portal-upgrade", "--style", "raw")
	if !strings.Contains(out, "Week of 2026-03-02") {
		t.Fatalf("unexpected stored report\n%s", out)
	}
}

func TestGenerateUnknownProject(t *testing.T) {
	cliEnv(t, t.TempDir())
	_, _, err := runCLI(t, "generate", "-p", "nope")
	if err == nil || !strings.Contains(err.Error(), "run generate command") {
		t.Fatalf("expected generate failure, got %v", err)
	}
}

func TestExportImport(t *testing.T) {
	src := t.TempDir()
	cliEnv(t, src)
	mustRunCLI(t, "project", "create", "--name", "Data Lake", "--methodology", "agile")
	bundle := filepath.Join(t.TempDir(), "nested", "export.json")
	mustRunCLI(t, "export", "--out", bundle)

	dst := t.TempDir()
	cliEnv(t, dst)
	out := mustRunCLI(t, "import", "--in", bundle)
	if !strings.Contains(out, "imported 1 project(s)") {
		t.Fatalf("unexpected import output %q", out)
	}
	out = mustRunCLI(t, "project", "list")
	if !strings.Contains(out, "data-lake") || !strings.Contains(out, "agile") {
		t.Fatalf("expected imported project, got\n%s", out)
	}
}

func TestReadChangeRequests(t *testing.T) {
	crs, err := readChangeRequests("-", strings.NewReader(`[{"op":"add_pred","id":"B","pred":"A"}]`))
	if err != nil {
		t.Fatalf("readChangeRequests() error = %v", err)
	}
	if len(crs) != 1 || crs[0].Op != domain.ChangeOpAddPred || crs[0].TaskID != "B" || crs[0].Predecessor != "A" {
		t.Fatalf("unexpected change requests %#v", crs)
	}

	crs, err = readChangeRequests("-", strings.NewReader(`{"change_requests":[{"op":"update_name","task_id":"A","new_name":"Design"}]}`))
	if err != nil || len(crs) != 1 || crs[0].NewName != "Design" {
		t.Fatalf("unexpected wrapped change requests %#v, err %v", crs, err)
	}

	if _, err := readChangeRequests("-", strings.NewReader("  ")); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := readChangeRequests("-", strings.NewReader("[{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRuntimeLoggerDevFile(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC) }
	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "pmforge", true, config.LoggingConfig{
		Level:   "info",
		DevFile: config.DevFileConfig{Enabled: true, Dir: dir},
	}, now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	wantPath := filepath.Join(dir, "pmforge-20260304.log")
	if logger.DevLogPath() != wantPath {
		t.Fatalf("unexpected dev log path %q", logger.DevLogPath())
	}

	logger.Info("pipeline started", "project_id", "p1")
	logger.SetConsoleEnabled(false)
	logger.Warn("console muted")
	logger.Component().Info("component event")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(console.String(), "pipeline started") || strings.Contains(console.String(), "console muted") {
		t.Fatalf("unexpected console output %q", console.String())
	}
	content, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"pipeline started", "console muted", "component event", "project_id=p1"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %q in dev log, got\n%s", want, content)
		}
	}
}

func TestRuntimeLoggerRejectsLevel(t *testing.T) {
	if _, err := newRuntimeLogger(nil, "pmforge", false, config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"":              "pmforge",
		"  ":            "pmforge",
		"pm forge/dev":  "pm-forge-dev",
		"team:planning": "team-planning",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWorkspaceRootFrom(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); got != root {
		t.Fatalf("workspaceRootFrom() = %q, want %q", got, root)
	}
}
