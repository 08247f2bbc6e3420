package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/pmforge.db", "/tmp/pmforge")
	if cfg.Database.Path != "/tmp/pmforge.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.OutputsDir() != filepath.Join("/tmp/pmforge", "outputs") {
		t.Fatalf("unexpected outputs dir %q", cfg.OutputsDir())
	}
	if cfg.LLM.Provider != "none" || cfg.LLM.TimeoutSeconds != 300 || cfg.LLM.MaxRetries != 3 {
		t.Fatalf("unexpected llm defaults %#v", cfg.LLM)
	}
	if cfg.Scope.ConfidenceThreshold != 0.75 || cfg.Scope.MaxAttempts != 3 || cfg.Scope.WBSDepth != 3 {
		t.Fatalf("unexpected scope defaults %#v", cfg.Scope)
	}
	if cfg.Schedule.Methodology != "waterfall" || cfg.Schedule.EstimationMode != "heuristic" {
		t.Fatalf("unexpected schedule defaults %#v", cfg.Schedule)
	}
	if !cfg.Planner.UseRisk || !cfg.Planner.Parallel || cfg.Planner.UseIntegrator || cfg.Planner.UseQuality {
		t.Fatalf("unexpected planner defaults %#v", cfg.Planner)
	}
	if cfg.Cost.BaseCostPerReq != 1000 || cfg.Cost.Currency != "USD" {
		t.Fatalf("unexpected cost defaults %#v", cfg.Cost)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/pmforge.db", "/tmp/pmforge")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}

	empty := filepath.Join(t.TempDir(), "empty.toml")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(empty, defaults); err != nil {
		t.Fatalf("Load(empty) error = %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/pmforge.db"

[llm]
provider = "ollama"
model = "llama3.1"
timeout_seconds = 60

[scope]
hierarchical = true
self_refine = true
max_time_seconds = 120

[schedule]
methodology = "agile"
sprint_length_weeks = 3
start_date = "2026-03-02"
skip_weekends = true
holidays = ["2026-03-09"]

[planner]
use_integrator = true
parallel = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db", "/tmp/pmforge"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/pmforge.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "llama3.1" || cfg.LLM.Timeout() != time.Minute {
		t.Fatalf("unexpected llm config %#v", cfg.LLM)
	}
	if cfg.LLM.MaxRetries != 3 {
		t.Fatalf("expected untouched max_retries default, got %d", cfg.LLM.MaxRetries)
	}
	if !cfg.Scope.Hierarchical || !cfg.Scope.SelfRefine || cfg.Scope.MaxTimeSeconds != 120 {
		t.Fatalf("unexpected scope config %#v", cfg.Scope)
	}
	if cfg.Schedule.Methodology != "agile" || cfg.Schedule.SprintLengthWeeks != 3 || len(cfg.Schedule.Holidays) != 1 {
		t.Fatalf("unexpected schedule config %#v", cfg.Schedule)
	}
	if !cfg.Planner.UseIntegrator || cfg.Planner.Parallel || !cfg.Planner.UseRisk {
		t.Fatalf("unexpected planner config %#v", cfg.Planner)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"provider":    "[llm]\nprovider = \"gpt\"\n",
		"methodology": "[schedule]\nmethodology = \"kanban\"\n",
		"estimation":  "[schedule]\nestimation_mode = \"guess\"\n",
		"start_date":  "[schedule]\nstart_date = \"03/02/2026\"\n",
		"holiday":     "[schedule]\nholidays = [\"soon\"]\n",
		"confidence":  "[scope]\nconfidence_threshold = 1.5\n",
		"threshold":   "[quality]\nthreshold = 120.0\n",
		"top_k":       "[rag]\ntop_k = 0\n",
		"level":       "[logging]\nlevel = \"loud\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path, Default("/tmp/pmforge.db", "/tmp/pmforge")); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[llm\nprovider = "), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := Load(path, Default("/tmp/pmforge.db", "/tmp/pmforge"))
	if err == nil || !strings.Contains(err.Error(), "decode toml") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestLLMAPIKeyFromEnv(t *testing.T) {
	t.Setenv("PMFORGE_TEST_KEY", "  secret  ")
	cfg := LLMConfig{APIKeyEnv: "PMFORGE_TEST_KEY"}
	if got := cfg.APIKey(); got != "secret" {
		t.Fatalf("expected trimmed key, got %q", got)
	}
	if got := (LLMConfig{}).APIKey(); got != "" {
		t.Fatalf("expected empty key without env name, got %q", got)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := EnsureConfigDir(path); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected config dir to exist, stat error %v", err)
	}
}
