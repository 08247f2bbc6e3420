package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Accepted enum values.
var (
	llmProviders    = []string{"none", "openai", "ollama", "anthropic"}
	methodologies   = []string{"waterfall", "agile"}
	estimationModes = []string{"heuristic", "llm"}
	logLevels       = []string{"debug", "info", "warn", "error", "fatal"}
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Data     DataConfig     `toml:"data"`
	Logging  LoggingConfig  `toml:"logging"`
	LLM      LLMConfig      `toml:"llm"`
	Scope    ScopeConfig    `toml:"scope"`
	Quality  QualityConfig  `toml:"quality"`
	Schedule ScheduleConfig `toml:"schedule"`
	Cost     CostConfig     `toml:"cost"`
	Planner  PlannerConfig  `toml:"planner"`
	RAG      RAGConfig      `toml:"rag"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// DataConfig roots every generated artifact; outputs land under <dir>/outputs.
type DataConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type LLMConfig struct {
	Provider          string `toml:"provider"`
	Model             string `toml:"model"`
	BaseURL           string `toml:"base_url"`
	APIKeyEnv         string `toml:"api_key_env"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxRetries        int    `toml:"max_retries"`
	BackoffCapSeconds int    `toml:"backoff_cap_seconds"`
	DebugDump         bool   `toml:"debug_dump"`
}

type ScopeConfig struct {
	ConfidenceThreshold  float64 `toml:"confidence_threshold"`
	MaxAttempts          int     `toml:"max_attempts"`
	WBSDepth             int     `toml:"wbs_depth"`
	RunQualityCheck      bool    `toml:"run_quality_check"`
	Hierarchical         bool    `toml:"hierarchical"`
	SelfRefine           bool    `toml:"self_refine"`
	SelfRefineIterations int     `toml:"self_refine_iterations"`
	SelfRefineTarget     float64 `toml:"self_refine_target"`
	TreeOfThoughts       bool    `toml:"tree_of_thoughts"`
	MaxTimeSeconds       int     `toml:"max_time_seconds"`
	MinQuality           float64 `toml:"min_quality"`
}

type QualityConfig struct {
	Threshold float64 `toml:"threshold"`
}

type ScheduleConfig struct {
	Methodology       string   `toml:"methodology"`
	SprintLengthWeeks int      `toml:"sprint_length_weeks"`
	EstimationMode    string   `toml:"estimation_mode"`
	StartDate         string   `toml:"start_date"`
	SkipWeekends      bool     `toml:"skip_weekends"`
	Holidays          []string `toml:"holidays"`
}

type CostConfig struct {
	BaseCostPerReq float64 `toml:"base_cost_per_req"`
	Currency       string  `toml:"currency"`
}

type PlannerConfig struct {
	UseIntegrator bool `toml:"use_integrator"`
	UseRisk       bool `toml:"use_risk"`
	UseQuality    bool `toml:"use_quality"`
	Parallel      bool `toml:"parallel"`
}

type RAGConfig struct {
	TemplatesDir string `toml:"templates_dir"`
	TopK         int    `toml:"top_k"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

func Default(dbPath, dataDir string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Data: DataConfig{
			Dir: dataDir,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".pmforge/log",
			},
		},
		LLM: LLMConfig{
			Provider:          "none",
			APIKeyEnv:         "OPENAI_API_KEY",
			TimeoutSeconds:    300,
			MaxRetries:        3,
			BackoffCapSeconds: 30,
		},
		Scope: ScopeConfig{
			ConfidenceThreshold:  0.75,
			MaxAttempts:          3,
			WBSDepth:             3,
			SelfRefineIterations: 2,
			SelfRefineTarget:     0.9,
		},
		Quality: QualityConfig{
			Threshold: 75,
		},
		Schedule: ScheduleConfig{
			Methodology:       "waterfall",
			SprintLengthWeeks: 2,
			EstimationMode:    "heuristic",
		},
		Cost: CostConfig{
			BaseCostPerReq: 1000,
			Currency:       "USD",
		},
		Planner: PlannerConfig{
			UseRisk:  true,
			Parallel: true,
		},
		RAG: RAGConfig{
			TopK: 3,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Data.Dir) == "" {
		return errors.New("data.dir is required")
	}
	if !oneOf(logLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if !oneOf(llmProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid llm.provider: %q", c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be > 0")
	}
	if c.LLM.MaxRetries < 1 {
		return errors.New("llm.max_retries must be >= 1")
	}
	if c.LLM.BackoffCapSeconds < 0 {
		return errors.New("llm.backoff_cap_seconds must be >= 0")
	}

	if c.Scope.ConfidenceThreshold < 0 || c.Scope.ConfidenceThreshold > 1 {
		return fmt.Errorf("scope.confidence_threshold must be within [0, 1], got %v", c.Scope.ConfidenceThreshold)
	}
	if c.Scope.MaxAttempts < 1 {
		return errors.New("scope.max_attempts must be >= 1")
	}
	if c.Scope.WBSDepth < 1 {
		return errors.New("scope.wbs_depth must be >= 1")
	}
	if c.Scope.SelfRefineIterations < 0 {
		return errors.New("scope.self_refine_iterations must be >= 0")
	}
	if c.Scope.SelfRefineTarget < 0 || c.Scope.SelfRefineTarget > 1 {
		return fmt.Errorf("scope.self_refine_target must be within [0, 1], got %v", c.Scope.SelfRefineTarget)
	}
	if c.Scope.MaxTimeSeconds < 0 {
		return errors.New("scope.max_time_seconds must be >= 0")
	}
	if c.Scope.MinQuality < 0 || c.Scope.MinQuality > 1 {
		return fmt.Errorf("scope.min_quality must be within [0, 1], got %v", c.Scope.MinQuality)
	}
	if c.Quality.Threshold < 0 || c.Quality.Threshold > 100 {
		return fmt.Errorf("quality.threshold must be within [0, 100], got %v", c.Quality.Threshold)
	}

	if !oneOf(methodologies, c.Schedule.Methodology) {
		return fmt.Errorf("invalid schedule.methodology: %q", c.Schedule.Methodology)
	}
	if c.Schedule.SprintLengthWeeks < 1 {
		return errors.New("schedule.sprint_length_weeks must be >= 1")
	}
	if !oneOf(estimationModes, c.Schedule.EstimationMode) {
		return fmt.Errorf("invalid schedule.estimation_mode: %q", c.Schedule.EstimationMode)
	}
	if d := strings.TrimSpace(c.Schedule.StartDate); d != "" {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("schedule.start_date must be YYYY-MM-DD: %q", d)
		}
	}
	for i, h := range c.Schedule.Holidays {
		if _, err := time.Parse(time.DateOnly, strings.TrimSpace(h)); err != nil {
			return fmt.Errorf("schedule.holidays[%d] must be YYYY-MM-DD: %q", i, h)
		}
	}

	if c.Cost.BaseCostPerReq < 0 {
		return errors.New("cost.base_cost_per_req must be >= 0")
	}
	if strings.TrimSpace(c.Cost.Currency) == "" {
		return errors.New("cost.currency is required")
	}
	if c.RAG.TopK < 1 {
		return errors.New("rag.top_k must be >= 1")
	}
	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	return nil
}

// OutputsDir is the artifact root under the data dir.
func (c Config) OutputsDir() string {
	return filepath.Join(c.Data.Dir, "outputs")
}

// APIKey resolves the key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c LLMConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

func oneOf(allowed []string, v string) bool {
	return slices.Contains(allowed, strings.ToLower(strings.TrimSpace(v)))
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
