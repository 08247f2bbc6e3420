package domain

import "time"

// LogLevel classifies a persisted pipeline log entry.
type LogLevel string

// LogLevel values used by the pipeline activity ledger.
const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry represents a single activity-log entry for a project pipeline run.
type LogEntry struct {
	ID         int64             `json:"id"`
	ProjectID  string            `json:"project_id"`
	RunID      string            `json:"run_id,omitempty"`
	Step       string            `json:"step"`
	Level      LogLevel          `json:"level"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
