// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/planner"
)

// Response status values shared by every surface.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusDegraded = "degraded"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrPipelineFailed reports that a required pipeline step aborted the run.
var ErrPipelineFailed = errors.New("pipeline failed")

// ErrUnavailable reports a surface whose backing component is not configured.
var ErrUnavailable = errors.New("surface unavailable")

// CreateProjectRequest captures input for a new project.
type CreateProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Methodology string   `json:"methodology,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	Client      string   `json:"client,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Currency    string   `json:"currency,omitempty"`
}

// AddDocumentRequest captures one document upload.
type AddDocumentRequest struct {
	ProjectID string `json:"-"`
	Kind      string `json:"kind"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
}

// DocumentResult reports a stored document and the action items taken from it.
type DocumentResult struct {
	Status      string              `json:"status"`
	Message     string              `json:"message"`
	Document    domain.Document     `json:"document"`
	ActionItems []domain.ActionItem `json:"action_items"`
}

// GenerateRequest captures one pipeline run.
type GenerateRequest struct {
	ProjectID      string                 `json:"-"`
	Text           string                 `json:"text,omitempty"`
	WBSJSON        string                 `json:"wbs_json,omitempty"`
	ChangeRequests []domain.ChangeRequest `json:"change_requests,omitempty"`
	Options        agent.Options          `json:"options"`
}

// GenerateResult wraps the manifest of a finished run.
type GenerateResult struct {
	Status       string            `json:"status"`
	Message      string            `json:"message"`
	ManifestPath string            `json:"manifest_path"`
	Manifest     *planner.Manifest `json:"manifest"`
}

// ReplanRequest captures change requests applied to the latest schedule.
type ReplanRequest struct {
	ProjectID      string                 `json:"-"`
	ChangeRequests []domain.ChangeRequest `json:"change_requests"`
}

// ReplanResult reports the revised schedule.
type ReplanResult struct {
	Status   string               `json:"status"`
	Message  string               `json:"message"`
	Schedule agent.ScheduleOutput `json:"schedule"`
}

// WeeklyReportRequest names the project and, optionally, a day in the reported week (YYYY-MM-DD).
type WeeklyReportRequest struct {
	ProjectID string `json:"-"`
	WeekOf    string `json:"week_of,omitempty"`
}

// ReportResult wraps one weekly report.
type ReportResult struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Report  domain.WeeklyReport `json:"report"`
}

// ProjectService exposes project reads and creation.
type ProjectService interface {
	ListProjects(context.Context, bool) ([]domain.Project, error)
	GetProject(context.Context, string) (domain.Project, error)
	CreateProject(context.Context, CreateProjectRequest) (domain.Project, error)
}

// DocumentService exposes document ingestion and the action items it produces.
type DocumentService interface {
	AddDocument(context.Context, AddDocumentRequest) (DocumentResult, error)
	ListActionItems(context.Context, string, bool) ([]domain.ActionItem, error)
}

// PlanService exposes pipeline runs and re-planning.
type PlanService interface {
	Generate(context.Context, GenerateRequest) (GenerateResult, error)
	Replan(context.Context, ReplanRequest) (ReplanResult, error)
	LatestSchedule(context.Context, string) (agent.ScheduleOutput, error)
}

// ReportService exposes weekly reports, the risk register, and pipeline logs.
type ReportService interface {
	WeeklyReport(context.Context, WeeklyReportRequest) (ReportResult, error)
	ListWeeklyReports(context.Context, string) ([]domain.WeeklyReport, error)
	ListRisks(context.Context, string) ([]domain.Risk, error)
	ListLogs(context.Context, string, int) ([]domain.LogEntry, error)
}

// Service is the full surface served over HTTP and MCP.
type Service interface {
	ProjectService
	DocumentService
	PlanService
	ReportService
}
