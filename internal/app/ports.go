package app

import (
	"context"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/planner"
)

// Repository is the persistence port for projects and pipeline records.
type Repository interface {
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context, bool) ([]domain.Project, error)

	CreateDocument(context.Context, domain.Document) error
	ListDocuments(context.Context, string) ([]domain.Document, error)

	CreateActionItem(context.Context, domain.ActionItem) error
	UpdateActionItem(context.Context, domain.ActionItem) error
	GetActionItem(context.Context, string) (domain.ActionItem, error)
	ListActionItems(context.Context, string) ([]domain.ActionItem, error)

	ReplaceRisks(context.Context, string, []domain.Risk) error
	ListRisks(context.Context, string) ([]domain.Risk, error)

	CreateWeeklyReport(context.Context, domain.WeeklyReport) error
	ListWeeklyReports(context.Context, string) ([]domain.WeeklyReport, error)

	CreateSnapshot(context.Context, domain.Snapshot) error
	LatestSnapshot(context.Context, string, domain.SnapshotKind) (domain.Snapshot, error)

	AppendLog(context.Context, domain.LogEntry) error
	ListLogs(context.Context, string, int) ([]domain.LogEntry, error)
}

// Pipeline runs the agent plan for one payload.
type Pipeline interface {
	Generate(context.Context, agent.Payload) (*planner.Manifest, error)
}

// Replanner applies change requests to a stored schedule.
type Replanner interface {
	Replan(context.Context, agent.ScheduleOutput, []domain.ChangeRequest) (agent.ScheduleOutput, error)
}
