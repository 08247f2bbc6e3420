package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/app"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/planner"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

var _ Service = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

// ListProjects lists projects, optionally including archived ones.
func (a *AppServiceAdapter) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	projects, err := a.service.ListProjects(ctx, includeArchived)
	if err != nil {
		return nil, mapAppError("list projects", err)
	}
	return projects, nil
}

// GetProject resolves a project by id or slug.
func (a *AppServiceAdapter) GetProject(ctx context.Context, ref string) (domain.Project, error) {
	if err := a.ready(); err != nil {
		return domain.Project{}, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Project{}, fmt.Errorf("project_id is required: %w", ErrInvalidRequest)
	}
	project, err := a.service.ResolveProject(ctx, ref)
	if err != nil {
		return domain.Project{}, mapAppError("get project", err)
	}
	return project, nil
}

// CreateProject creates one project.
func (a *AppServiceAdapter) CreateProject(ctx context.Context, in CreateProjectRequest) (domain.Project, error) {
	if err := a.ready(); err != nil {
		return domain.Project{}, err
	}
	project, err := a.service.CreateProject(ctx, app.CreateProjectInput{
		Name:        in.Name,
		Description: in.Description,
		Methodology: domain.Methodology(in.Methodology),
		Metadata: domain.ProjectMetadata{
			Owner:    strings.TrimSpace(in.Owner),
			Client:   strings.TrimSpace(in.Client),
			Tags:     in.Tags,
			Currency: strings.TrimSpace(in.Currency),
		},
	})
	if err != nil {
		return domain.Project{}, mapAppError("create project", err)
	}
	return project, nil
}

// AddDocument stores one document against a project.
func (a *AppServiceAdapter) AddDocument(ctx context.Context, in AddDocumentRequest) (DocumentResult, error) {
	if err := a.ready(); err != nil {
		return DocumentResult{}, err
	}
	project, err := a.GetProject(ctx, in.ProjectID)
	if err != nil {
		return DocumentResult{}, err
	}
	out, err := a.service.AddDocument(ctx, app.AddDocumentInput{
		ProjectID: project.ID,
		Kind:      domain.DocumentKind(in.Kind),
		Title:     in.Title,
		Text:      in.Text,
		Source:    in.Source,
	})
	if err != nil {
		return DocumentResult{}, mapAppError("add document", err)
	}
	return DocumentResult{
		Status:      StatusOK,
		Message:     fmt.Sprintf("stored %s document with %d action item(s)", out.Document.Kind, len(out.ActionItems)),
		Document:    out.Document,
		ActionItems: out.ActionItems,
	}, nil
}

// ListActionItems lists action items of a project.
func (a *AppServiceAdapter) ListActionItems(ctx context.Context, ref string, includeDone bool) ([]domain.ActionItem, error) {
	project, err := a.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	items, err := a.service.ListActionItems(ctx, project.ID, includeDone)
	if err != nil {
		return nil, mapAppError("list action items", err)
	}
	return items, nil
}

// Generate runs the pipeline for one project.
func (a *AppServiceAdapter) Generate(ctx context.Context, in GenerateRequest) (GenerateResult, error) {
	project, err := a.GetProject(ctx, in.ProjectID)
	if err != nil {
		return GenerateResult{}, err
	}
	m, err := a.service.GeneratePlan(ctx, app.GenerateInput{
		ProjectID:      project.ID,
		Text:           in.Text,
		Options:        in.Options,
		ChangeRequests: in.ChangeRequests,
		WBSJSON:        in.WBSJSON,
	})
	if err != nil {
		return GenerateResult{}, mapAppError("generate", err)
	}
	status, message := manifestStatus(m)
	return GenerateResult{Status: status, Message: message, ManifestPath: m.Path, Manifest: m}, nil
}

// Replan applies change requests to the latest stored schedule.
func (a *AppServiceAdapter) Replan(ctx context.Context, in ReplanRequest) (ReplanResult, error) {
	project, err := a.GetProject(ctx, in.ProjectID)
	if err != nil {
		return ReplanResult{}, err
	}
	out, err := a.service.Replan(ctx, project.ID, in.ChangeRequests)
	if err != nil {
		return ReplanResult{}, mapAppError("replan", err)
	}
	applied := 0
	for _, entry := range out.ChangeRequests {
		if entry.OK {
			applied++
		}
	}
	status := StatusOK
	if out.Degraded || applied < len(out.ChangeRequests) {
		status = StatusDegraded
	}
	return ReplanResult{
		Status:   status,
		Message:  fmt.Sprintf("applied %d of %d change request(s); finish day %d (was %d)", applied, len(out.ChangeRequests), out.ProjectFinish, out.BaselineFinish),
		Schedule: out,
	}, nil
}

// LatestSchedule returns the most recent stored schedule of a project.
func (a *AppServiceAdapter) LatestSchedule(ctx context.Context, ref string) (agent.ScheduleOutput, error) {
	project, err := a.GetProject(ctx, ref)
	if err != nil {
		return agent.ScheduleOutput{}, err
	}
	out, err := a.service.LatestSchedule(ctx, project.ID)
	if err != nil {
		return agent.ScheduleOutput{}, mapAppError("latest schedule", err)
	}
	return out, nil
}

// WeeklyReport builds and stores the weekly report of a project.
func (a *AppServiceAdapter) WeeklyReport(ctx context.Context, in WeeklyReportRequest) (ReportResult, error) {
	project, err := a.GetProject(ctx, in.ProjectID)
	if err != nil {
		return ReportResult{}, err
	}
	var weekOf time.Time
	if raw := strings.TrimSpace(in.WeekOf); raw != "" {
		weekOf, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			return ReportResult{}, fmt.Errorf("week_of must be YYYY-MM-DD: %w", ErrInvalidRequest)
		}
	}
	report, err := a.service.WeeklyReport(ctx, app.WeeklyReportInput{ProjectID: project.ID, WeekOf: weekOf})
	if err != nil {
		return ReportResult{}, mapAppError("weekly report", err)
	}
	return ReportResult{
		Status:  StatusOK,
		Message: "weekly report for " + report.WeekStart.Format(time.DateOnly),
		Report:  report,
	}, nil
}

// ListWeeklyReports lists stored weekly reports.
func (a *AppServiceAdapter) ListWeeklyReports(ctx context.Context, ref string) ([]domain.WeeklyReport, error) {
	project, err := a.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	reports, err := a.service.ListWeeklyReports(ctx, project.ID)
	if err != nil {
		return nil, mapAppError("list weekly reports", err)
	}
	return reports, nil
}

// ListRisks returns the stored risk register.
func (a *AppServiceAdapter) ListRisks(ctx context.Context, ref string) ([]domain.Risk, error) {
	project, err := a.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	risks, err := a.service.ListRisks(ctx, project.ID)
	if err != nil {
		return nil, mapAppError("list risks", err)
	}
	return risks, nil
}

// ListLogs returns recent pipeline log entries, newest first.
func (a *AppServiceAdapter) ListLogs(ctx context.Context, ref string, limit int) ([]domain.LogEntry, error) {
	project, err := a.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	entries, err := a.service.ListLogs(ctx, project.ID, limit)
	if err != nil {
		return nil, mapAppError("list logs", err)
	}
	return entries, nil
}

// manifestStatus is ok when every step ran and the schedule is not degraded.
func manifestStatus(m *planner.Manifest) (string, string) {
	var skipped []string
	for _, step := range m.Steps {
		if step.Status != planner.StatusOK {
			skipped = append(skipped, step.ID)
		}
	}
	degraded := m.Result.Schedule != nil && m.Result.Schedule.Degraded
	switch {
	case degraded:
		return StatusDegraded, "schedule computed without critical path analysis"
	case len(skipped) > 0:
		return StatusDegraded, "plan generated; skipped: " + strings.Join(skipped, ", ")
	default:
		return StatusOK, fmt.Sprintf("plan generated with %d step(s)", len(m.Steps))
	}
}

// mapAppError maps app and domain errors onto transport error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var stepErr *planner.StepError
	switch {
	case errors.Is(err, app.ErrNotFound), errors.Is(err, app.ErrNoSchedule):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrNoPipeline):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnavailable, err))
	case errors.As(err, &stepErr):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrPipelineFailed, err))
	case errors.Is(err, app.ErrEmptyChangeSet),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidMethodology),
		errors.Is(err, domain.ErrInvalidDocumentKind),
		errors.Is(err, domain.ErrInvalidText),
		errors.Is(err, domain.ErrInvalidWBS),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidChangeOp),
		errors.Is(err, planner.ErrInvalidPlan):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
