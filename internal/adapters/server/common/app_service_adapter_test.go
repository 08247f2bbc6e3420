package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evanschultz/pmforge/internal/adapters/storage/sqlite"
	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/app"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/planner"
)

type pipelineFunc func(context.Context, agent.Payload) (*planner.Manifest, error)

func (f pipelineFunc) Generate(ctx context.Context, in agent.Payload) (*planner.Manifest, error) {
	return f(ctx, in)
}

type shiftReplanner struct{}

func (shiftReplanner) Replan(_ context.Context, base agent.ScheduleOutput, crs []domain.ChangeRequest) (agent.ScheduleOutput, error) {
	out := base
	out.Revised = true
	out.BaselineFinish = base.ProjectFinish
	out.ProjectFinish = base.ProjectFinish + 3
	for _, cr := range crs {
		out.ChangeRequests = append(out.ChangeRequests, domain.ChangeLogEntry{OK: cr.TaskID == "A", Op: cr.Op, TaskID: cr.TaskID})
	}
	return out, nil
}

func manifestFor(projectID string, steps ...planner.StepReport) *planner.Manifest {
	return &planner.Manifest{
		ProjectID: projectID,
		Steps:     steps,
		Path:      "/tmp/" + projectID + "/proposal_manifest.json",
		Result: agent.Result{
			Schedule: &agent.ScheduleOutput{ProjectID: projectID, ProjectFinish: 7, CriticalPath: []string{"A", "B", "D"}},
		},
	}
}

func newTestAdapter(t *testing.T, pipe app.Pipeline) (*AppServiceAdapter, domain.Project) {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	svc := app.NewService(repo, ids, func() time.Time { return now }, app.ServiceConfig{
		Pipeline:  pipe,
		Replanner: shiftReplanner{},
	})
	adapter := NewAppServiceAdapter(svc)
	project, err := adapter.CreateProject(context.Background(), CreateProjectRequest{Name: "Payments Portal", Methodology: "agile", Owner: " evan "})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return adapter, project
}

func TestAdapterCreateAndResolveProject(t *testing.T) {
	adapter, project := newTestAdapter(t, nil)
	if project.Metadata.Owner != "evan" {
		t.Fatalf("expected trimmed owner, got %q", project.Metadata.Owner)
	}
	got, err := adapter.GetProject(context.Background(), "payments-portal")
	if err != nil {
		t.Fatalf("GetProject(slug) error = %v", err)
	}
	if got.ID != project.ID {
		t.Fatalf("expected %q, got %q", project.ID, got.ID)
	}
	if _, err := adapter.GetProject(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := adapter.GetProject(context.Background(), " "); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := adapter.CreateProject(context.Background(), CreateProjectRequest{Name: "x", Methodology: "spiral"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad methodology, got %v", err)
	}
}

func TestAdapterAddMeetingDocument(t *testing.T) {
	adapter, project := newTestAdapter(t, nil)
	out, err := adapter.AddDocument(context.Background(), AddDocumentRequest{
		ProjectID: project.Slug,
		Kind:      "meeting",
		Text:      "Kickoff\nACTION: send the budget draft @dana due:2026-03-06\n",
	})
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if out.Status != StatusOK || len(out.ActionItems) != 1 {
		t.Fatalf("unexpected result %#v", out)
	}
	items, err := adapter.ListActionItems(context.Background(), project.ID, false)
	if err != nil {
		t.Fatalf("ListActionItems() error = %v", err)
	}
	if len(items) != 1 || items[0].Owner != "dana" {
		t.Fatalf("unexpected action items %#v", items)
	}
	if _, err := adapter.AddDocument(context.Background(), AddDocumentRequest{ProjectID: project.ID, Kind: "poem", Text: "x"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for unknown kind, got %v", err)
	}
}

func TestAdapterGenerateStatus(t *testing.T) {
	var steps []planner.StepReport
	adapter, project := newTestAdapter(t, pipelineFunc(func(_ context.Context, in agent.Payload) (*planner.Manifest, error) {
		return manifestFor(in.ProjectID, steps...), nil
	}))

	steps = []planner.StepReport{{ID: agent.StepScope, Status: planner.StatusOK}, {ID: agent.StepSchedule, Status: planner.StatusOK}}
	out, err := adapter.Generate(context.Background(), GenerateRequest{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out.Status != StatusOK || out.ManifestPath == "" {
		t.Fatalf("expected ok with manifest path, got %#v", out)
	}

	steps = append(steps, planner.StepReport{ID: agent.StepRisk, Status: planner.StatusSkipped, Reason: "boom"})
	out, err = adapter.Generate(context.Background(), GenerateRequest{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("Generate(skipped) error = %v", err)
	}
	if out.Status != StatusDegraded {
		t.Fatalf("expected degraded status, got %q (%s)", out.Status, out.Message)
	}
}

func TestAdapterGenerateMapsStepError(t *testing.T) {
	adapter, project := newTestAdapter(t, pipelineFunc(func(context.Context, agent.Payload) (*planner.Manifest, error) {
		return nil, &planner.StepError{StepID: agent.StepScope, Err: errors.New("no requirements")}
	}))
	_, err := adapter.Generate(context.Background(), GenerateRequest{ProjectID: project.ID})
	if !errors.Is(err, ErrPipelineFailed) {
		t.Fatalf("expected ErrPipelineFailed, got %v", err)
	}
	var stepErr *planner.StepError
	if !errors.As(err, &stepErr) || stepErr.StepID != agent.StepScope {
		t.Fatalf("expected wrapped StepError, got %v", err)
	}
}

func TestAdapterGenerateWithoutPipeline(t *testing.T) {
	adapter, project := newTestAdapter(t, nil)
	if _, err := adapter.Generate(context.Background(), GenerateRequest{ProjectID: project.ID}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAdapterReplan(t *testing.T) {
	adapter, project := newTestAdapter(t, pipelineFunc(func(_ context.Context, in agent.Payload) (*planner.Manifest, error) {
		return manifestFor(in.ProjectID, planner.StepReport{ID: agent.StepSchedule, Status: planner.StatusOK}), nil
	}))
	ctx := context.Background()
	crs := []domain.ChangeRequest{{Op: domain.ChangeOpUpdateDuration, TaskID: "A"}}

	if _, err := adapter.Replan(ctx, ReplanRequest{ProjectID: project.ID, ChangeRequests: crs}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any schedule, got %v", err)
	}
	if _, err := adapter.Generate(ctx, GenerateRequest{ProjectID: project.ID}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := adapter.Replan(ctx, ReplanRequest{ProjectID: project.ID}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty change set, got %v", err)
	}

	out, err := adapter.Replan(ctx, ReplanRequest{ProjectID: project.ID, ChangeRequests: crs})
	if err != nil {
		t.Fatalf("Replan() error = %v", err)
	}
	if out.Status != StatusOK || out.Schedule.ProjectFinish != 10 || out.Schedule.BaselineFinish != 7 {
		t.Fatalf("unexpected replan result %#v", out)
	}

	crs = append(crs, domain.ChangeRequest{Op: domain.ChangeOpUpdateDuration, TaskID: "Z"})
	out, err = adapter.Replan(ctx, ReplanRequest{ProjectID: project.ID, ChangeRequests: crs})
	if err != nil {
		t.Fatalf("Replan(rejected) error = %v", err)
	}
	if out.Status != StatusDegraded {
		t.Fatalf("expected degraded when a change is rejected, got %q", out.Status)
	}
}

func TestAdapterWeeklyReport(t *testing.T) {
	adapter, project := newTestAdapter(t, nil)
	ctx := context.Background()
	if _, err := adapter.WeeklyReport(ctx, WeeklyReportRequest{ProjectID: project.ID, WeekOf: "March 4"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad week_of, got %v", err)
	}
	out, err := adapter.WeeklyReport(ctx, WeeklyReportRequest{ProjectID: project.ID, WeekOf: "2026-03-04"})
	if err != nil {
		t.Fatalf("WeeklyReport() error = %v", err)
	}
	if got := out.Report.WeekStart.Format(time.DateOnly); got != "2026-03-02" {
		t.Fatalf("expected week start 2026-03-02, got %s", got)
	}
	reports, err := adapter.ListWeeklyReports(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListWeeklyReports() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one stored report, got %d", len(reports))
	}
}

func TestNilAdapterIsUnavailable(t *testing.T) {
	var adapter *AppServiceAdapter
	if _, err := adapter.ListProjects(context.Background(), false); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
