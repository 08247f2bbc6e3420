package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/planner"
)

// pipelineStep names log entries that describe the whole run.
const pipelineStep = "pipeline"

// GenerateInput holds input values for one pipeline run.
type GenerateInput struct {
	ProjectID string
	// Text is appended ahead of the stored project documents.
	Text             string
	Options          agent.Options
	ChangeRequests   []domain.ChangeRequest
	WBSJSON          string
	WBSPath          string
	RequirementsPath string
}

// GeneratePlan runs the pipeline for one project and records its results. Persistence of the
// results is best-effort: failures are logged and the manifest is still returned.
func (s *Service) GeneratePlan(ctx context.Context, in GenerateInput) (*planner.Manifest, error) {
	if s.pipeline == nil {
		return nil, ErrNoPipeline
	}
	project, err := s.repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	items, err := s.repo.ListActionItems(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}

	runID := s.idGen()
	logger := s.logger.With("project_id", project.ID, "run_id", runID)
	payload := agent.Payload{
		ProjectID:        project.ID,
		Text:             in.Text,
		Documents:        docs,
		Methodology:      project.Methodology,
		Options:          MergeOptions(s.defaults, in.Options),
		ActionItems:      items,
		ChangeRequests:   in.ChangeRequests,
		WBSJSON:          in.WBSJSON,
		WBSPath:          in.WBSPath,
		RequirementsPath: in.RequirementsPath,
	}

	m, err := s.pipeline.Generate(ctx, payload)
	if err != nil {
		entry := s.logEntry(project.ID, runID, pipelineStep, domain.LogLevelError, "pipeline aborted")
		var stepErr *planner.StepError
		if errors.As(err, &stepErr) {
			entry.Step = stepErr.StepID
			entry.Metadata = map[string]string{"reason": stepErr.Err.Error()}
		} else {
			entry.Metadata = map[string]string{"reason": err.Error()}
		}
		s.warnOnError(logger, "log entry", s.repo.AppendLog(ctx, entry))
		return nil, err
	}
	s.record(ctx, logger, project.ID, runID, m)
	return m, nil
}

func (s *Service) record(ctx context.Context, logger *log.Logger, projectID, runID string, m *planner.Manifest) {
	if m.Result.Scope != nil {
		s.warnOnError(logger, "scope snapshot", s.saveSnapshot(ctx, projectID, domain.SnapshotScope, m.Result.Scope))
	}
	if m.Result.Schedule != nil {
		s.warnOnError(logger, "schedule snapshot", s.saveSnapshot(ctx, projectID, domain.SnapshotSchedule, m.Result.Schedule))
	}
	s.warnOnError(logger, "manifest snapshot", s.saveSnapshot(ctx, projectID, domain.SnapshotManifest, m))
	if m.Risk != nil {
		s.warnOnError(logger, "risk register", s.repo.ReplaceRisks(ctx, projectID, m.Risk.ActionRisks))
	}
	for _, step := range m.Steps {
		level := domain.LogLevelInfo
		switch step.Status {
		case planner.StatusSkipped:
			level = domain.LogLevelWarn
		case planner.StatusFailed:
			level = domain.LogLevelError
		}
		entry := s.logEntry(projectID, runID, step.ID, level, "step "+step.Status)
		entry.Metadata = map[string]string{"elapsed_ms": strconv.FormatInt(step.Elapsed.Milliseconds(), 10)}
		if step.Reason != "" {
			entry.Metadata["reason"] = step.Reason
		}
		s.warnOnError(logger, "log entry", s.repo.AppendLog(ctx, entry))
	}
	entry := s.logEntry(projectID, runID, pipelineStep, domain.LogLevelInfo, "manifest written")
	entry.Metadata = map[string]string{"path": m.Path}
	s.warnOnError(logger, "log entry", s.repo.AppendLog(ctx, entry))
}

// LatestSchedule returns the most recently stored schedule of a project.
func (s *Service) LatestSchedule(ctx context.Context, projectID string) (agent.ScheduleOutput, error) {
	snap, err := s.repo.LatestSnapshot(ctx, projectID, domain.SnapshotSchedule)
	if errors.Is(err, ErrNotFound) {
		return agent.ScheduleOutput{}, ErrNoSchedule
	}
	if err != nil {
		return agent.ScheduleOutput{}, err
	}
	var out agent.ScheduleOutput
	if err := json.Unmarshal(snap.Payload, &out); err != nil {
		return agent.ScheduleOutput{}, fmt.Errorf("decode schedule snapshot: %w", err)
	}
	return out, nil
}

// LatestManifest returns the most recently recorded manifest of a project.
func (s *Service) LatestManifest(ctx context.Context, projectID string) (planner.Manifest, error) {
	snap, err := s.repo.LatestSnapshot(ctx, projectID, domain.SnapshotManifest)
	if err != nil {
		return planner.Manifest{}, err
	}
	var m planner.Manifest
	if err := json.Unmarshal(snap.Payload, &m); err != nil {
		return planner.Manifest{}, fmt.Errorf("decode manifest snapshot: %w", err)
	}
	return m, nil
}

// Replan applies change requests to the latest stored schedule and stores the revision.
func (s *Service) Replan(ctx context.Context, projectID string, crs []domain.ChangeRequest) (agent.ScheduleOutput, error) {
	if s.replanner == nil {
		return agent.ScheduleOutput{}, ErrNoPipeline
	}
	if len(crs) == 0 {
		return agent.ScheduleOutput{}, ErrEmptyChangeSet
	}
	base, err := s.LatestSchedule(ctx, projectID)
	if err != nil {
		return agent.ScheduleOutput{}, err
	}
	revised, err := s.replanner.Replan(ctx, base, crs)
	if err != nil {
		return agent.ScheduleOutput{}, err
	}

	runID := s.idGen()
	logger := s.logger.With("project_id", projectID, "run_id", runID)
	s.warnOnError(logger, "schedule snapshot", s.saveSnapshot(ctx, projectID, domain.SnapshotSchedule, revised))
	applied := 0
	for _, entry := range revised.ChangeRequests {
		if entry.OK {
			applied++
		}
	}
	entry := s.logEntry(projectID, runID, agent.StepSchedule, domain.LogLevelInfo, "schedule revised")
	entry.Metadata = map[string]string{
		"applied":         strconv.Itoa(applied),
		"rejected":        strconv.Itoa(len(revised.ChangeRequests) - applied),
		"project_finish":  strconv.Itoa(revised.ProjectFinish),
		"baseline_finish": strconv.Itoa(revised.BaselineFinish),
	}
	s.warnOnError(logger, "log entry", s.repo.AppendLog(ctx, entry))
	return revised, nil
}

func (s *Service) saveSnapshot(ctx context.Context, projectID string, kind domain.SnapshotKind, payload any) error {
	snap, err := domain.NewSnapshot(s.idGen(), projectID, kind, payload, s.clock())
	if err != nil {
		return err
	}
	return s.repo.CreateSnapshot(ctx, snap)
}

func (s *Service) logEntry(projectID, runID, step string, level domain.LogLevel, msg string) domain.LogEntry {
	return domain.LogEntry{
		ProjectID:  projectID,
		RunID:      runID,
		Step:       step,
		Level:      level,
		Message:    msg,
		OccurredAt: s.clock().UTC(),
	}
}

func (s *Service) warnOnError(logger *log.Logger, what string, err error) {
	if err != nil {
		logger.Warn("persist failed", "what", what, "err", err)
	}
}

// MergeOptions overlays the set fields of override onto base.
func MergeOptions(base, override agent.Options) agent.Options {
	out := base
	if override.ConfidenceThreshold > 0 {
		out.ConfidenceThreshold = override.ConfidenceThreshold
	}
	if override.MaxAttempts > 0 {
		out.MaxAttempts = override.MaxAttempts
	}
	if override.WBSDepth > 0 {
		out.WBSDepth = override.WBSDepth
	}
	if override.SprintLengthWeeks > 0 {
		out.SprintLengthWeeks = override.SprintLengthWeeks
	}
	if override.EstimationMode != "" {
		out.EstimationMode = override.EstimationMode
	}
	if override.StartDate != "" {
		out.StartDate = override.StartDate
	}
	if len(override.SprintBacklogs) > 0 {
		out.SprintBacklogs = override.SprintBacklogs
	}
	if len(override.Holidays) > 0 {
		out.Holidays = override.Holidays
	}
	for _, f := range []struct{ dst, src **bool }{
		{&out.RunQualityCheck, &override.RunQualityCheck},
		{&out.Hierarchical, &override.Hierarchical},
		{&out.SelfRefine, &override.SelfRefine},
		{&out.TreeOfThoughts, &override.TreeOfThoughts},
		{&out.SkipWeekends, &override.SkipWeekends},
		{&out.UseIntegrator, &override.UseIntegrator},
		{&out.UseRisk, &override.UseRisk},
		{&out.UseQuality, &override.UseQuality},
	} {
		if *f.src != nil {
			*f.dst = *f.src
		}
	}
	return out
}
