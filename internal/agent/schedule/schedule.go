// Package schedule turns a WBS into a CPM plan with calendar dates, agile sprints, and
// change-request re-planning.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/artifact"
	"github.com/evanschultz/pmforge/internal/cpm"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
)

// ErrEmptyPlan reports a WBS that flattened to no tasks.
var ErrEmptyPlan = errors.New("schedule has no tasks")

// Config holds agent defaults. Per-run payload options override them.
type Config struct {
	Methodology        domain.Methodology
	SprintLengthWeeks  int
	EstimationMode     string
	StartDate          string
	SkipWeekends       bool
	Holidays           []string
	EstimationAttempts int
}

// DefaultConfig returns waterfall, two-week sprints, heuristic estimation, and 3 LLM attempts.
func DefaultConfig() Config {
	return Config{
		Methodology:        domain.MethodologyWaterfall,
		SprintLengthWeeks:  2,
		EstimationMode:     ModeHeuristic,
		EstimationAttempts: 3,
	}
}

// ChangeObserver is notified once per applied change request.
type ChangeObserver func(op domain.ChangeOp, ok bool)

// Agent is the Schedule Agent.
type Agent struct {
	cfg      Config
	caller   *llm.Caller
	layout   artifact.Layout
	recorder *llm.Recorder
	observe  ChangeObserver
	logger   *log.Logger
	now      func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithConfig replaces the defaults.
func WithConfig(cfg Config) Option {
	return func(a *Agent) {
		a.cfg = cfg
	}
}

// WithRecorder overrides where raw estimation replies are dumped. A nil recorder disables dumps.
func WithRecorder(r *llm.Recorder) Option {
	return func(a *Agent) {
		a.recorder = r
	}
}

// WithChangeObserver registers fn for change-request outcomes.
func WithChangeObserver(fn ChangeObserver) Option {
	return func(a *Agent) {
		a.observe = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock sets the time source for the default start date and debug dump names.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// New constructs a Schedule Agent writing artifacts under layout. caller may be nil.
func New(caller *llm.Caller, layout artifact.Layout, opts ...Option) *Agent {
	a := &Agent{
		cfg:    DefaultConfig(),
		caller: caller,
		layout: layout,
		logger: agent.DiscardLogger(),
		now:    time.Now,
	}
	a.recorder = llm.NewRecorder(layout.ScheduleDebugDir(), func() time.Time { return a.now() })
	for _, opt := range opts {
		opt(a)
	}
	def := DefaultConfig()
	if a.cfg.Methodology == "" {
		a.cfg.Methodology = def.Methodology
	}
	if a.cfg.SprintLengthWeeks < 1 {
		a.cfg.SprintLengthWeeks = def.SprintLengthWeeks
	}
	if a.cfg.EstimationMode == "" {
		a.cfg.EstimationMode = def.EstimationMode
	}
	if a.cfg.EstimationAttempts < 1 {
		a.cfg.EstimationAttempts = def.EstimationAttempts
	}
	return a
}

// Name returns the step name.
func (a *Agent) Name() string {
	return agent.StepSchedule
}

type runSettings struct {
	methodology  domain.Methodology
	sprintWeeks  int
	mode         string
	startDate    string
	skipWeekends bool
	holidays     []string
	backlogs     []int
}

func (a *Agent) settings(in agent.Payload) (runSettings, []string, error) {
	o := in.Options
	s := runSettings{
		methodology:  a.cfg.Methodology,
		sprintWeeks:  a.cfg.SprintLengthWeeks,
		mode:         a.cfg.EstimationMode,
		startDate:    a.cfg.StartDate,
		skipWeekends: agent.Bool(o.SkipWeekends, a.cfg.SkipWeekends),
		holidays:     a.cfg.Holidays,
		backlogs:     o.SprintBacklogs,
	}
	if in.Methodology != "" {
		s.methodology = in.Methodology
	}
	s.methodology = domain.NormalizeMethodology(s.methodology)
	if !domain.IsValidMethodology(s.methodology) {
		return runSettings{}, nil, domain.ErrInvalidMethodology
	}
	if o.SprintLengthWeeks > 0 {
		s.sprintWeeks = o.SprintLengthWeeks
	}
	if o.StartDate != "" {
		s.startDate = o.StartDate
	}
	if len(o.Holidays) > 0 {
		s.holidays = o.Holidays
	}
	var warnings []string
	if o.EstimationMode != "" {
		s.mode = o.EstimationMode
	}
	s.mode = strings.ToLower(strings.TrimSpace(s.mode))
	if s.mode != ModeHeuristic && s.mode != ModeLLM {
		warnings = append(warnings, fmt.Sprintf("unknown estimation_mode %q, using heuristic", s.mode))
		s.mode = ModeHeuristic
	}
	return s, warnings, nil
}

// Run loads the WBS, estimates, computes the CPM plan, writes the artifacts, and applies any
// change requests on top as a revised plan.
func (a *Agent) Run(ctx context.Context, in agent.Payload) (agent.Result, error) {
	if err := artifact.ValidateSegment(in.ProjectID); err != nil {
		return agent.Result{}, fmt.Errorf("schedule: %w", err)
	}
	set, warnings, err := a.settings(in)
	if err != nil {
		return agent.Result{}, fmt.Errorf("schedule: %w", err)
	}
	logger := a.logger.With("project_id", in.ProjectID, "step", agent.StepSchedule)

	w, source, wbsWarnings := a.loadWBS(ctx, in, set.methodology, logger)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return agent.Result{}, ctxErr
	}
	warnings = append(warnings, wbsWarnings...)
	tasks := tasksFromWBS(w)
	if len(tasks) == 0 {
		return agent.Result{}, fmt.Errorf("schedule: %w", ErrEmptyPlan)
	}
	logger.Info("wbs loaded", "source", source, "tasks", len(tasks))

	mode := set.mode
	if mode == ModeLLM {
		if err := a.estimateLLM(ctx, in.ProjectID, set.methodology, set.sprintWeeks, tasks, logger); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return agent.Result{}, ctxErr
			}
			warnings = append(warnings, estimationError(err))
			logger.Warn("llm estimation failed; using heuristic", "err", err)
			mode = ModeHeuristic
		}
	}
	EstimateHeuristic(tasks, set.methodology, set.sprintWeeks)
	if linkHierarchy(tasks) {
		logger.Debug("no dependencies declared; linked wbs hierarchy")
	}

	out, err := a.plan(in.ProjectID, tasks, set, logger)
	if err != nil {
		return agent.Result{}, fmt.Errorf("schedule: %w", err)
	}
	out.EstimationMode = mode
	out.Warnings = append(warnings, out.Warnings...)
	if err := writeArtifacts(a.layout.ScheduleDir(in.ProjectID, false), out); err != nil {
		return agent.Result{}, fmt.Errorf("schedule: %w", err)
	}
	logger.Info("plan computed", "project_finish", out.ProjectFinish, "critical_path", strings.Join(out.CriticalPath, " -> "))

	if len(in.ChangeRequests) > 0 {
		revised, err := a.Replan(ctx, *out, in.ChangeRequests)
		if err != nil {
			return agent.Result{}, err
		}
		out = &revised
	}
	return agent.Result{Schedule: out, Warnings: out.Warnings}, nil
}

// Replan applies crs to a copy of base, recomputes CPM and calendar dates, and writes the revised
// artifacts. base is not modified. Rejected requests are reported in the change log.
func (a *Agent) Replan(ctx context.Context, base agent.ScheduleOutput, crs []domain.ChangeRequest) (agent.ScheduleOutput, error) {
	if err := ctx.Err(); err != nil {
		return agent.ScheduleOutput{}, err
	}
	if err := artifact.ValidateSegment(base.ProjectID); err != nil {
		return agent.ScheduleOutput{}, fmt.Errorf("replan: %w", err)
	}
	if len(base.Tasks) == 0 {
		return agent.ScheduleOutput{}, fmt.Errorf("replan: %w", ErrEmptyPlan)
	}
	logger := a.logger.With("project_id", base.ProjectID, "step", agent.StepSchedule)

	tasks, entries := ApplyChangeRequests(base.Tasks, crs)
	for _, e := range entries {
		if a.observe != nil {
			a.observe(e.Op, e.OK)
		}
		if !e.OK {
			logger.Warn("change request rejected", "op", e.Op, "task_id", e.TaskID, "reason", e.Reason)
		}
	}

	set := settingsFrom(base)
	out, err := a.plan(base.ProjectID, tasks, set, logger)
	if err != nil {
		return agent.ScheduleOutput{}, fmt.Errorf("replan: %w", err)
	}
	out.EstimationMode = base.EstimationMode
	out.Revised = true
	out.BaselineFinish = base.ProjectFinish
	if base.Revised {
		out.BaselineFinish = base.BaselineFinish
	}
	out.ChangeRequests = entries
	out.Warnings = mergeWarnings(base.Warnings, out.Warnings)
	if err := writeArtifacts(a.layout.ScheduleDir(base.ProjectID, true), out); err != nil {
		return agent.ScheduleOutput{}, fmt.Errorf("replan: %w", err)
	}
	logger.Info("plan revised", "baseline_finish", out.BaselineFinish, "project_finish", out.ProjectFinish, "changes", len(entries))
	return *out, nil
}

// mergeWarnings concatenates warning lists, keeping the first occurrence of each message.
func mergeWarnings(lists ...[]string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, list := range lists {
		for _, w := range list {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// settingsFrom recovers the run settings a plan was produced with. Sprints without task ids came
// from explicit backlogs and are kept as such.
func settingsFrom(base agent.ScheduleOutput) runSettings {
	s := runSettings{
		methodology:  domain.NormalizeMethodology(base.Methodology),
		sprintWeeks:  base.SprintLengthWeeks,
		startDate:    base.StartDate,
		skipWeekends: base.SkipWeekends,
		holidays:     base.Holidays,
	}
	if base.SprintLengthWeeks < 1 {
		s.sprintWeeks = DefaultConfig().SprintLengthWeeks
	}
	if len(base.Sprints) > 0 && len(base.Sprints[0].TaskIDs) == 0 {
		for _, sp := range base.Sprints {
			s.backlogs = append(s.backlogs, sp.Committed)
		}
	}
	return s
}

// plan runs CPM, projects dates, and plans sprints.
func (a *Agent) plan(projectID string, tasks []domain.ScheduleTask, set runSettings, logger *log.Logger) (*agent.ScheduleOutput, error) {
	out := &agent.ScheduleOutput{
		ProjectID:    projectID,
		Methodology:  set.methodology,
		SkipWeekends: set.skipWeekends,
		Holidays:     set.holidays,
	}
	res, err := cpm.Compute(tasks)
	if err != nil {
		logger.Warn("cpm failed; using degraded plan", "err", err)
		res = cpm.Degraded(tasks)
		out.Degraded = true
		out.Warnings = append(out.Warnings, fmt.Sprintf("degraded plan without float: %v", err))
	}
	for _, h := range res.Heals {
		logger.Warn("dependency removed", "edge", h.Edge.String(), "reason", h.Reason)
		out.Healed = append(out.Healed, fmt.Sprintf("%s (%s)", h.Edge, h.Reason))
	}

	cal, err := NewCalendar(set.startDate, set.skipWeekends, set.holidays, a.now())
	if err != nil {
		return nil, err
	}
	cal.Project(res.Tasks)
	out.Tasks = res.Tasks
	out.ProjectFinish = res.ProjectFinish
	out.CriticalPath = res.CriticalPath
	out.StartDate = cal.Date(0)
	out.FinishDate = cal.Date(res.ProjectFinish)

	if set.methodology == domain.MethodologyAgile {
		out.SprintLengthWeeks = set.sprintWeeks
		out.Sprints = PlanSprints(out.Tasks, set.sprintWeeks, set.backlogs)
		out.Burndown = Burndown(out.Sprints)
	}
	return out, nil
}
