// Package planner builds the agent step plan, runs it in dependency waves, and writes the proposal
// manifest.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/artifact"
)

var (
	// ErrInvalidPlan reports a plan whose dependencies are not satisfiable in order.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrUnknownStep reports a step with no registered agent.
	ErrUnknownStep = errors.New("no agent registered for step")
)

// StepError reports that a required step failed and the run was aborted.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Step statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// StepReport is the outcome of one step. Elapsed is kept out of the manifest.
type StepReport struct {
	ID      string        `json:"id"`
	Status  string        `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"-"`
}

// Config selects optional steps and execution mode.
type Config struct {
	UseRisk       bool
	UseIntegrator bool
	UseQuality    bool
	Parallel      bool
}

// DefaultConfig runs the risk step and executes independent steps concurrently.
func DefaultConfig() Config {
	return Config{UseRisk: true, Parallel: true}
}

// StepObserver is notified after every step.
type StepObserver func(step, status string, elapsed time.Duration)

// Planner is the Meta-Planner.
type Planner struct {
	cfg     Config
	agents  map[string]agent.Agent
	layout  artifact.Layout
	observe StepObserver
	logger  *log.Logger
	now     func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithConfig replaces the defaults.
func WithConfig(cfg Config) Option {
	return func(p *Planner) {
		p.cfg = cfg
	}
}

// WithAgent registers a under its Name, replacing any earlier registration.
func WithAgent(a agent.Agent) Option {
	return func(p *Planner) {
		if a != nil {
			p.agents[a.Name()] = a
		}
	}
}

// WithStepObserver registers fn for step outcomes.
func WithStepObserver(fn StepObserver) Option {
	return func(p *Planner) {
		p.observe = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock sets the manifest time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// New constructs a Planner writing manifests under layout. The integrator step defaults to the
// deterministic summary until an LLM-backed one is registered.
func New(layout artifact.Layout, opts ...Option) *Planner {
	p := &Planner{
		cfg:    DefaultConfig(),
		agents: map[string]agent.Agent{},
		layout: layout,
		logger: agent.DiscardLogger(),
		now:    time.Now,
	}
	p.agents[agent.StepIntegrator] = NewIntegrator(nil, nil)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate executes the plan for in and writes the manifest. A failed required step aborts the run
// with a *StepError and no manifest is written.
func (p *Planner) Generate(ctx context.Context, in agent.Payload) (*Manifest, error) {
	if err := artifact.ValidateSegment(in.ProjectID); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if in.Options.RunQualityCheck == nil && agent.Bool(in.Options.UseQuality, p.cfg.UseQuality) {
		in.Options.RunQualityCheck = agent.BoolPtr(true)
	}
	plan := p.BuildPlan(in)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	logger := p.logger.With("project_id", in.ProjectID)
	logger.Info("pipeline started", "steps", len(plan.Steps), "parallel", p.cfg.Parallel)

	run := &runState{results: map[string]agent.Result{}, reports: map[string]StepReport{}}
	for _, wave := range plan.waves() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes, err := p.runWave(ctx, wave, in, run, logger)
		for _, o := range outcomes {
			if o.report.ID == "" {
				continue
			}
			run.reports[o.report.ID] = o.report
			if o.report.Status == StatusOK {
				run.results[o.report.ID] = o.result
			}
		}
		if err != nil {
			logger.Error("pipeline aborted", "err", err)
			return nil, err
		}
	}

	m, err := p.assemble(in.ProjectID, plan, run)
	if err != nil {
		return nil, err
	}
	m.Path = p.layout.ManifestPath(in.ProjectID)
	if err := artifact.WriteJSON(m.Path, m); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	logger.Info("manifest written", "path", m.Path)
	return m, nil
}

type runState struct {
	results map[string]agent.Result
	reports map[string]StepReport
}

type outcome struct {
	report StepReport
	result agent.Result
}

// runWave runs the steps of one wave. Upstream state is only read here; the caller records outcomes
// after every step of the wave has returned.
func (p *Planner) runWave(ctx context.Context, wave []Step, in agent.Payload, run *runState, logger *log.Logger) ([]outcome, error) {
	out := make([]outcome, len(wave))
	exec := func(ctx context.Context, i int) error {
		o, err := p.runStep(ctx, wave[i], in, run, logger)
		out[i] = o
		return err
	}
	if !p.cfg.Parallel || len(wave) == 1 {
		for i := range wave {
			if err := exec(ctx, i); err != nil {
				return out, err
			}
		}
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range wave {
		g.Go(func() error {
			return exec(gctx, i)
		})
	}
	return out, g.Wait()
}

func (p *Planner) runStep(ctx context.Context, s Step, in agent.Payload, run *runState, logger *log.Logger) (outcome, error) {
	logger = logger.With("step", s.ID)
	finish := func(status, reason string, elapsed time.Duration, res agent.Result) outcome {
		if p.observe != nil {
			p.observe(s.ID, status, elapsed)
		}
		return outcome{report: StepReport{ID: s.ID, Status: status, Reason: reason, Elapsed: elapsed}, result: res}
	}
	fail := func(err error, elapsed time.Duration) (outcome, error) {
		if s.Optional {
			logger.Warn("optional step skipped", "err", err)
			return finish(StatusSkipped, err.Error(), elapsed, agent.Result{}), nil
		}
		return finish(StatusFailed, err.Error(), elapsed, agent.Result{}), &StepError{StepID: s.ID, Err: err}
	}

	for _, d := range s.Deps {
		if r, ok := run.reports[d]; !ok || r.Status != StatusOK {
			return fail(fmt.Errorf("dependency %s did not complete", d), 0)
		}
	}
	a, ok := p.agents[s.ID]
	if !ok {
		return fail(ErrUnknownStep, 0)
	}

	started := time.Now()
	res, err := a.Run(ctx, upstream(in, run.results))
	elapsed := time.Since(started)
	if err != nil {
		return fail(err, elapsed)
	}
	if missingSection(s.ID, res) {
		return fail(fmt.Errorf("%w: %s result", agent.ErrMissingInput, s.ID), elapsed)
	}
	logger.Info("step finished", "elapsed_ms", elapsed.Milliseconds())
	return finish(StatusOK, "", elapsed, res), nil
}

// upstream copies in and attaches the completed core results.
func upstream(in agent.Payload, results map[string]agent.Result) agent.Payload {
	out := in
	if r, ok := results[agent.StepScope]; ok {
		out.Scope = r.Scope
	}
	if r, ok := results[agent.StepCost]; ok {
		out.Cost = r.Cost
	}
	if r, ok := results[agent.StepSchedule]; ok {
		out.Schedule = r.Schedule
	}
	return out
}

func missingSection(step string, res agent.Result) bool {
	switch step {
	case agent.StepScope:
		return res.Scope == nil
	case agent.StepCost:
		return res.Cost == nil
	case agent.StepSchedule:
		return res.Schedule == nil
	case agent.StepRisk:
		return res.Risk == nil
	case agent.StepIntegrator:
		return res.Integrator == nil
	}
	return false
}
