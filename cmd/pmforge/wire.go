package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/agent/cost"
	"github.com/evanschultz/pmforge/internal/agent/quality"
	"github.com/evanschultz/pmforge/internal/agent/risk"
	"github.com/evanschultz/pmforge/internal/agent/schedule"
	"github.com/evanschultz/pmforge/internal/agent/scope"
	"github.com/evanschultz/pmforge/internal/app"
	"github.com/evanschultz/pmforge/internal/artifact"
	"github.com/evanschultz/pmforge/internal/config"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/metrics"
	"github.com/evanschultz/pmforge/internal/planner"
	"github.com/evanschultz/pmforge/internal/rag"
)

// pipelineDeps is everything app.NewService needs besides the repository.
type pipelineDeps struct {
	caller    *llm.Caller
	planner   *planner.Planner
	scheduler *schedule.Agent
}

// newCaller builds the LLM caller. Provider "none" yields a caller that reports unavailable, which
// sends every agent down its deterministic path.
func newCaller(cfg config.LLMConfig, logger *charmLog.Logger, m *metrics.Metrics) (*llm.Caller, error) {
	opts := []llm.CallerOption{
		llm.WithTimeout(cfg.Timeout()),
		llm.WithRetry(retryConfig(cfg)),
		llm.WithLogger(logger),
	}
	if m != nil {
		opts = append(opts, llm.WithObserver(m.ObserveLLM))
	}
	client, err := llm.New(llm.ProviderConfig{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey(),
	})
	if errors.Is(err, llm.ErrUnavailable) {
		return llm.NewCaller(nil, opts...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("configure llm provider %q: %w", cfg.Provider, err)
	}
	return llm.NewCaller(client, opts...), nil
}

func retryConfig(cfg config.LLMConfig) llm.RetryConfig {
	retry := llm.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	if cfg.BackoffCapSeconds > 0 {
		retry.MaxBackoff = cfg.BackoffCap()
	}
	return retry
}

func scopeConfig(cfg config.Config) scope.Config {
	return scope.Config{
		ConfidenceThreshold:  cfg.Scope.ConfidenceThreshold,
		MaxAttempts:          cfg.Scope.MaxAttempts,
		WBSDepth:             cfg.Scope.WBSDepth,
		RunQualityCheck:      cfg.Scope.RunQualityCheck,
		Hierarchical:         cfg.Scope.Hierarchical,
		SelfRefine:           cfg.Scope.SelfRefine,
		SelfRefineIterations: cfg.Scope.SelfRefineIterations,
		SelfRefineTarget:     cfg.Scope.SelfRefineTarget,
		TreeOfThoughts:       cfg.Scope.TreeOfThoughts,
		Constraints: scope.Constraints{
			MaxTime:    time.Duration(cfg.Scope.MaxTimeSeconds) * time.Second,
			MinQuality: cfg.Scope.MinQuality,
		},
		RetrievalTopK: cfg.RAG.TopK,
	}
}

func scheduleConfig(cfg config.ScheduleConfig) schedule.Config {
	out := schedule.DefaultConfig()
	out.Methodology = domain.NormalizeMethodology(domain.Methodology(cfg.Methodology))
	out.SprintLengthWeeks = cfg.SprintLengthWeeks
	out.EstimationMode = strings.ToLower(strings.TrimSpace(cfg.EstimationMode))
	out.StartDate = strings.TrimSpace(cfg.StartDate)
	out.SkipWeekends = cfg.SkipWeekends
	out.Holidays = append([]string(nil), cfg.Holidays...)
	return out
}

func plannerConfig(cfg config.PlannerConfig) planner.Config {
	return planner.Config{
		UseRisk:       cfg.UseRisk,
		UseIntegrator: cfg.UseIntegrator,
		UseQuality:    cfg.UseQuality,
		Parallel:      cfg.Parallel,
	}
}

// newPipeline assembles the agents and the planner for one process.
func newPipeline(cfg config.Config, logger *charmLog.Logger, m *metrics.Metrics) (pipelineDeps, error) {
	caller, err := newCaller(cfg.LLM, logger.With("component", "llm"), m)
	if err != nil {
		return pipelineDeps{}, err
	}
	layout := artifact.NewLayout(cfg.Data.Dir)

	reviewer := quality.New(caller,
		quality.WithThreshold(cfg.Quality.Threshold),
		quality.WithLogger(logger.With("agent", agent.StepQuality)),
	)
	scopeOpts := []scope.Option{
		scope.WithConfig(scopeConfig(cfg)),
		scope.WithQuality(reviewer),
		scope.WithLogger(logger.With("agent", agent.StepScope)),
	}
	if cfg.LLM.DebugDump {
		scopeOpts = append(scopeOpts, scope.WithRecorder(llm.NewRecorder(layout.ScopeDebugDir(), time.Now)))
	}
	if dir := strings.TrimSpace(cfg.RAG.TemplatesDir); dir != "" {
		store, err := rag.LoadDir(dir)
		if err != nil {
			logger.Warn("template retrieval disabled", "dir", dir, "err", err)
		} else {
			scopeOpts = append(scopeOpts, scope.WithRetrieval(store))
		}
	}

	scheduleOpts := []schedule.Option{
		schedule.WithConfig(scheduleConfig(cfg.Schedule)),
		schedule.WithLogger(logger.With("agent", agent.StepSchedule)),
	}
	if m != nil {
		scheduleOpts = append(scheduleOpts, schedule.WithChangeObserver(m.ObserveChange))
	}
	scheduler := schedule.New(caller, layout, scheduleOpts...)

	plannerOpts := []planner.Option{
		planner.WithConfig(plannerConfig(cfg.Planner)),
		planner.WithAgent(scope.New(caller, layout, scopeOpts...)),
		planner.WithAgent(cost.New(
			cost.WithBaseCost(cfg.Cost.BaseCostPerReq),
			cost.WithCurrency(cfg.Cost.Currency),
			cost.WithLogger(logger.With("agent", agent.StepCost)),
		)),
		planner.WithAgent(scheduler),
		planner.WithAgent(risk.New(risk.WithLogger(logger.With("agent", agent.StepRisk)))),
		planner.WithAgent(reviewer),
		planner.WithAgent(planner.NewIntegrator(caller, logger.With("agent", agent.StepIntegrator))),
		planner.WithLogger(logger.With("component", "planner")),
	}
	if m != nil {
		plannerOpts = append(plannerOpts, planner.WithStepObserver(m.ObserveStep))
	}
	return pipelineDeps{
		caller:    caller,
		planner:   planner.New(layout, plannerOpts...),
		scheduler: scheduler,
	}, nil
}

// observedPipeline counts every run by outcome.
type observedPipeline struct {
	inner   app.Pipeline
	metrics *metrics.Metrics
}

func (p observedPipeline) Generate(ctx context.Context, in agent.Payload) (*planner.Manifest, error) {
	m, err := p.inner.Generate(ctx, in)
	p.metrics.ObserveRun(err)
	return m, err
}

// newAppService wires the application service over repo.
func newAppService(cfg config.Config, repo app.Repository, idGen app.IDGenerator, clock app.Clock, logger *charmLog.Logger, m *metrics.Metrics) (*app.Service, error) {
	deps, err := newPipeline(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	var pipeline app.Pipeline = deps.planner
	if m != nil {
		pipeline = observedPipeline{inner: deps.planner, metrics: m}
	}
	return app.NewService(repo, idGen, clock, app.ServiceConfig{
		Pipeline:  pipeline,
		Replanner: deps.scheduler,
		Caller:    deps.caller,
		Logger:    logger.With("component", "app"),
	}), nil
}
