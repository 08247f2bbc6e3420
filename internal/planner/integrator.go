package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/prompt"
)

// Integrator summary sources.
const (
	SummaryLLM      = "llm"
	SummaryFallback = "fallback"
)

// Integrator writes the executive summary. Without a model it renders a fixed template.
type Integrator struct {
	caller *llm.Caller
	logger *log.Logger
}

// NewIntegrator constructs the integrator step. caller and logger may be nil.
func NewIntegrator(caller *llm.Caller, logger *log.Logger) *Integrator {
	if logger == nil {
		logger = agent.DiscardLogger()
	}
	return &Integrator{caller: caller, logger: logger}
}

// Name returns the step name.
func (i *Integrator) Name() string {
	return agent.StepIntegrator
}

// Run summarizes the scope, cost, and schedule results.
func (i *Integrator) Run(ctx context.Context, in agent.Payload) (agent.Result, error) {
	params := summaryParams(in)
	out := &agent.IntegratorOutput{ExecutiveSummary: ExecutiveSummary(params), Source: SummaryFallback}
	if i.caller.Available() {
		text, _, err := i.caller.TextWithRetry(ctx, prompt.Integrator(params))
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return agent.Result{}, ctxErr
			}
			i.logger.Warn("executive summary fell back to template", "project_id", in.ProjectID, "err", err)
		case strings.TrimSpace(text) != "":
			out.ExecutiveSummary = strings.TrimSpace(text)
			out.Source = SummaryLLM
		}
	}
	return agent.Result{Integrator: out}, nil
}

func summaryParams(in agent.Payload) prompt.IntegratorParams {
	p := prompt.IntegratorParams{ProjectID: in.ProjectID, RequirementCount: len(in.Requirements())}
	if in.Cost != nil {
		p.TotalCost = in.Cost.TotalCost
	}
	if in.Schedule != nil {
		p.FinishDays = in.Schedule.ProjectFinish
		p.CriticalPath = in.Schedule.CriticalPath
	}
	return p
}

// ExecutiveSummary renders the deterministic summary.
func ExecutiveSummary(p prompt.IntegratorParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project %s covers %d requirement(s) at an estimated cost of %.2f.", p.ProjectID, p.RequirementCount, p.TotalCost)
	fmt.Fprintf(&b, " The schedule runs %d day(s)", p.FinishDays)
	if len(p.CriticalPath) > 0 {
		fmt.Fprintf(&b, " along the critical path %s", strings.Join(p.CriticalPath, " -> "))
	}
	b.WriteString(".")
	if len(p.TopRisks) > 0 {
		fmt.Fprintf(&b, " Top risks: %s.", strings.Join(p.TopRisks, "; "))
	}
	return b.String()
}
