// Package cost estimates project cost from the requirements catalogue.
package cost

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
)

// Defaults for the placeholder model.
const (
	DefaultBaseCostPerRequirement = 1000.0
	DefaultCurrency               = "USD"
	confidence                    = 0.5
)

// Fixed activity split.
const (
	shareDevelopment = 0.60
	shareTesting     = 0.25
	shareManagement  = 0.15
)

// Agent is the Cost Agent.
type Agent struct {
	baseCost float64
	currency string
	logger   *log.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithBaseCost sets the cost per requirement.
func WithBaseCost(v float64) Option {
	return func(a *Agent) {
		if v > 0 {
			a.baseCost = v
		}
	}
}

// WithCurrency sets the currency label used in assumptions.
func WithCurrency(c string) Option {
	return func(a *Agent) {
		if c != "" {
			a.currency = c
		}
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

// New constructs a Cost Agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		baseCost: DefaultBaseCostPerRequirement,
		currency: DefaultCurrency,
		logger:   agent.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the step name.
func (a *Agent) Name() string {
	return agent.StepCost
}

// Run estimates cost from the upstream scope result.
func (a *Agent) Run(_ context.Context, in agent.Payload) (agent.Result, error) {
	if in.Scope == nil {
		return agent.Result{}, fmt.Errorf("cost: scope result: %w", agent.ErrMissingInput)
	}
	out := Estimate(in.Scope.Requirements, a.baseCost, a.currency)
	a.logger.Info("cost estimated", "project_id", in.ProjectID, "total_cost", out.TotalCost, "requirements", len(in.Scope.Requirements))
	return agent.Result{Cost: &out}, nil
}

// Complexity returns 1 + 0.25 x share of High priority requirements + 0.5 x share of non-functional ones.
func Complexity(reqs []domain.Requirement) float64 {
	if len(reqs) == 0 {
		return 1
	}
	var high, nf int
	for _, r := range reqs {
		if domain.NormalizePriority(r.Priority) == domain.PriorityHigh {
			high++
		}
		if domain.NormalizeRequirementType(r.Type) == domain.RequirementNonFunctional {
			nf++
		}
	}
	n := float64(len(reqs))
	return 1 + 0.25*float64(high)/n + 0.5*float64(nf)/n
}

// Estimate applies base_cost_per_req x count x complexity with the fixed 60/25/15 split.
func Estimate(reqs []domain.Requirement, baseCost float64, currency string) agent.CostOutput {
	if baseCost <= 0 {
		baseCost = DefaultBaseCostPerRequirement
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	complexity := Complexity(reqs)
	total := round2(baseCost * float64(len(reqs)) * complexity)
	dev := round2(total * shareDevelopment)
	test := round2(total * shareTesting)
	return agent.CostOutput{
		TotalCost: total,
		Breakdown: agent.CostBreakdown{
			Development: dev,
			Testing:     test,
			Management:  round2(total - dev - test),
		},
		Assumptions: []string{
			fmt.Sprintf("%.2f %s per requirement", baseCost, currency),
			fmt.Sprintf("%d requirements at complexity factor %.2f", len(reqs), complexity),
			"split: development 60%, testing 25%, management 15%",
			"placeholder model; replace before operational use",
		},
		Confidence: confidence,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
