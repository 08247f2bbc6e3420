package planner

import (
	"fmt"
	"slices"

	"github.com/evanschultz/pmforge/internal/agent"
)

// Step is one node of the execution plan.
type Step struct {
	ID       string   `json:"id"`
	Deps     []string `json:"deps"`
	Optional bool     `json:"optional,omitempty"`
}

// Plan is an ordered list of steps. Every dependency appears earlier in the list.
type Plan struct {
	Steps []Step `json:"steps"`
}

// IDs returns the step ids in plan order.
func (p Plan) IDs() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.ID
	}
	return out
}

// Has reports whether the plan contains id.
func (p Plan) Has(id string) bool {
	return slices.ContainsFunc(p.Steps, func(s Step) bool { return s.ID == id })
}

// Validate checks that ids are unique and every dependency precedes its dependent.
func (p Plan) Validate() error {
	seen := map[string]struct{}{}
	for _, s := range p.Steps {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidPlan, s.ID)
		}
		for _, d := range s.Deps {
			if _, ok := seen[d]; !ok {
				return fmt.Errorf("%w: step %q depends on %q which does not precede it", ErrInvalidPlan, s.ID, d)
			}
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// waves groups steps into batches whose dependencies are all in earlier batches.
func (p Plan) waves() [][]Step {
	level := map[string]int{}
	var out [][]Step
	for _, s := range p.Steps {
		l := 0
		for _, d := range s.Deps {
			l = max(l, level[d]+1)
		}
		level[s.ID] = l
		for len(out) <= l {
			out = append(out, nil)
		}
		out[l] = append(out[l], s)
	}
	return out
}

// BuildPlan returns the default plan: scope first, cost and schedule after scope, then the optional
// risk and integrator steps after all three.
func (p *Planner) BuildPlan(in agent.Payload) Plan {
	core := []string{agent.StepScope, agent.StepCost, agent.StepSchedule}
	plan := Plan{Steps: []Step{
		{ID: agent.StepScope, Deps: []string{}},
		{ID: agent.StepCost, Deps: []string{agent.StepScope}},
		{ID: agent.StepSchedule, Deps: []string{agent.StepScope}},
	}}
	if agent.Bool(in.Options.UseRisk, p.cfg.UseRisk) {
		plan.Steps = append(plan.Steps, Step{ID: agent.StepRisk, Deps: slices.Clone(core), Optional: true})
	}
	if agent.Bool(in.Options.UseIntegrator, p.cfg.UseIntegrator) {
		plan.Steps = append(plan.Steps, Step{ID: agent.StepIntegrator, Deps: slices.Clone(core), Optional: true})
	}
	return plan
}
