package scope

import (
	"context"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/prompt"
)

type critique struct {
	Score     float64  `json:"score"`
	Issues    []string `json:"issues"`
	Missing   []string `json:"missing"`
	Strengths []string `json:"strengths"`
}

// selfRefine runs critique/improve rounds until the critique score reaches target or iterations
// run out. A failed call or unparseable reply ends the loop and keeps the current catalogue.
func (a *Agent) selfRefine(ctx context.Context, text string, reqs []domain.Requirement, hierarchical bool) ([]domain.Requirement, []agent.RefineIteration) {
	var history []agent.RefineIteration
	for i := 1; i <= a.cfg.SelfRefineIterations; i++ {
		current := marshalCatalogue(reqs)
		raw, err := a.caller.Text(ctx, prompt.Critique(text, current))
		if err != nil {
			a.logger.Warn("self-refine critique failed", "iteration", i, "err", err)
			break
		}
		crit, err := llm.DecodeObject[critique](raw)
		if err != nil {
			a.logger.Warn("self-refine critique unparseable", "iteration", i, "err", err)
			break
		}
		it := agent.RefineIteration{
			Iteration: i,
			Score:     critiqueScore(crit.Score),
			Issues:    crit.Issues,
			Missing:   crit.Missing,
			Strengths: crit.Strengths,
		}
		if it.Score >= a.cfg.SelfRefineTarget {
			history = append(history, it)
			break
		}

		raw, err = a.caller.Text(ctx, prompt.Improve(prompt.ImproveParams{
			Text:          text,
			CatalogueJSON: current,
			Issues:        crit.Issues,
			Missing:       crit.Missing,
			Hierarchical:  hierarchical,
		}))
		if err == nil {
			if improved, perr := ParseCatalogue(raw); perr == nil && improved.Usable() {
				reqs = keepIDs(reqs, improved.Requirements)
				it.Applied = true
			}
		} else {
			a.logger.Warn("self-refine improve failed", "iteration", i, "err", err)
		}
		history = append(history, it)
		if !it.Applied {
			break
		}
	}
	return reqs, history
}

// keepIDs copies req_ids from prev onto positions of next that arrived without one.
func keepIDs(prev, next []domain.Requirement) []domain.Requirement {
	for i := range next {
		if next[i].ReqID == "" && i < len(prev) {
			next[i].ReqID = prev[i].ReqID
		}
	}
	return next
}

// critiqueScore reads scores given on a 0-100 scale as percentages.
func critiqueScore(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	return clamp01(v)
}
