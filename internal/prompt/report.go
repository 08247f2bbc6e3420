package prompt

import (
	"fmt"
	"strings"

	"github.com/evanschultz/pmforge/internal/llm"
)

const pmSystem = `You are a project manager writing concise status communication for executives.`

// IntegratorParams summarizes a finished pipeline run.
type IntegratorParams struct {
	ProjectID        string
	RequirementCount int
	TotalCost        float64
	FinishDays       int
	CriticalPath     []string
	TopRisks         []string
}

// Integrator returns the executive-summary prompt for a finished plan.
func Integrator(p IntegratorParams) []llm.Message {
	user := fmt.Sprintf(`Write a 3-5 sentence executive summary of this project proposal. Plain prose, no headings.

Project: %s
Requirements: %d
Estimated cost: %.2f
Schedule length: %d days
Critical path: %s
Top risks:
%s`, p.ProjectID, p.RequirementCount, p.TotalCost, p.FinishDays, strings.Join(p.CriticalPath, " -> "), bulletList(p.TopRisks, "- (none recorded)"))
	return conversation(pmSystem, user)
}

// WeeklySummary returns the prompt that condenses a weekly report body into a short summary.
func WeeklySummary(projectName, body string) []llm.Message {
	user := fmt.Sprintf(`Summarize this week's status for project %q in 2-3 sentences. Mention blockers first.

%s`, projectName, Truncate(body, 6000))
	return conversation(pmSystem, user)
}
