package prompt

import (
	"fmt"
	"strings"

	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
)

// Quality prompt limits.
const (
	QualityTextLimit        = 2000
	QualityRequirementLimit = 10
)

const qualitySystem = `You are a requirements quality reviewer. You score catalogues strictly and return JSON only.`

// QualityReview returns the semantic scoring prompt over the first part of the source text and
// a summary of the leading requirements.
func QualityReview(text string, reqs []domain.Requirement) []llm.Message {
	var summary strings.Builder
	for i, r := range reqs {
		if i == QualityRequirementLimit {
			fmt.Fprintf(&summary, "... and %d more\n", len(reqs)-QualityRequirementLimit)
			break
		}
		fmt.Fprintf(&summary, "- %s [%s/%s] %s: %s (%d acceptance criteria)\n",
			r.ReqID, r.Type, r.Priority, r.Title, Truncate(r.Description, 200), len(r.AcceptanceCriteria))
	}
	if summary.Len() == 0 {
		summary.WriteString("(no requirements)\n")
	}

	user := fmt.Sprintf(`## Task

Score the requirement catalogue against the source text on three axes:
- completeness (0-30): does it cover everything the text asks for?
- clarity (0-25): are requirements unambiguous and testable?
- consistency (0-15): are requirements free of contradictions and duplicates?

## Output Format

Return ONLY valid JSON:

%sjson
{
  "completeness": 24,
  "clarity": 20,
  "consistency": 12,
  "issues": ["REQ-003 is not testable"],
  "missing_requirements": ["audit logging"],
  "recommendations": ["add measurable response-time targets"]
}
%s

## Requirements

%s
## Source text (excerpt)

%s
`, fence, fence, summary.String(), Truncate(text, QualityTextLimit))
	return conversation(qualitySystem, user)
}
