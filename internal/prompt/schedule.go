package prompt

import (
	"fmt"
	"strings"

	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
)

const scheduleSystem = `You are an experienced project scheduler. You estimate durations and dependencies and return JSON only.`

// EstimationTask is one task offered for estimation.
type EstimationTask struct {
	ID       string
	Name     string
	ParentID string
	Level    int
}

// Estimation returns the prompt asking for [{id, duration_days, predecessors}].
func Estimation(methodology domain.Methodology, sprintLengthWeeks int, tasks []EstimationTask) []llm.Message {
	var list strings.Builder
	for _, t := range tasks {
		parent := t.ParentID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(&list, "- id=%s level=%d parent=%s name=%q\n", t.ID, t.Level, parent, t.Name)
	}
	unit := "working days"
	if methodology == domain.MethodologyAgile {
		unit = fmt.Sprintf("working days (1 story point = 1 day, at most %d days per task)", max(sprintLengthWeeks, 1)*5)
	}
	user := fmt.Sprintf(`## Task

Estimate a duration in %s for every task and list the ids each task depends on.
Only reference ids from the list. Do not create cycles. Summary tasks may depend on nothing.

## Output Format

Return ONLY a JSON array:

%sjson
[{"id": "1.1", "duration_days": 3, "predecessors": []}, {"id": "1.2", "duration_days": 5, "predecessors": ["1.1"]}]
%s

## Tasks

%s`, unit, fence, fence, list.String())
	return conversation(scheduleSystem, user)
}

// WBSSynthesis returns the prompt asking for a WBS tree built from requirements.
func WBSSynthesis(methodology domain.Methodology, depth int, reqs []domain.Requirement) []llm.Message {
	var list strings.Builder
	for _, r := range reqs {
		fmt.Fprintf(&list, "- %s: %s\n", r.ReqID, r.Title)
	}
	if list.Len() == 0 {
		list.WriteString("(no requirements)\n")
	}
	user := fmt.Sprintf(`## Task

Build a %s work breakdown structure at most %d levels deep that delivers every requirement below.
Each leaf lists the req_ids it delivers.

## Output Format

Return ONLY valid JSON:

%sjson
{"nodes": [{"name": "Design", "children": [{"name": "Design sign-in", "req_ids": ["REQ-001"], "duration_days": 3}]}]}
%s

## Requirements

%s`, methodology, max(depth, 1), fence, fence, list.String())
	return conversation(scheduleSystem, user)
}
