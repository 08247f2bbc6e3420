package agent

import "github.com/evanschultz/pmforge/internal/domain"

// Payload is the input handed to every agent. Upstream results are filled in by the planner
// from completed dependency steps.
type Payload struct {
	ProjectID      string                 `json:"project_id"`
	Text           string                 `json:"text,omitempty"`
	Documents      []domain.Document      `json:"documents,omitempty"`
	Methodology    domain.Methodology     `json:"methodology,omitempty"`
	Options        Options                `json:"options"`
	ActionItems    []domain.ActionItem    `json:"action_items,omitempty"`
	ChangeRequests []domain.ChangeRequest `json:"change_requests,omitempty"`

	// WBSJSON and WBSPath let the schedule agent run without a scope result.
	WBSJSON string `json:"wbs_json,omitempty"`
	WBSPath string `json:"wbs_path,omitempty"`
	// RequirementsPath points at a requirements JSON file used to synthesize a WBS.
	RequirementsPath string `json:"requirements_path,omitempty"`

	Scope    *ScopeOutput    `json:"-"`
	Cost     *CostOutput     `json:"-"`
	Schedule *ScheduleOutput `json:"-"`
}

// Options carries per-run overrides. Zero values defer to the agent's configured defaults.
type Options struct {
	// Scope.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	MaxAttempts         int     `json:"max_attempts,omitempty"`
	WBSDepth            int     `json:"wbs_depth,omitempty"`
	RunQualityCheck     *bool   `json:"run_quality_check,omitempty"`
	Hierarchical        *bool   `json:"hierarchical,omitempty"`
	SelfRefine          *bool   `json:"self_refine,omitempty"`
	TreeOfThoughts      *bool   `json:"tree_of_thoughts,omitempty"`

	// Schedule.
	SprintLengthWeeks int      `json:"sprint_length_weeks,omitempty"`
	EstimationMode    string   `json:"estimation_mode,omitempty"`
	StartDate         string   `json:"start_date,omitempty"`
	SprintBacklogs    []int    `json:"sprint_backlogs,omitempty"`
	SkipWeekends      *bool    `json:"skip_weekends,omitempty"`
	Holidays          []string `json:"holidays,omitempty"`

	// Planner.
	UseIntegrator *bool `json:"use_integrator,omitempty"`
	UseRisk       *bool `json:"use_risk,omitempty"`
	UseQuality    *bool `json:"use_quality,omitempty"`
}

// Bool resolves an optional flag against a default.
func Bool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}

// CorpusText joins the payload text and document bodies in order.
func (p Payload) CorpusText() string {
	out := p.Text
	for _, doc := range p.Documents {
		if doc.Text == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += doc.Text
	}
	return out
}

// Requirements returns the upstream scope requirements, if any.
func (p Payload) Requirements() []domain.Requirement {
	if p.Scope == nil {
		return nil
	}
	return p.Scope.Requirements
}
