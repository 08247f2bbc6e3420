package agent

import "github.com/evanschultz/pmforge/internal/domain"

// Result is what one agent returns. Exactly the section owned by the agent is set.
type Result struct {
	Scope      *ScopeOutput      `json:"scope,omitempty"`
	Cost       *CostOutput       `json:"cost,omitempty"`
	Schedule   *ScheduleOutput   `json:"schedule,omitempty"`
	Risk       *RiskOutput       `json:"risk,omitempty"`
	Quality    *QualityOutput    `json:"quality,omitempty"`
	Integrator *IntegratorOutput `json:"integrator,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// Merge copies every section set on other into r.
func (r *Result) Merge(other Result) {
	if other.Scope != nil {
		r.Scope = other.Scope
	}
	if other.Cost != nil {
		r.Cost = other.Cost
	}
	if other.Schedule != nil {
		r.Schedule = other.Schedule
	}
	if other.Risk != nil {
		r.Risk = other.Risk
	}
	if other.Quality != nil {
		r.Quality = other.Quality
	}
	if other.Integrator != nil {
		r.Integrator = other.Integrator
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Scope result sources.
const (
	SourceLLM        = "llm"
	SourceLastParsed = "last_parsed"
	SourceFallback   = "fallback"
)

// ScopeOutput is the requirements catalogue and draft WBS.
type ScopeOutput struct {
	Requirements []domain.Requirement `json:"requirements"`
	Functions    []string             `json:"functions"`
	WBS          domain.WBS           `json:"wbs"`
	WBSPath      string               `json:"wbs_path"`
	RTMPath      string               `json:"rtm_path"`
	SRSPath      string               `json:"srs_path"`
	RawExcerpt   string               `json:"raw_excerpt"`
	Confidence   float64              `json:"confidence"`
	Attempts     int                  `json:"attempts"`
	Source       string               `json:"source"`
	Strategy     string               `json:"strategy,omitempty"`
	Transitions  []string             `json:"transitions,omitempty"`
	Refinements  []RefineIteration    `json:"refinements,omitempty"`
	Quality      *QualityOutput       `json:"quality,omitempty"`
}

// RefineIteration records one Self-Refine critique.
type RefineIteration struct {
	Iteration int      `json:"iteration"`
	Score     float64  `json:"score"`
	Issues    []string `json:"issues,omitempty"`
	Missing   []string `json:"missing,omitempty"`
	Strengths []string `json:"strengths,omitempty"`
	Applied   bool     `json:"applied"`
}

// Quality grades.
const (
	GradeExcellent = "Excellent"
	GradeGood      = "Good"
	GradeFair      = "Fair"
	GradePoor      = "Poor"
)

// Quality actions.
const (
	ActionAccept             = "accept"
	ActionAcceptWithWarning  = "accept_with_warning"
	ActionRefinementRequired = "refinement_required"
	ActionRejectAndRetry     = "reject_and_retry"
)

// QualityOutput is the Quality Agent verdict.
type QualityOutput struct {
	Pass                bool           `json:"pass"`
	Score               float64        `json:"score"`
	Grade               string         `json:"grade"`
	Action              string         `json:"action"`
	Metrics             QualityMetrics `json:"metrics"`
	Issues              []string       `json:"issues"`
	MissingRequirements []string       `json:"missing_requirements"`
	Recommendations     []string       `json:"recommendations"`
}

// QualityMetrics breaks the score down by axis.
type QualityMetrics struct {
	Structural     float64 `json:"structural"`
	Fields         float64 `json:"fields"`
	Criteria       float64 `json:"criteria"`
	Descriptions   float64 `json:"descriptions"`
	TypeCoverage   float64 `json:"type_coverage"`
	Semantic       float64 `json:"semantic"`
	Completeness   float64 `json:"completeness"`
	Clarity        float64 `json:"clarity"`
	Consistency    float64 `json:"consistency"`
	SemanticSource string  `json:"semantic_source"`
	Requirements   int     `json:"requirements"`
}

// CostBreakdown splits the estimate by activity.
type CostBreakdown struct {
	Development float64 `json:"development"`
	Testing     float64 `json:"testing"`
	Management  float64 `json:"management"`
}

// CostOutput is the cost estimate.
type CostOutput struct {
	TotalCost   float64       `json:"total_cost"`
	Breakdown   CostBreakdown `json:"breakdown"`
	Assumptions []string      `json:"assumptions"`
	Confidence  float64       `json:"confidence"`
}

// ScheduleOutput is the CPM plan plus artifact paths.
type ScheduleOutput struct {
	ProjectID         string                  `json:"project_id"`
	Methodology       domain.Methodology      `json:"methodology"`
	Tasks             []domain.ScheduleTask   `json:"tasks"`
	ProjectFinish     int                     `json:"project_finish"`
	CriticalPath      []string                `json:"critical_path"`
	StartDate         string                  `json:"start_date"`
	FinishDate        string                  `json:"finish_date"`
	SkipWeekends      bool                    `json:"skip_weekends,omitempty"`
	Holidays          []string                `json:"holidays,omitempty"`
	EstimationMode    string                  `json:"estimation_mode"`
	SprintLengthWeeks int                     `json:"sprint_length_weeks,omitempty"`
	Sprints           []domain.Sprint         `json:"sprints,omitempty"`
	Burndown          []domain.BurndownPoint  `json:"burndown,omitempty"`
	PlanCSV           string                  `json:"plan_csv"`
	GanttJSON         string                  `json:"gantt_json"`
	TimelineJSON      string                  `json:"timeline"`
	CriticalPathJSON  string                  `json:"critical_path_json"`
	BurndownJSON      string                  `json:"burndown_json,omitempty"`
	Revised           bool                    `json:"revised,omitempty"`
	BaselineFinish    int                     `json:"baseline_finish,omitempty"`
	ChangeRequests    []domain.ChangeLogEntry `json:"change_requests,omitempty"`
	Healed            []string                `json:"healed,omitempty"`
	Degraded          bool                    `json:"degraded,omitempty"`
	Warnings          []string                `json:"warnings,omitempty"`
}

// RiskOutput is the risk register.
type RiskOutput struct {
	ActionRisks  []domain.Risk      `json:"action_risks"`
	ProjectRisks ProjectRiskSummary `json:"project_risks"`
}

// ProjectRiskSummary is the project-level aggregate view.
type ProjectRiskSummary struct {
	RequirementCount int      `json:"requirement_count"`
	TotalCost        float64  `json:"total_cost"`
	CriticalPathDays int      `json:"critical_path_days"`
	Commentary       []string `json:"commentary"`
}

// IntegratorOutput is the optional executive summary.
type IntegratorOutput struct {
	ExecutiveSummary string `json:"executive_summary"`
	Source           string `json:"source"`
}
