// Package risk derives a rule-based risk register from action items and the upstream
// scope, cost, and schedule results.
package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/ingest"
)

// MaxActionRisks caps how many action items become register entries.
const MaxActionRisks = 5

// Risk categories.
const (
	CategorySchedule      = "Schedule"
	CategoryScope         = "Scope"
	CategoryCost          = "Cost"
	CategoryQuality       = "Quality"
	CategoryResource      = "Resource"
	CategoryCommunication = "Communication"
)

// Risk sources.
const (
	SourceActionItem = "action_item"
	SourceMeeting    = "meeting_notes"
)

type category struct {
	name     string
	keywords []string
}

// categories is matched in order; the first hit wins.
var categories = []category{
	{CategorySchedule, []string{"delay", "deadline", "late", "slip", "overdue", "schedule", "timeline", "milestone"}},
	{CategoryScope, []string{"scope", "requirement", "feature", "change request"}},
	{CategoryCost, []string{"budget", "cost", "invoice", "price", "funding", "spend"}},
	{CategoryQuality, []string{"defect", "bug", "test", "quality", "regression"}},
	{CategoryResource, []string{"staff", "resource", "hire", "capacity", "vendor", "contractor", "availability"}},
	{CategoryCommunication, []string{"stakeholder", "meeting", "email", "communicat", "report", "sign-off", "approval"}},
}

var (
	probabilityTriggers = []string{"pending", "blocked", "waiting", "overdue", "delay", "at risk", "unresolved"}
	impactTriggers      = []string{"defect", "budget", "critical", "security", "outage", "compliance", "legal"}
)

var responses = map[string][]string{
	CategorySchedule:      {"Re-baseline the affected milestones", "Add buffer to critical-path tasks"},
	CategoryScope:         {"Route the change through change control", "Confirm acceptance criteria with the sponsor"},
	CategoryCost:          {"Review the budget forecast with finance", "Identify scope that can be deferred"},
	CategoryQuality:       {"Add regression tests before release", "Schedule a defect triage"},
	CategoryResource:      {"Confirm resource availability with line managers", "Line up a backup contractor"},
	CategoryCommunication: {"Escalate to the steering meeting", "Agree an owner and response date"},
}

// Agent is the Risk Agent.
type Agent struct {
	logger *log.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New constructs a Risk Agent.
func New(opts ...Option) *Agent {
	a := &Agent{logger: agent.DiscardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the step name.
func (a *Agent) Name() string {
	return agent.StepRisk
}

// Run builds the register. Missing upstream results only leave the summary fields at zero.
func (a *Agent) Run(ctx context.Context, in agent.Payload) (agent.Result, error) {
	if err := ctx.Err(); err != nil {
		return agent.Result{}, err
	}
	items := candidates(in)
	out := &agent.RiskOutput{
		ActionRisks:  Assess(in.ProjectID, items),
		ProjectRisks: Summarize(in),
	}
	a.logger.Info("risk register built", "project_id", in.ProjectID, "step", agent.StepRisk, "action_risks", len(out.ActionRisks))
	return agent.Result{Risk: out}, nil
}

// Item is one action item considered for the register.
type Item struct {
	Task   string
	Owner  string
	Source string
}

// candidates prefers persisted open action items; otherwise it scans meeting documents.
func candidates(in agent.Payload) []Item {
	var out []Item
	for _, ai := range in.ActionItems {
		if ai.IsOpen() {
			out = append(out, Item{Task: ai.Task, Owner: ai.Owner, Source: SourceActionItem})
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, doc := range in.Documents {
		if doc.Kind != domain.DocumentKindMeeting {
			continue
		}
		for _, c := range ingest.ExtractActionItems(doc.Text) {
			out = append(out, Item{Task: c.Task, Owner: c.Owner, Source: SourceMeeting})
		}
	}
	return out
}

// Assess classifies up to MaxActionRisks items into register entries.
func Assess(projectID string, items []Item) []domain.Risk {
	out := []domain.Risk{}
	for _, it := range items {
		if len(out) == MaxActionRisks {
			break
		}
		task := strings.TrimSpace(it.Task)
		if task == "" {
			continue
		}
		cat := Categorize(task)
		r := domain.Risk{
			ID:                   fmt.Sprintf("RISK-%03d", len(out)+1),
			ProjectID:            projectID,
			Title:                task,
			Category:             cat,
			Probability:          lift(task, probabilityTriggers),
			Impact:               lift(task, impactTriggers),
			Source:               it.Source,
			Owner:                it.Owner,
			RecommendedResponses: append([]string{}, responses[cat]...),
		}
		r.Score = r.Probability.Weight() * r.Impact.Weight()
		out = append(out, r)
	}
	return out
}

// Categorize returns the first category whose keywords occur in text, defaulting to Schedule.
func Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, c := range categories {
		if containsAny(lower, c.keywords) {
			return c.name
		}
	}
	return CategorySchedule
}

func lift(text string, triggers []string) domain.RiskLevel {
	if containsAny(strings.ToLower(text), triggers) {
		return domain.RiskHigh
	}
	return domain.RiskMedium
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Summarize aggregates requirement count, total cost, and critical-path length with fixed commentary.
func Summarize(in agent.Payload) agent.ProjectRiskSummary {
	s := agent.ProjectRiskSummary{RequirementCount: len(in.Requirements())}
	if in.Cost != nil {
		s.TotalCost = in.Cost.TotalCost
	}
	if in.Schedule != nil {
		s.CriticalPathDays = in.Schedule.ProjectFinish
	}
	s.Commentary = []string{
		fmt.Sprintf("%d requirement(s) in scope; unmanaged change is the main scope risk.", s.RequirementCount),
		fmt.Sprintf("Estimated cost %.2f carries placeholder confidence; revisit once rates are known.", s.TotalCost),
		fmt.Sprintf("Critical path is %d day(s); any slip on it moves the finish date.", s.CriticalPathDays),
	}
	return s
}
