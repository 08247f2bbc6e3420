// Package quality scores a requirements catalogue and decides whether Scope output is accepted.
package quality

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/prompt"
)

// DefaultThreshold is the pass mark in percent.
const DefaultThreshold = 75.0

// Axis maxima.
const (
	MaxStructural   = 30.0
	MaxCompleteness = 30.0
	MaxClarity      = 25.0
	MaxConsistency  = 15.0
)

// Semantic score sources.
const (
	SemanticLLM       = "llm"
	SemanticHeuristic = "heuristic"
)

var vagueTerms = regexp.MustCompile(`(?i)\b(etc|fast|easy|user[- ]friendly|flexible|robust|appropriate|as needed|tbd|various|some)\b`)

// Agent is the Quality Agent.
type Agent struct {
	caller    *llm.Caller
	threshold float64
	logger    *log.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithThreshold sets the pass mark in percent.
func WithThreshold(v float64) Option {
	return func(a *Agent) {
		if v > 0 && v <= 100 {
			a.threshold = v
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

// New constructs a Quality Agent. A nil or unavailable caller selects the heuristic semantic score.
func New(caller *llm.Caller, opts ...Option) *Agent {
	a := &Agent{caller: caller, threshold: DefaultThreshold, logger: agent.DiscardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the step name.
func (a *Agent) Name() string {
	return agent.StepQuality
}

// Threshold returns the configured pass mark.
func (a *Agent) Threshold() float64 {
	return a.threshold
}

// Run scores the upstream scope result against the payload corpus.
func (a *Agent) Run(ctx context.Context, in agent.Payload) (agent.Result, error) {
	if in.Scope == nil {
		return agent.Result{}, fmt.Errorf("quality: scope result: %w", agent.ErrMissingInput)
	}
	out := a.Evaluate(ctx, in.CorpusText(), in.Scope.Requirements)
	return agent.Result{Quality: &out}, nil
}

// Evaluate scores reqs. It never fails; LLM problems downgrade to the heuristic semantic score.
func (a *Agent) Evaluate(ctx context.Context, text string, reqs []domain.Requirement) agent.QualityOutput {
	metrics, issues := Structural(reqs)

	sem, semErr := a.semantic(ctx, text, reqs)
	if semErr != nil {
		a.logger.Warn("semantic scoring unavailable; using heuristic", "err", semErr)
		sem = Heuristic(reqs)
	}
	metrics.Completeness = sem.Completeness
	metrics.Clarity = sem.Clarity
	metrics.Consistency = sem.Consistency
	metrics.Semantic = round1(sem.Completeness + sem.Clarity + sem.Consistency)
	metrics.SemanticSource = sem.Source

	score := round1(metrics.Structural + metrics.Semantic)
	out := Verdict(score, a.threshold)
	out.Metrics = metrics
	out.Issues = append(issues, sem.Issues...)
	out.MissingRequirements = nonNil(sem.Missing)
	out.Recommendations = nonNil(sem.Recommendations)
	if len(out.Recommendations) == 0 && !out.Pass {
		out.Recommendations = defaultRecommendations(metrics)
	}
	a.logger.Info("quality scored", "score", out.Score, "grade", out.Grade, "action", out.Action, "semantic_source", metrics.SemanticSource)
	return out
}

// Verdict maps a score onto pass, grade, and action for the given threshold.
func Verdict(score, threshold float64) agent.QualityOutput {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	pass := score >= threshold
	return agent.QualityOutput{
		Pass:                pass,
		Score:               score,
		Grade:               Grade(score),
		Action:              Action(pass, score, threshold),
		Issues:              []string{},
		MissingRequirements: []string{},
		Recommendations:     []string{},
	}
}

// Grade returns Excellent (>= 90), Good (>= 75), Fair (>= 60), or Poor.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return agent.GradeExcellent
	case score >= 75:
		return agent.GradeGood
	case score >= 60:
		return agent.GradeFair
	default:
		return agent.GradePoor
	}
}

// Action picks the gate action: accept at 90+, accept_with_warning on pass, refinement_required
// within 15 points of the threshold, reject_and_retry below that.
func Action(pass bool, score, threshold float64) string {
	switch {
	case pass && score >= 90:
		return agent.ActionAccept
	case pass:
		return agent.ActionAcceptWithWarning
	case score >= threshold-15:
		return agent.ActionRefinementRequired
	default:
		return agent.ActionRejectAndRetry
	}
}

// Structural computes the 0-30 structural axis. Per requirement: every field present including at
// least one acceptance criterion (10), two or more criteria each over 15 characters (10), description
// over 30 characters (5); averaged across requirements, plus 5 when functional and non-functional
// types both appear.
func Structural(reqs []domain.Requirement) (agent.QualityMetrics, []string) {
	m := agent.QualityMetrics{Requirements: len(reqs)}
	issues := []string{}
	if len(reqs) == 0 {
		issues = append(issues, "no requirements extracted")
		return m, issues
	}
	var fields, criteria, descs float64
	var hasF, hasNF bool
	noCriteria := 0
	for _, r := range reqs {
		r = r.Normalize()
		switch r.Type {
		case domain.RequirementFunctional:
			hasF = true
		case domain.RequirementNonFunctional:
			hasNF = true
		}
		if r.HasCoreFields() && len(r.AcceptanceCriteria) > 0 {
			fields += 10
		} else if len(r.AcceptanceCriteria) == 0 {
			noCriteria++
		} else {
			issues = append(issues, fmt.Sprintf("%s is missing required fields", label(r)))
		}
		if goodCriteria(r.AcceptanceCriteria) {
			criteria += 10
		}
		if len([]rune(r.Description)) > 30 {
			descs += 5
		}
	}
	n := float64(len(reqs))
	m.Fields = round1(fields / n)
	m.Criteria = round1(criteria / n)
	m.Descriptions = round1(descs / n)
	if hasF && hasNF {
		m.TypeCoverage = 5
	} else {
		issues = append(issues, "catalogue lacks both functional and non-functional requirements")
	}
	m.Structural = round1(math.Min(MaxStructural, m.Fields+m.Criteria+m.Descriptions+m.TypeCoverage))
	if noCriteria > 0 {
		issues = append(issues, fmt.Sprintf("%d requirement(s) have no acceptance criteria", noCriteria))
	}
	return m, issues
}

func goodCriteria(criteria []string) bool {
	if len(criteria) < 2 {
		return false
	}
	for _, c := range criteria {
		if len([]rune(strings.TrimSpace(c))) <= 15 {
			return false
		}
	}
	return true
}

// Semantic is the 0-70 semantic axis with its source.
type Semantic struct {
	Completeness    float64
	Clarity         float64
	Consistency     float64
	Issues          []string
	Missing         []string
	Recommendations []string
	Source          string
}

type reviewReply struct {
	Completeness    float64  `json:"completeness"`
	Clarity         float64  `json:"clarity"`
	Consistency     float64  `json:"consistency"`
	Issues          []string `json:"issues"`
	Missing         []string `json:"missing_requirements"`
	Recommendations []string `json:"recommendations"`
}

func (a *Agent) semantic(ctx context.Context, text string, reqs []domain.Requirement) (Semantic, error) {
	if !a.caller.Available() {
		return Semantic{}, llm.ErrUnavailable
	}
	raw, _, err := a.caller.TextWithRetry(ctx, prompt.QualityReview(text, reqs))
	if err != nil {
		return Semantic{}, err
	}
	reply, err := llm.DecodeObject[reviewReply](raw)
	if err != nil {
		return Semantic{}, err
	}
	return Semantic{
		Completeness:    clamp(reply.Completeness, MaxCompleteness),
		Clarity:         clamp(reply.Clarity, MaxClarity),
		Consistency:     clamp(reply.Consistency, MaxConsistency),
		Issues:          reply.Issues,
		Missing:         reply.Missing,
		Recommendations: reply.Recommendations,
		Source:          SemanticLLM,
	}, nil
}

// Heuristic scores the semantic axes without an LLM: completeness grows with catalogue size up to
// five requirements, clarity counts specific descriptions, consistency counts unique titles.
func Heuristic(reqs []domain.Requirement) Semantic {
	out := Semantic{Source: SemanticHeuristic}
	if len(reqs) == 0 {
		return out
	}
	n := float64(len(reqs))
	out.Completeness = round1(MaxCompleteness * math.Min(1, n/5))
	specific := 0
	titles := map[string]struct{}{}
	for _, r := range reqs {
		desc := strings.TrimSpace(r.Description)
		if len([]rune(desc)) > 30 && !vagueTerms.MatchString(desc) {
			specific++
		} else {
			out.Issues = append(out.Issues, fmt.Sprintf("%s description is vague or short", label(r)))
		}
		titles[strings.ToLower(strings.TrimSpace(r.Title))] = struct{}{}
	}
	out.Clarity = round1(MaxClarity * float64(specific) / n)
	out.Consistency = round1(MaxConsistency * float64(len(titles)) / n)
	if len(titles) < len(reqs) {
		out.Issues = append(out.Issues, "duplicate requirement titles")
	}
	return out
}

func defaultRecommendations(m agent.QualityMetrics) []string {
	var out []string
	if m.Criteria < 10 {
		out = append(out, "add at least two specific acceptance criteria per requirement")
	}
	if m.Descriptions < 5 {
		out = append(out, "expand descriptions beyond a one-line title")
	}
	if m.TypeCoverage == 0 {
		out = append(out, "capture non-functional requirements such as performance and security")
	}
	if len(out) == 0 {
		out = append(out, "review the catalogue against the source document for gaps")
	}
	return out
}

func label(r domain.Requirement) string {
	if r.ReqID != "" {
		return r.ReqID
	}
	if r.Title != "" {
		return fmt.Sprintf("%q", r.Title)
	}
	return "requirement"
}

func clamp(v, limit float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return round1(math.Min(v, limit))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
