package quality_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/agent/quality"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/llm/llmtest"
)

func caller(c llm.Client) *llm.Caller {
	return llm.NewCaller(c,
		llm.WithTimeout(time.Second),
		llm.WithRetry(llm.RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 5 * time.Millisecond}),
	)
}

func completeCatalogue() []domain.Requirement {
	return []domain.Requirement{
		{
			ReqID: "REQ-1", Title: "User login", Type: domain.RequirementFunctional, Priority: domain.PriorityHigh,
			Description: "Registered users sign in with email and password over TLS.",
			AcceptanceCriteria: []string{
				"Valid credentials open the dashboard",
				"Five failed attempts lock the account",
			},
		},
		{
			ReqID: "REQ-2", Title: "Response time", Type: domain.RequirementNonFunctional, Priority: domain.PriorityMedium,
			Description: "Pages render within two seconds for the 95th percentile of requests.",
			AcceptanceCriteria: []string{
				"p95 latency under 2s in load test",
				"Measured with 500 concurrent users",
			},
		},
	}
}

func catalogueWithoutCriteria() []domain.Requirement {
	reqs := completeCatalogue()
	for i := range reqs {
		reqs[i].AcceptanceCriteria = nil
	}
	return reqs
}

func TestStructuralFullMarks(t *testing.T) {
	m, issues := quality.Structural(completeCatalogue())
	assert.Equal(t, 30.0, m.Structural)
	assert.Equal(t, 10.0, m.Fields)
	assert.Equal(t, 10.0, m.Criteria)
	assert.Equal(t, 5.0, m.Descriptions)
	assert.Equal(t, 5.0, m.TypeCoverage)
	assert.Empty(t, issues)
}

func TestQualityGateWithoutAcceptanceCriteria(t *testing.T) {
	client := llmtest.New(`{"completeness": 20, "clarity": 12, "consistency": 8, "issues": ["criteria missing"]}`)
	a := quality.New(caller(client))

	out := a.Evaluate(context.Background(), "source text", catalogueWithoutCriteria())

	assert.LessOrEqual(t, out.Metrics.Structural, 15.0)
	assert.Equal(t, 40.0, out.Metrics.Semantic)
	assert.Equal(t, quality.SemanticLLM, out.Metrics.SemanticSource)
	assert.False(t, out.Pass)
	assert.Equal(t, out.Metrics.Structural+out.Metrics.Semantic, out.Score)
	assert.Contains(t, out.Issues, "criteria missing")
	assert.Contains(t, out.Issues, "2 requirement(s) have no acceptance criteria")
	assert.NotEmpty(t, out.Recommendations)
}

func TestVerdictBands(t *testing.T) {
	fair := quality.Verdict(60, quality.DefaultThreshold)
	assert.Equal(t, agent.GradeFair, fair.Grade)
	assert.False(t, fair.Pass)
	assert.Equal(t, agent.ActionRefinementRequired, fair.Action)

	tests := []struct {
		score  float64
		grade  string
		action string
	}{
		{95, agent.GradeExcellent, agent.ActionAccept},
		{80, agent.GradeGood, agent.ActionAcceptWithWarning},
		{75, agent.GradeGood, agent.ActionAcceptWithWarning},
		{59.9, agent.GradePoor, agent.ActionRejectAndRetry},
	}
	for _, tt := range tests {
		v := quality.Verdict(tt.score, 75)
		assert.Equal(t, tt.grade, v.Grade, "score %v", tt.score)
		assert.Equal(t, tt.action, v.Action, "score %v", tt.score)
	}
}

func TestSemanticScoresAreClamped(t *testing.T) {
	client := llmtest.New("Here you go:\n```json\n{\"completeness\": 99, \"clarity\": -3, \"consistency\": 15}\n```")
	out := quality.New(caller(client)).Evaluate(context.Background(), "text", completeCatalogue())
	assert.Equal(t, 30.0, out.Metrics.Completeness)
	assert.Equal(t, 0.0, out.Metrics.Clarity)
	assert.Equal(t, 15.0, out.Metrics.Consistency)
	assert.Equal(t, 75.0, out.Score)
	assert.True(t, out.Pass)
}

func TestHeuristicFallback(t *testing.T) {
	for name, c := range map[string]*llm.Caller{
		"no client": nil,
		"prose":     caller(llmtest.New("The catalogue looks fine to me.")),
		"error":     caller(&llmtest.Client{Replies: []llmtest.Reply{{Err: errors.New("boom")}}}),
	} {
		t.Run(name, func(t *testing.T) {
			out := quality.New(c).Evaluate(context.Background(), "text", completeCatalogue())
			assert.Equal(t, quality.SemanticHeuristic, out.Metrics.SemanticSource)
			// 2 of 5 requirements -> 12 completeness; both descriptions specific -> 25; unique titles -> 15.
			assert.Equal(t, 12.0, out.Metrics.Completeness)
			assert.Equal(t, 25.0, out.Metrics.Clarity)
			assert.Equal(t, 15.0, out.Metrics.Consistency)
			assert.Equal(t, 82.0, out.Score)
		})
	}
}

func TestSemanticRetriesTransientFailures(t *testing.T) {
	client := &llmtest.Client{Replies: []llmtest.Reply{
		{Err: llm.NewTransientError(llm.ErrTimeout)},
		{Content: `{"completeness": 30, "clarity": 25, "consistency": 15}`},
	}}
	out := quality.New(caller(client)).Evaluate(context.Background(), "text", completeCatalogue())

	assert.Equal(t, 2, client.Calls())
	assert.Equal(t, quality.SemanticLLM, out.Metrics.SemanticSource)
	assert.Equal(t, 70.0, out.Metrics.Semantic)
	assert.Equal(t, 100.0, out.Score)
}

func TestHeuristicFlagsDuplicatesAndVagueness(t *testing.T) {
	reqs := []domain.Requirement{
		{ReqID: "R1", Title: "Search", Description: "Search should be fast and user-friendly etc."},
		{ReqID: "R2", Title: "search", Description: "short"},
	}
	sem := quality.Heuristic(reqs)
	assert.Equal(t, 0.0, sem.Clarity)
	assert.Equal(t, 7.5, sem.Consistency)
	assert.Contains(t, sem.Issues, "duplicate requirement titles")
}

func TestEmptyCatalogue(t *testing.T) {
	out := quality.New(nil).Evaluate(context.Background(), "text", nil)
	assert.Equal(t, 0.0, out.Score)
	assert.Equal(t, agent.GradePoor, out.Grade)
	assert.Equal(t, agent.ActionRejectAndRetry, out.Action)
	assert.Contains(t, out.Issues, "no requirements extracted")
}

func TestRunRequiresScope(t *testing.T) {
	a := quality.New(nil, quality.WithThreshold(50))
	_, err := a.Run(context.Background(), agent.Payload{})
	require.ErrorIs(t, err, agent.ErrMissingInput)

	res, err := a.Run(context.Background(), agent.Payload{Scope: &agent.ScopeOutput{Requirements: completeCatalogue()}})
	require.NoError(t, err)
	require.NotNil(t, res.Quality)
	assert.True(t, res.Quality.Pass)
	assert.Equal(t, 50.0, a.Threshold())
}
