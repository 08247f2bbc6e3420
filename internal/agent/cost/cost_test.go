package cost_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/agent/cost"
	"github.com/evanschultz/pmforge/internal/domain"
)

func TestEstimateSplitsTotal(t *testing.T) {
	reqs := []domain.Requirement{
		{ReqID: "R1", Type: domain.RequirementFunctional, Priority: domain.PriorityHigh},
		{ReqID: "R2", Type: domain.RequirementNonFunctional, Priority: domain.PriorityLow},
		{ReqID: "R3", Type: domain.RequirementFunctional, Priority: domain.PriorityMedium},
		{ReqID: "R4", Type: domain.RequirementFunctional, Priority: domain.PriorityMedium},
	}
	out := cost.Estimate(reqs, 1000, "USD")

	// 1 + 0.25*0.25 + 0.5*0.25 = 1.1875
	assert.InDelta(t, 1.1875, cost.Complexity(reqs), 1e-9)
	assert.InDelta(t, 4750.0, out.TotalCost, 1e-9)
	assert.InDelta(t, 2850.0, out.Breakdown.Development, 1e-9)
	assert.InDelta(t, 1187.5, out.Breakdown.Testing, 1e-9)
	assert.InDelta(t, 712.5, out.Breakdown.Management, 1e-9)
	assert.InDelta(t, out.TotalCost, out.Breakdown.Development+out.Breakdown.Testing+out.Breakdown.Management, 1e-6)
	assert.Equal(t, 0.5, out.Confidence)
	assert.NotEmpty(t, out.Assumptions)
}

func TestEstimateEmptyCatalogue(t *testing.T) {
	out := cost.Estimate(nil, 0, "")
	assert.Zero(t, out.TotalCost)
	assert.Equal(t, 1.0, cost.Complexity(nil))
}

func TestRunRequiresScope(t *testing.T) {
	a := cost.New(cost.WithBaseCost(500))
	_, err := a.Run(context.Background(), agent.Payload{ProjectID: "p1"})
	require.ErrorIs(t, err, agent.ErrMissingInput)

	res, err := a.Run(context.Background(), agent.Payload{
		ProjectID: "p1",
		Scope:     &agent.ScopeOutput{Requirements: []domain.Requirement{{ReqID: "R1"}, {ReqID: "R2"}}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Cost)
	assert.InDelta(t, 1000.0, res.Cost.TotalCost, 1e-9)
	assert.Equal(t, agent.StepCost, a.Name())
}
