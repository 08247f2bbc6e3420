package cpm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/pmforge/internal/domain"
)

func diamond() []domain.ScheduleTask {
	return []domain.ScheduleTask{
		{ID: "A", Duration: 2},
		{ID: "B", Duration: 3, Predecessors: []string{"A"}},
		{ID: "C", Duration: 1, Predecessors: []string{"A"}},
		{ID: "D", Duration: 2, Predecessors: []string{"B", "C"}},
	}
}

func byID(res Result) map[string]domain.ScheduleTask {
	out := map[string]domain.ScheduleTask{}
	for _, t := range res.Tasks {
		out[t.ID] = t
	}
	return out
}

func TestComputeDiamond(t *testing.T) {
	res, err := Compute(diamond())
	require.NoError(t, err)
	tasks := byID(res)

	want := map[string][2]int{"A": {0, 2}, "B": {2, 5}, "C": {2, 3}, "D": {5, 7}}
	for id, esef := range want {
		assert.Equal(t, esef[0], tasks[id].ES, "ES(%s)", id)
		assert.Equal(t, esef[1], tasks[id].EF, "EF(%s)", id)
	}
	assert.Equal(t, 7, res.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "D"}, res.CriticalPath)
	assert.Equal(t, 2, tasks["C"].Float)
	assert.Equal(t, 5, tasks["C"].LF)
	assert.False(t, tasks["C"].Critical)
	assert.Empty(t, res.Heals)

	for _, task := range res.Tasks {
		assert.Equal(t, task.Duration, task.EF-task.ES, "EF-ES for %s", task.ID)
		assert.Equal(t, task.Duration, task.LF-task.LS, "LF-LS for %s", task.ID)
		assert.Equal(t, task.Critical, task.Float == 0)
	}
}

func TestComputeKeepsParallelCriticalChains(t *testing.T) {
	res, err := Compute([]domain.ScheduleTask{
		{ID: "A", Duration: 3},
		{ID: "B", Duration: 2},
		{ID: "C", Duration: 1, Predecessors: []string{"B"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "C"}, res.CriticalPath)
	assert.Equal(t, SortedCritical(res.Tasks), res.CriticalPath)
}

func TestComputeMergesChainsThatJoin(t *testing.T) {
	res, err := Compute([]domain.ScheduleTask{
		{ID: "A", Duration: 2},
		{ID: "B", Duration: 2},
		{ID: "C", Duration: 1},
		{ID: "D", Duration: 3, Predecessors: []string{"A", "B", "C"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "D"}, res.CriticalPath)
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	in := diamond()
	_, err := Compute(in)
	require.NoError(t, err)
	assert.Zero(t, in[3].ES)
	assert.Equal(t, []string{"B", "C"}, in[3].Predecessors)
}

func TestComputeShortenedBTieBreak(t *testing.T) {
	in := diamond()
	in[1].Duration = 1
	res, err := Compute(in)
	require.NoError(t, err)
	assert.Equal(t, 5, res.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "D"}, res.CriticalPath)
	assert.Equal(t, []string{"A", "B", "C", "D"}, SortedCritical(res.Tasks))
}

func TestComputeHealsUnknownAndSelfReferences(t *testing.T) {
	res, err := Compute([]domain.ScheduleTask{
		{ID: "A", Duration: 1, Predecessors: []string{"A", "ghost"}},
		{ID: "B", Duration: 1, Predecessors: []string{"A"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Heals, 2)
	assert.Equal(t, HealSelfReference, res.Heals[0].Reason)
	assert.Equal(t, HealUnknownPredecessor, res.Heals[1].Reason)
	assert.Equal(t, []string{}, byID(res)["A"].Predecessors)
	assert.Equal(t, 2, res.ProjectFinish)
}

func TestComputeBreaksCycles(t *testing.T) {
	res, err := Compute([]domain.ScheduleTask{
		{ID: "A", Duration: 1, Predecessors: []string{"C"}},
		{ID: "B", Duration: 2, Predecessors: []string{"A"}},
		{ID: "C", Duration: 3, Predecessors: []string{"B"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Heals, 1)
	assert.Equal(t, HealCycle, res.Heals[0].Reason)
	assert.Equal(t, Edge{From: "C", To: "A"}, res.Heals[0].Edge)
	assert.Equal(t, 6, res.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "C"}, res.CriticalPath)

	ids := map[string]struct{}{}
	for _, task := range res.Tasks {
		ids[task.ID] = struct{}{}
	}
	for _, task := range res.Tasks {
		for _, p := range task.Predecessors {
			assert.Contains(t, ids, p)
		}
	}
}

func TestGraphOrderIsStable(t *testing.T) {
	gr, _ := Build([]domain.ScheduleTask{
		{ID: "x"},
		{ID: "y"},
		{ID: "z", Predecessors: []string{"y"}},
	})
	order, err := gr.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, order)
	assert.True(t, gr.HasEdge("y", "z"))
	assert.Equal(t, []Edge{{From: "y", To: "z"}}, gr.Edges())
}

func TestDegraded(t *testing.T) {
	res := Degraded(diamond())
	assert.Equal(t, 3, res.ProjectFinish)
	for _, task := range res.Tasks {
		assert.Zero(t, task.ES)
		assert.Equal(t, task.Duration, task.EF)
	}
}

func TestCompareIDs(t *testing.T) {
	assert.Negative(t, CompareIDs("1.2", "1.10"))
	assert.Negative(t, CompareIDs("1", "1.1"))
	assert.Positive(t, CompareIDs("B", "A"))
	assert.Zero(t, CompareIDs("2.3", "2.3"))
}
