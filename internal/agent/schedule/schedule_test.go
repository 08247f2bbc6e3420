package schedule_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/agent/schedule"
	"github.com/evanschultz/pmforge/internal/artifact"
	"github.com/evanschultz/pmforge/internal/cpm"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/llm/llmtest"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

const diamondJSON = `[
  {"id": "A", "name": "Design", "duration_days": 2},
  {"id": "B", "name": "Build", "duration_days": 3, "predecessors": ["A"]},
  {"id": "C", "name": "Docs", "duration_days": 1, "predecessors": ["A"]},
  {"id": "D", "name": "Release", "duration_days": 2, "predecessors": ["B", "C"]}
]`

func fastCaller(c llm.Client) *llm.Caller {
	return llm.NewCaller(c,
		llm.WithTimeout(time.Second),
		llm.WithRetry(llm.RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 5 * time.Millisecond}),
	)
}

func newAgent(t *testing.T, c llm.Client, opts ...schedule.Option) (*schedule.Agent, string) {
	t.Helper()
	dir := t.TempDir()
	var caller *llm.Caller
	if c != nil {
		caller = fastCaller(c)
	}
	opts = append([]schedule.Option{schedule.WithClock(func() time.Time { return fixedNow })}, opts...)
	return schedule.New(caller, artifact.NewLayout(dir), opts...), dir
}

func diamondPayload() agent.Payload {
	return agent.Payload{
		ProjectID: "p1",
		WBSJSON:   diamondJSON,
		Options:   agent.Options{StartDate: "2026-03-02"},
	}
}

func taskByID(t *testing.T, tasks []domain.ScheduleTask, id string) domain.ScheduleTask {
	t.Helper()
	for _, task := range tasks {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not found", id)
	return domain.ScheduleTask{}
}

func TestWaterfallDiamond(t *testing.T) {
	a, dir := newAgent(t, nil)
	res, err := a.Run(context.Background(), diamondPayload())
	require.NoError(t, err)
	out := res.Schedule
	require.NotNil(t, out)

	assert.Equal(t, 7, out.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "D"}, out.CriticalPath)
	want := map[string][2]int{"A": {0, 2}, "B": {2, 5}, "C": {2, 3}, "D": {5, 7}}
	for id, esef := range want {
		task := taskByID(t, out.Tasks, id)
		assert.Equal(t, esef[0], task.ES, "ES(%s)", id)
		assert.Equal(t, esef[1], task.EF, "EF(%s)", id)
		assert.Equal(t, task.Duration, task.LF-task.LS, "LF-LS(%s)", id)
	}
	assert.Equal(t, 2, taskByID(t, out.Tasks, "C").Float)
	assert.False(t, taskByID(t, out.Tasks, "C").Critical)

	assert.Equal(t, "2026-03-02", out.StartDate)
	assert.Equal(t, "2026-03-09", out.FinishDate)
	assert.Equal(t, "2026-03-04", taskByID(t, out.Tasks, "B").PlannedStart)
	assert.Equal(t, "2026-03-07", taskByID(t, out.Tasks, "B").PlannedEnd)
	assert.Equal(t, schedule.ModeHeuristic, out.EstimationMode)
	assert.False(t, out.Revised)

	base := filepath.Join(dir, "outputs", "schedule", "p1")
	assert.Equal(t, filepath.Join(base, schedule.PlanFileName), out.PlanCSV)
	for _, name := range []string{schedule.PlanFileName, schedule.GanttFileName, schedule.TimelineFileName, schedule.CriticalPathFileName} {
		assert.FileExists(t, filepath.Join(base, name))
	}
	assert.NoFileExists(t, filepath.Join(base, schedule.BurndownFileName))
	assert.Empty(t, out.BurndownJSON)

	f, err := os.Open(out.PlanCSV)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, schedule.PlanHeader, rows[0])
	assert.Equal(t, []string{"D", "Release", "", "1", "2", "B;C", "5", "7", "5", "7", "0", "true", "2026-03-07", "2026-03-09"}, rows[4])

	data, err := os.ReadFile(out.CriticalPathJSON)
	require.NoError(t, err)
	var crit schedule.CriticalPathDoc
	require.NoError(t, json.Unmarshal(data, &crit))
	assert.Equal(t, 7, crit.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "D"}, crit.CriticalTasks)
	assert.Len(t, crit.Tasks, 3)
}

func TestChangeRequestReplan(t *testing.T) {
	a, dir := newAgent(t, nil)
	in := diamondPayload()
	one := 1
	in.ChangeRequests = []domain.ChangeRequest{{Op: domain.ChangeOpUpdateDuration, TaskID: "B", NewDuration: &one}}

	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	out := res.Schedule
	require.NotNil(t, out)

	assert.True(t, out.Revised)
	assert.Equal(t, 7, out.BaselineFinish)
	assert.Equal(t, 5, out.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "D"}, out.CriticalPath)
	require.Len(t, out.ChangeRequests, 1)
	assert.True(t, out.ChangeRequests[0].OK)
	assert.Equal(t, 1, taskByID(t, out.Tasks, "B").Duration)

	revised := filepath.Join(dir, "outputs", "schedule", "p1_revised")
	assert.FileExists(t, filepath.Join(revised, schedule.PlanFileName))
	assert.FileExists(t, filepath.Join(revised, schedule.CriticalPathFileName))
	assert.FileExists(t, filepath.Join(dir, "outputs", "schedule", "p1", schedule.PlanFileName))
}

func TestRepeatedReplanKeepsOriginalBaseline(t *testing.T) {
	a, _ := newAgent(t, nil)
	res, err := a.Run(context.Background(), diamondPayload())
	require.NoError(t, err)
	base := *res.Schedule
	base.Warnings = []string{"start date missing"}

	one, four := 1, 4
	first, err := a.Replan(context.Background(), base, []domain.ChangeRequest{{Op: domain.ChangeOpUpdateDuration, TaskID: "B", NewDuration: &one}})
	require.NoError(t, err)
	assert.Equal(t, 7, first.BaselineFinish)
	assert.Equal(t, 5, first.ProjectFinish)

	second, err := a.Replan(context.Background(), first, []domain.ChangeRequest{{Op: domain.ChangeOpUpdateDuration, TaskID: "D", NewDuration: &four}})
	require.NoError(t, err)
	assert.Equal(t, 7, second.BaselineFinish)
	assert.Equal(t, 7, second.ProjectFinish)
	assert.Equal(t, []string{"start date missing"}, second.Warnings)
	require.Len(t, second.ChangeRequests, 1)
	assert.Equal(t, "D", second.ChangeRequests[0].TaskID)
}

func TestReplanLeavesBaseUntouched(t *testing.T) {
	a, _ := newAgent(t, nil)
	res, err := a.Run(context.Background(), diamondPayload())
	require.NoError(t, err)
	base := *res.Schedule
	before := domain.CloneTasks(base.Tasks)

	var seen []domain.ChangeOp
	var rejected int
	a2, _ := newAgent(t, nil, schedule.WithChangeObserver(func(op domain.ChangeOp, ok bool) {
		seen = append(seen, op)
		if !ok {
			rejected++
		}
	}))
	crs := []domain.ChangeRequest{
		{Op: "explode", TaskID: "A"},
		{Op: domain.ChangeOpRemovePred, TaskID: "Z", Predecessor: "A"},
		{Op: domain.ChangeOpUpdateName, TaskID: "C", NewName: "User docs"},
	}
	revised, err := a2.Replan(context.Background(), base, crs)
	require.NoError(t, err)

	assert.Equal(t, before, base.Tasks)
	require.Len(t, revised.ChangeRequests, 3)
	assert.False(t, revised.ChangeRequests[0].OK)
	assert.Equal(t, schedule.ReasonUnknownOp, revised.ChangeRequests[0].Reason)
	assert.False(t, revised.ChangeRequests[1].OK)
	assert.Equal(t, schedule.ReasonUnknownTask, revised.ChangeRequests[1].Reason)
	assert.True(t, revised.ChangeRequests[2].OK)
	assert.Equal(t, "User docs", taskByID(t, revised.Tasks, "C").Name)
	assert.Equal(t, 7, revised.ProjectFinish)
	assert.Len(t, seen, 3)
	assert.Equal(t, 2, rejected)
}

func TestCycleCreatingChangeIsRejected(t *testing.T) {
	tasks := []domain.ScheduleTask{
		{ID: "A", Duration: 2, Predecessors: []string{}},
		{ID: "B", Duration: 3, Predecessors: []string{"A"}},
	}
	got, log := schedule.ApplyChangeRequests(tasks, []domain.ChangeRequest{
		{Op: domain.ChangeOpAddPred, TaskID: "A", Predecessor: "B"},
		{Op: domain.ChangeOpSetPredecessors, TaskID: "A", Predecessors: []string{"B"}},
		{Op: domain.ChangeOpAddPred, TaskID: "B", Predecessor: "B"},
	})
	require.Len(t, log, 3)
	assert.Equal(t, schedule.ReasonCycle, log[0].Reason)
	assert.Equal(t, schedule.ReasonCycle, log[1].Reason)
	assert.Equal(t, schedule.ReasonSelfReference, log[2].Reason)
	assert.Empty(t, got[0].Predecessors)
	assert.Equal(t, []string{"A"}, got[1].Predecessors)
}

func TestNonOverlappingChangesCommute(t *testing.T) {
	w, err := schedule.ParseWBS([]byte(diamondJSON), false)
	require.NoError(t, err)
	var tasks []domain.ScheduleTask
	for _, n := range w.Flatten() {
		tasks = append(tasks, domain.ScheduleTask{ID: n.ID, Name: n.Name, Duration: n.DurationDays, Predecessors: n.Predecessors})
	}
	four := 4
	first := domain.ChangeRequest{Op: domain.ChangeOpUpdateDuration, TaskID: "C", NewDuration: &four}
	second := domain.ChangeRequest{Op: domain.ChangeOpRemovePred, TaskID: "B", Predecessor: "A"}

	ab, _ := schedule.ApplyChangeRequests(tasks, []domain.ChangeRequest{first, second})
	ba, _ := schedule.ApplyChangeRequests(tasks, []domain.ChangeRequest{second, first})
	left, err := cpm.Compute(ab)
	require.NoError(t, err)
	right, err := cpm.Compute(ba)
	require.NoError(t, err)
	assert.Equal(t, left, right)
	assert.Equal(t, 8, left.ProjectFinish)
}

func TestAgileBurndown(t *testing.T) {
	sprints := schedule.PlanSprints(nil, 2, []int{10})
	require.Len(t, sprints, 1)
	assert.Equal(t, 20, sprints[0].Capacity)

	points := schedule.Burndown(sprints)
	require.Len(t, points, 11)
	assert.Equal(t, 10.0, points[0].Remaining)
	assert.Equal(t, 5, points[5].Day)
	assert.Equal(t, 5.0, points[5].Remaining)
	assert.Equal(t, 0.0, points[10].Remaining)
}

func TestPlanSprintsPacksLeaves(t *testing.T) {
	tasks := []domain.ScheduleTask{
		{ID: "1", Name: "Iteration 1"},
		{ID: "1.1", ParentID: "1", StoryPoints: 8},
		{ID: "1.2", ParentID: "1", StoryPoints: 8},
		{ID: "1.3", ParentID: "1", StoryPoints: 5},
	}
	sprints := schedule.PlanSprints(tasks, 1, nil)
	require.Len(t, sprints, 3)
	assert.Equal(t, []string{"1.1"}, sprints[0].TaskIDs)
	assert.Equal(t, 8, sprints[1].Committed)
	assert.Equal(t, 5, sprints[2].Committed)
	for _, s := range sprints {
		assert.LessOrEqual(t, s.Committed, s.Capacity)
	}
}

func TestAgileRunWritesBurndown(t *testing.T) {
	a, _ := newAgent(t, nil)
	in := diamondPayload()
	in.Methodology = domain.MethodologyAgile
	in.Options.SprintBacklogs = []int{10, 30}

	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	out := res.Schedule
	require.Len(t, out.Sprints, 2)
	assert.Equal(t, 20, out.Sprints[1].Committed)
	assert.Len(t, out.Burndown, 22)
	require.NotEmpty(t, out.BurndownJSON)

	data, err := os.ReadFile(out.BurndownJSON)
	require.NoError(t, err)
	var doc schedule.BurndownDoc
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 2, doc.SprintLengthWeeks)
	assert.Len(t, doc.Points, 22)

	one := 1
	revised, err := a.Replan(context.Background(), *out, []domain.ChangeRequest{{Op: domain.ChangeOpUpdateDuration, TaskID: "B", NewDuration: &one}})
	require.NoError(t, err)
	require.Len(t, revised.Sprints, 2)
	assert.Equal(t, 10, revised.Sprints[0].Committed)
}

func TestHeuristicEstimation(t *testing.T) {
	assert.Equal(t, 1, schedule.HeuristicDuration(""))
	assert.Equal(t, 3, schedule.HeuristicDuration("Draft test plan"))
	assert.Equal(t, 10, schedule.HeuristicDuration("one two three four five six seven eight nine ten eleven"))
	assert.Equal(t, 13, schedule.HeuristicStoryPoints("a b c d e f g h i j k l m n o"))

	tasks := []domain.ScheduleTask{
		{ID: "1", Name: "Planning and design work for the whole release"},
		{ID: "2", Name: "Build", Duration: 4},
	}
	schedule.EstimateHeuristic(tasks, domain.MethodologyWaterfall, 2)
	assert.Equal(t, 8, tasks[0].Duration)
	assert.Equal(t, 4, tasks[1].Duration)

	agile := []domain.ScheduleTask{{ID: "1", Name: "a b c d e f g h i j k l"}}
	schedule.EstimateHeuristic(agile, domain.MethodologyAgile, 2)
	assert.Equal(t, 12, agile[0].StoryPoints)
	assert.Equal(t, 10, agile[0].Duration)
}

func TestLLMEstimationRetriesAndDumps(t *testing.T) {
	client := llmtest.New(
		"Sure, here are my estimates in prose.",
		`[{"id":"A","duration_days":2,"predecessors":[]},
		  {"id":"B","duration_days":3,"predecessors":["A"]},
		  {"id":"C","duration_days":1,"predecessors":["A"]},
		  {"id":"D","duration_days":2,"predecessors":["B","C"]}]`,
	)
	a, dir := newAgent(t, client, schedule.WithConfig(schedule.Config{EstimationMode: schedule.ModeLLM}))
	in := agent.Payload{
		ProjectID: "p1",
		WBSJSON:   `[{"id":"A","name":"Design"},{"id":"B","name":"Build"},{"id":"C","name":"Docs"},{"id":"D","name":"Release"}]`,
		Options:   agent.Options{StartDate: "2026-03-02"},
	}
	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	out := res.Schedule

	assert.Equal(t, 2, client.Calls())
	assert.Equal(t, schedule.ModeLLM, out.EstimationMode)
	assert.Equal(t, 7, out.ProjectFinish)
	assert.Equal(t, []string{"A", "B", "D"}, out.CriticalPath)
	assert.Empty(t, out.Warnings)

	dumps, err := filepath.Glob(filepath.Join(dir, "outputs", "schedule", "dbg", "p1", "llm_raw_attempt*.txt"))
	require.NoError(t, err)
	assert.Len(t, dumps, 2)
}

func TestLLMEstimationFallsBackToHeuristic(t *testing.T) {
	a, _ := newAgent(t, nil, schedule.WithConfig(schedule.Config{EstimationMode: schedule.ModeLLM}))
	in := agent.Payload{ProjectID: "p1", WBSJSON: `[{"id":"A","name":"Design the schema"},{"id":"B","name":"Build","predecessors":["A"]}]`}

	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	out := res.Schedule
	assert.Equal(t, schedule.ModeHeuristic, out.EstimationMode)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "using heuristic")
	assert.Equal(t, 4, out.ProjectFinish)
	assert.Equal(t, fixedNow.Format(schedule.DateLayout), out.StartDate)
}

func TestYAMLWBSFileLinksHierarchy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wbs.yaml")
	body := `nodes:
  - name: Planning
    children:
      - name: Gather requirements
        duration_days: 2
      - name: Sign off
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	a, _ := newAgent(t, nil)
	res, err := a.Run(context.Background(), agent.Payload{ProjectID: "p1", WBSPath: path})
	require.NoError(t, err)
	out := res.Schedule
	require.Len(t, out.Tasks, 3)
	assert.Equal(t, "1.1", out.Tasks[1].ID)
	assert.Equal(t, []string{"1"}, out.Tasks[1].Predecessors)
	assert.Equal(t, 2, out.Tasks[1].Duration)
	assert.Equal(t, 3, out.ProjectFinish)
	assert.Equal(t, []string{"1", "1.1"}, out.CriticalPath)
}

func TestFallbackWBSWithoutInputs(t *testing.T) {
	a, _ := newAgent(t, nil)
	res, err := a.Run(context.Background(), agent.Payload{ProjectID: "p1"})
	require.NoError(t, err)
	out := res.Schedule
	require.Len(t, out.Tasks, 3)
	assert.Equal(t, "Planning & Design", out.Tasks[0].Name)
	assert.Equal(t, 3, out.ProjectFinish)
}

func TestScopeWBSIsUsed(t *testing.T) {
	a, _ := newAgent(t, nil)
	scopeOut := &agent.ScopeOutput{WBS: domain.WBS{ProjectID: "p1", Nodes: []domain.WBSNode{
		{ID: "1", Name: "Phase", Level: 1, Children: []domain.WBSNode{{ID: "1.1", Name: "Implement login", Level: 2, ParentID: "1"}}},
	}}}
	res, err := a.Run(context.Background(), agent.Payload{ProjectID: "p1", Scope: scopeOut})
	require.NoError(t, err)
	require.Len(t, res.Schedule.Tasks, 2)
	assert.Equal(t, "Implement login", res.Schedule.Tasks[1].Name)
	assert.Equal(t, 3, res.Schedule.ProjectFinish)
}

func TestUnknownPredecessorIsHealed(t *testing.T) {
	a, _ := newAgent(t, nil)
	in := agent.Payload{ProjectID: "p1", WBSJSON: `[{"id":"A","name":"A","duration_days":1},{"id":"B","name":"B","duration_days":1,"predecessors":["A","ghost"]}]`}
	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	out := res.Schedule
	require.Len(t, out.Healed, 1)
	assert.Contains(t, out.Healed[0], "ghost")
	assert.Equal(t, []string{"A"}, taskByID(t, out.Tasks, "B").Predecessors)
	assert.Equal(t, 2, out.ProjectFinish)
}

func TestCalendarSkipsWeekendsAndHolidays(t *testing.T) {
	cal, err := schedule.NewCalendar("2026-03-06", true, []string{"2026-03-10"}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-06", cal.Date(0))
	assert.Equal(t, "2026-03-09", cal.Date(1))
	assert.Equal(t, "2026-03-11", cal.Date(2))

	raw, err := schedule.NewCalendar("2026-03-06", false, nil, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-08", raw.Date(2))

	_, err = schedule.NewCalendar("March 6", false, nil, fixedNow)
	assert.Error(t, err)
}

func TestArtifactsAreIdempotent(t *testing.T) {
	a, _ := newAgent(t, nil)
	first, err := a.Run(context.Background(), diamondPayload())
	require.NoError(t, err)
	read := func(out *agent.ScheduleOutput) map[string][]byte {
		files := map[string][]byte{}
		for _, p := range []string{out.PlanCSV, out.GanttJSON, out.CriticalPathJSON, out.TimelineJSON} {
			data, err := os.ReadFile(p)
			require.NoError(t, err)
			files[filepath.Base(p)] = data
		}
		return files
	}
	before := read(first.Schedule)
	second, err := a.Run(context.Background(), diamondPayload())
	require.NoError(t, err)
	assert.Equal(t, before, read(second.Schedule))
}

func TestInvalidInputs(t *testing.T) {
	a, _ := newAgent(t, nil)
	_, err := a.Run(context.Background(), agent.Payload{ProjectID: "../x"})
	assert.ErrorIs(t, err, artifact.ErrInvalidSegment)

	_, err = a.Run(context.Background(), agent.Payload{ProjectID: "p1", Methodology: "spiral"})
	assert.ErrorIs(t, err, domain.ErrInvalidMethodology)

	_, err = a.Replan(context.Background(), agent.ScheduleOutput{ProjectID: "p1"}, nil)
	assert.ErrorIs(t, err, schedule.ErrEmptyPlan)
}

func TestParseWBSRenumbersDuplicates(t *testing.T) {
	w, err := schedule.ParseWBS([]byte(`{"nodes":[{"id":"x","name":"One"},{"id":"x","name":"Two"}]}`), false)
	require.NoError(t, err)
	flat := w.Flatten()
	require.Len(t, flat, 2)
	assert.Equal(t, "1", flat[0].ID)
	assert.Equal(t, "2", flat[1].ID)

	_, err = schedule.ParseWBS([]byte(`{"nodes":[]}`), false)
	assert.ErrorIs(t, err, domain.ErrInvalidWBS)
}
