package cpm

import (
	"slices"
	"strings"

	"github.com/evanschultz/pmforge/internal/domain"
)

// Result is a computed schedule.
type Result struct {
	Tasks         []domain.ScheduleTask `json:"tasks"`
	ProjectFinish int                   `json:"project_finish"`
	CriticalPath  []string              `json:"critical_path"`
	Heals         []Heal                `json:"heals,omitempty"`
}

// Compute heals the dependency graph, runs the forward and backward passes, and marks the
// critical path. The input slice is not modified; predecessor lists in the result reflect
// the healed graph so every reference resolves.
func Compute(tasks []domain.ScheduleTask) (Result, error) {
	out := make([]domain.ScheduleTask, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range domain.CloneTasks(tasks) {
		t.ID = strings.TrimSpace(t.ID)
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		if t.Duration < 0 {
			t.Duration = 0
		}
		out = append(out, t)
	}

	gr, heals := Build(out)
	for _, e := range gr.BreakCycles() {
		heals = append(heals, Heal{Edge: e, Reason: HealCycle})
	}
	order, err := gr.Order()
	if err != nil {
		return Result{}, err
	}

	idx := domain.TaskIndex(out)
	for i := range out {
		out[i].Predecessors = gr.Predecessors(out[i].ID)
		if out[i].Predecessors == nil {
			out[i].Predecessors = []string{}
		}
	}

	for _, id := range order {
		t := &out[idx[id]]
		es := 0
		for _, p := range t.Predecessors {
			if ef := out[idx[p]].EF; ef > es {
				es = ef
			}
		}
		t.ES = es
		t.EF = es + t.Duration
	}

	finish := 0
	for _, t := range out {
		if t.EF > finish {
			finish = t.EF
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		t := &out[idx[order[i]]]
		lf := finish
		for _, s := range gr.Successors(t.ID) {
			if ls := out[idx[s]].LS; ls < lf {
				lf = ls
			}
		}
		t.LF = lf
		t.LS = lf - t.Duration
		t.Float = t.LS - t.ES
		t.Critical = t.Float == 0
	}

	return Result{
		Tasks:         out,
		ProjectFinish: finish,
		CriticalPath:  criticalChain(out, gr),
		Heals:         heals,
	}, nil
}

// criticalChain returns the union of the critical chains, ordered by ES then id. A chain starts at
// every critical task that no critical predecessor feeds, and follows critical successors that start
// exactly when the current task finishes. Where a chain forks, the lower ES then the lower id wins.
func criticalChain(tasks []domain.ScheduleTask, gr *Graph) []string {
	idx := domain.TaskIndex(tasks)
	less := func(a, b domain.ScheduleTask) int {
		if a.ES != b.ES {
			return a.ES - b.ES
		}
		return CompareIDs(a.ID, b.ID)
	}

	var starts []domain.ScheduleTask
	for _, t := range tasks {
		if !t.Critical || len(t.Predecessors) > 0 && hasCriticalFeeder(tasks, idx, t) {
			continue
		}
		starts = append(starts, t)
	}
	slices.SortStableFunc(starts, less)

	onPath := map[string]struct{}{}
	var members []domain.ScheduleTask
	for _, start := range starts {
		seen := map[string]struct{}{start.ID: {}}
		cur := start
		for {
			if _, ok := onPath[cur.ID]; !ok {
				onPath[cur.ID] = struct{}{}
				members = append(members, cur)
			}
			var next *domain.ScheduleTask
			for _, s := range gr.Successors(cur.ID) {
				cand := &tasks[idx[s]]
				if !cand.Critical || cand.ES != cur.EF {
					continue
				}
				if _, ok := seen[cand.ID]; ok {
					continue
				}
				if next == nil || less(*cand, *next) < 0 {
					next = cand
				}
			}
			if next == nil {
				break
			}
			seen[next.ID] = struct{}{}
			cur = *next
		}
	}

	slices.SortStableFunc(members, less)
	out := make([]string, len(members))
	for i, t := range members {
		out[i] = t.ID
	}
	return out
}

func hasCriticalFeeder(tasks []domain.ScheduleTask, idx map[string]int, t domain.ScheduleTask) bool {
	for _, p := range t.Predecessors {
		pt := tasks[idx[p]]
		if pt.Critical && pt.EF == t.ES {
			return true
		}
	}
	return false
}

// Degraded returns the fallback plan used when the graph cannot be ordered:
// every task starts at 0 and carries no float.
func Degraded(tasks []domain.ScheduleTask) Result {
	out := domain.CloneTasks(tasks)
	finish := 0
	for i := range out {
		out[i].ES = 0
		out[i].EF = out[i].Duration
		out[i].LS = 0
		out[i].LF = out[i].Duration
		out[i].Float = 0
		out[i].Critical = false
		if out[i].EF > finish {
			finish = out[i].EF
		}
	}
	return Result{Tasks: out, ProjectFinish: finish, CriticalPath: []string{}}
}

// SortedCritical returns every critical task id ordered by ES then id.
func SortedCritical(tasks []domain.ScheduleTask) []string {
	crit := make([]domain.ScheduleTask, 0, len(tasks))
	for _, t := range tasks {
		if t.Critical {
			crit = append(crit, t)
		}
	}
	slices.SortStableFunc(crit, func(a, b domain.ScheduleTask) int {
		if a.ES != b.ES {
			return a.ES - b.ES
		}
		return CompareIDs(a.ID, b.ID)
	})
	out := make([]string, len(crit))
	for i, t := range crit {
		out[i] = t.ID
	}
	return out
}
