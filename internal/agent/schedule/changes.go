package schedule

import (
	"fmt"
	"slices"
	"strings"

	"github.com/evanschultz/pmforge/internal/cpm"
	"github.com/evanschultz/pmforge/internal/domain"
)

// Rejection reasons recorded in the change log.
const (
	ReasonUnknownOp       = "unknown op"
	ReasonUnknownTask     = "task not found"
	ReasonUnknownPred     = "predecessor not found"
	ReasonSelfReference   = "task cannot precede itself"
	ReasonCycle           = "change would create a dependency cycle"
	ReasonInvalidDuration = "new_duration must be >= 1"
	ReasonNotPredecessor  = "predecessor not present"
	ReasonEmptyName       = "new_name is required"
)

// ApplyChangeRequests applies crs in order to a deep copy of base. Invalid requests are logged
// with ok=false and skipped; base is never modified.
func ApplyChangeRequests(base []domain.ScheduleTask, crs []domain.ChangeRequest) ([]domain.ScheduleTask, []domain.ChangeLogEntry) {
	tasks := domain.CloneTasks(base)
	entries := make([]domain.ChangeLogEntry, 0, len(crs))
	for _, cr := range crs {
		entries = append(entries, apply(tasks, cr))
	}
	return tasks, entries
}

func apply(tasks []domain.ScheduleTask, cr domain.ChangeRequest) domain.ChangeLogEntry {
	entry := domain.ChangeLogEntry{Op: cr.Op, TaskID: strings.TrimSpace(cr.TaskID)}
	reject := func(reason string) domain.ChangeLogEntry {
		entry.Reason = reason
		return entry
	}
	if !domain.IsValidChangeOp(cr.Op) {
		return reject(ReasonUnknownOp)
	}
	idx := domain.TaskIndex(tasks)
	i, ok := idx[entry.TaskID]
	if !ok {
		return reject(ReasonUnknownTask)
	}
	t := &tasks[i]

	switch cr.Op {
	case domain.ChangeOpUpdateDuration:
		if cr.NewDuration == nil || *cr.NewDuration < 1 {
			return reject(ReasonInvalidDuration)
		}
		entry.Detail = map[string]any{"old_duration": t.Duration, "new_duration": *cr.NewDuration}
		t.Duration = *cr.NewDuration

	case domain.ChangeOpUpdateName:
		name := strings.TrimSpace(cr.NewName)
		if name == "" {
			return reject(ReasonEmptyName)
		}
		entry.Detail = map[string]any{"old_name": t.Name, "new_name": name}
		t.Name = name

	case domain.ChangeOpAddPred:
		pred := strings.TrimSpace(cr.Predecessor)
		if reason := checkPred(idx, entry.TaskID, pred); reason != "" {
			return reject(reason)
		}
		entry.Detail = map[string]any{"predecessor": pred}
		if slices.Contains(t.Predecessors, pred) {
			entry.Detail["unchanged"] = true
			break
		}
		prev := t.Predecessors
		t.Predecessors = append(append([]string{}, prev...), pred)
		if createsCycle(tasks) {
			t.Predecessors = prev
			return reject(ReasonCycle)
		}

	case domain.ChangeOpRemovePred:
		pred := strings.TrimSpace(cr.Predecessor)
		pos := slices.Index(t.Predecessors, pred)
		if pos < 0 {
			return reject(ReasonNotPredecessor)
		}
		entry.Detail = map[string]any{"predecessor": pred}
		t.Predecessors = slices.Delete(append([]string{}, t.Predecessors...), pos, pos+1)

	case domain.ChangeOpSetPredecessors:
		preds := make([]string, 0, len(cr.Predecessors))
		for _, p := range cr.Predecessors {
			p = strings.TrimSpace(p)
			if reason := checkPred(idx, entry.TaskID, p); reason != "" {
				return reject(fmt.Sprintf("%s: %s", reason, p))
			}
			if !slices.Contains(preds, p) {
				preds = append(preds, p)
			}
		}
		prev := t.Predecessors
		t.Predecessors = preds
		if createsCycle(tasks) {
			t.Predecessors = prev
			return reject(ReasonCycle)
		}
		entry.Detail = map[string]any{"old_predecessors": prev, "predecessors": preds}
	}
	entry.OK = true
	return entry
}

func checkPred(idx map[string]int, taskID, pred string) string {
	if _, ok := idx[pred]; !ok {
		return ReasonUnknownPred
	}
	if pred == taskID {
		return ReasonSelfReference
	}
	return ""
}

func createsCycle(tasks []domain.ScheduleTask) bool {
	gr, _ := cpm.Build(tasks)
	return len(gr.Cycles()) > 0
}
