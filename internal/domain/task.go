package domain

import "strings"

// ScheduleTask is one CPM-scheduled task. ID is the WBS node id it derives from.
type ScheduleTask struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ParentID     string   `json:"parent_id,omitempty"`
	Level        int      `json:"level,omitempty"`
	Duration     int      `json:"duration"`
	StoryPoints  int      `json:"story_points,omitempty"`
	Predecessors []string `json:"predecessors"`
	ES           int      `json:"es"`
	EF           int      `json:"ef"`
	LS           int      `json:"ls"`
	LF           int      `json:"lf"`
	Float        int      `json:"float"`
	Critical     bool     `json:"critical"`
	PlannedStart string   `json:"planned_start,omitempty"`
	PlannedEnd   string   `json:"planned_end,omitempty"`
}

// CloneTasks deep-copies a task list so callers can mutate the copy freely.
func CloneTasks(in []ScheduleTask) []ScheduleTask {
	if in == nil {
		return nil
	}
	out := make([]ScheduleTask, len(in))
	for i, t := range in {
		t.Predecessors = append([]string{}, t.Predecessors...)
		out[i] = t
	}
	return out
}

// TaskIndex maps task ids to their slice position.
func TaskIndex(tasks []ScheduleTask) map[string]int {
	idx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		idx[strings.TrimSpace(t.ID)] = i
	}
	return idx
}

// Sprint is one agile iteration. Committed never exceeds Capacity.
type Sprint struct {
	Index       int      `json:"index"`
	Committed   int      `json:"committed"`
	Capacity    int      `json:"capacity"`
	TaskIDs     []string `json:"task_ids,omitempty"`
	LengthWeeks int      `json:"length_weeks"`
}

// BurndownPoint is the remaining story-points at the end of one working day of a sprint.
type BurndownPoint struct {
	Sprint    int     `json:"sprint"`
	Day       int     `json:"day"`
	Remaining float64 `json:"remaining"`
}
