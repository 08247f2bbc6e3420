package schedule

import (
	"math"

	"github.com/evanschultz/pmforge/internal/domain"
)

// Sprint sizing.
const (
	pointsPerWeek = 10
	daysPerWeek   = 5
)

// SprintCapacity returns the story-point capacity of one sprint.
func SprintCapacity(sprintWeeks int) int {
	return max(sprintWeeks, 1) * pointsPerWeek
}

// PlanSprints builds sprints from explicit backlogs, or packs the leaf tasks' story points into
// sprints of SprintCapacity in task order. Committed never exceeds capacity.
func PlanSprints(tasks []domain.ScheduleTask, sprintWeeks int, backlogs []int) []domain.Sprint {
	capacity := SprintCapacity(sprintWeeks)
	weeks := max(sprintWeeks, 1)
	var out []domain.Sprint
	if len(backlogs) > 0 {
		for i, b := range backlogs {
			out = append(out, domain.Sprint{
				Index:       i + 1,
				Committed:   min(max(b, 0), capacity),
				Capacity:    capacity,
				LengthWeeks: weeks,
			})
		}
		return out
	}

	leaves := leafTasks(tasks)
	cur := domain.Sprint{Index: 1, Capacity: capacity, LengthWeeks: weeks}
	for _, t := range leaves {
		sp := min(max(t.StoryPoints, 1), capacity)
		if cur.Committed+sp > capacity && cur.Committed > 0 {
			out = append(out, cur)
			cur = domain.Sprint{Index: cur.Index + 1, Capacity: capacity, LengthWeeks: weeks}
		}
		cur.Committed += sp
		cur.TaskIDs = append(cur.TaskIDs, t.ID)
	}
	if cur.Committed > 0 {
		out = append(out, cur)
	}
	return out
}

// Burndown emits a linear burndown per sprint over sprint_weeks x 5 working days: days+1 points
// from committed down to 0.
func Burndown(sprints []domain.Sprint) []domain.BurndownPoint {
	var out []domain.BurndownPoint
	for _, s := range sprints {
		days := max(s.LengthWeeks, 1) * daysPerWeek
		for day := 0; day <= days; day++ {
			remaining := float64(s.Committed) * (1 - float64(day)/float64(days))
			out = append(out, domain.BurndownPoint{
				Sprint:    s.Index,
				Day:       day,
				Remaining: math.Round(remaining*100) / 100,
			})
		}
	}
	return out
}

// leafTasks returns tasks no other task names as parent, in input order.
func leafTasks(tasks []domain.ScheduleTask) []domain.ScheduleTask {
	parents := map[string]struct{}{}
	for _, t := range tasks {
		if t.ParentID != "" {
			parents[t.ParentID] = struct{}{}
		}
	}
	out := make([]domain.ScheduleTask, 0, len(tasks))
	for _, t := range tasks {
		if _, isParent := parents[t.ID]; !isParent {
			out = append(out, t)
		}
	}
	return out
}
