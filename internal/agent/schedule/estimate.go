package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/prompt"
)

// Estimation modes.
const (
	ModeHeuristic = "heuristic"
	ModeLLM       = "llm"
)

// Heuristic bounds.
const (
	maxWaterfallDays = 10
	maxStoryPoints   = 13
)

var errNoEstimates = errors.New("reply matched no task ids")

// HeuristicDuration returns clamp(1..10, word count of name).
func HeuristicDuration(name string) int {
	return min(max(len(strings.Fields(name)), 1), maxWaterfallDays)
}

// HeuristicStoryPoints returns clamp(1..13, word count of name).
func HeuristicStoryPoints(name string) int {
	return min(max(len(strings.Fields(name)), 1), maxStoryPoints)
}

// EstimateHeuristic fills durations that are not already set. Agile tasks get story points mapped
// at one point per day and capped at the sprint length in working days.
func EstimateHeuristic(tasks []domain.ScheduleTask, methodology domain.Methodology, sprintWeeks int) {
	agile := methodology == domain.MethodologyAgile
	sprintDays := max(sprintWeeks, 1) * daysPerWeek
	for i := range tasks {
		t := &tasks[i]
		if agile {
			if t.StoryPoints <= 0 {
				t.StoryPoints = HeuristicStoryPoints(t.Name)
			}
			if t.Duration <= 0 {
				t.Duration = min(t.StoryPoints, sprintDays)
			}
			continue
		}
		if t.Duration <= 0 {
			t.Duration = HeuristicDuration(t.Name)
		}
	}
}

// Estimate is one model-proposed duration and dependency set.
type Estimate struct {
	ID           string   `json:"id"`
	DurationDays float64  `json:"duration_days"`
	StoryPoints  float64  `json:"story_points"`
	Predecessors []string `json:"predecessors"`
}

// ParseEstimates reads a [{id, duration_days, predecessors}] reply, also accepting {"tasks": [...]}.
func ParseEstimates(raw string) ([]Estimate, error) {
	if arr := llm.ExtractJSONArray(raw); arr != "" {
		var out []Estimate
		if err := json.Unmarshal([]byte(arr), &out); err == nil && len(out) > 0 && out[0].ID != "" {
			return out, nil
		}
	}
	if obj := llm.ExtractJSON(raw); obj != "" {
		var wrapped struct {
			Tasks []Estimate `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(obj), &wrapped); err == nil && len(wrapped.Tasks) > 0 {
			return wrapped.Tasks, nil
		}
	}
	return nil, llm.ErrNoJSON
}

// applyEstimates copies durations and predecessors for matching ids. It returns how many matched.
func applyEstimates(tasks []domain.ScheduleTask, ests []Estimate) int {
	idx := domain.TaskIndex(tasks)
	matched := 0
	for _, e := range ests {
		i, ok := idx[strings.TrimSpace(e.ID)]
		if !ok {
			continue
		}
		matched++
		if d := int(math.Round(e.DurationDays)); d >= 1 {
			tasks[i].Duration = d
		}
		if sp := int(math.Round(e.StoryPoints)); sp >= 1 {
			tasks[i].StoryPoints = min(sp, maxStoryPoints)
		}
		if e.Predecessors != nil {
			preds := make([]string, 0, len(e.Predecessors))
			for _, p := range e.Predecessors {
				if p = strings.TrimSpace(p); p != "" {
					preds = append(preds, p)
				}
			}
			tasks[i].Predecessors = preds
		}
	}
	return matched
}

// estimateLLM asks the model for durations and dependencies, retrying with backoff. Each raw reply
// is dumped for inspection. On success tasks is updated in place.
func (a *Agent) estimateLLM(ctx context.Context, projectID string, methodology domain.Methodology, sprintWeeks int, tasks []domain.ScheduleTask, logger *log.Logger) error {
	if !a.caller.Available() {
		return llm.ErrUnavailable
	}
	input := make([]prompt.EstimationTask, len(tasks))
	for i, t := range tasks {
		input[i] = prompt.EstimationTask{ID: t.ID, Name: t.Name, ParentID: t.ParentID, Level: t.Level}
	}
	msgs := prompt.Estimation(methodology, sprintWeeks, input)

	cfg := a.caller.RetryConfig()
	cfg.MaxAttempts = a.cfg.EstimationAttempts
	return llm.Retry(ctx, cfg, func(ctx context.Context, attempt int) error {
		raw, err := a.caller.Text(ctx, msgs)
		if err != nil {
			if errors.Is(err, llm.ErrUnavailable) {
				return llm.NewFatalError(err)
			}
			return err
		}
		if a.recorder.Enabled() {
			if _, derr := a.recorder.Dump(projectID, attempt, raw); derr != nil {
				logger.Warn("debug dump failed", "err", derr)
			}
		}
		ests, err := ParseEstimates(raw)
		if err != nil {
			return llm.NewTransientError(err)
		}
		trial := domain.CloneTasks(tasks)
		if applyEstimates(trial, ests) == 0 {
			return llm.NewTransientError(errNoEstimates)
		}
		copy(tasks, trial)
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn("estimation attempt failed; retrying", "attempt", attempt, "wait", wait.String(), "err", err)
	})
}

func estimationError(err error) string {
	return fmt.Sprintf("llm estimation failed, using heuristic: %v", err)
}
