package schedule

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/artifact"
	"github.com/evanschultz/pmforge/internal/cpm"
	"github.com/evanschultz/pmforge/internal/domain"
)

// Schedule artifact file names.
const (
	PlanFileName         = "plan.csv"
	GanttFileName        = "gantt.json"
	TimelineFileName     = "timeline.json"
	CriticalPathFileName = "critical_path.json"
	BurndownFileName     = "burndown.json"
)

// PlanHeader is the plan.csv header row.
var PlanHeader = []string{
	"id", "name", "parent_id", "level", "duration", "predecessors",
	"es", "ef", "ls", "lf", "float", "critical", "planned_start", "planned_end",
}

// GanttTask is one bar of gantt.json.
type GanttTask struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ParentID     string   `json:"parent_id,omitempty"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Duration     int      `json:"duration"`
	Progress     int      `json:"progress"`
	Dependencies []string `json:"dependencies"`
	Critical     bool     `json:"critical"`
}

// Gantt is the gantt.json document.
type Gantt struct {
	ProjectID     string      `json:"project_id"`
	StartDate     string      `json:"start_date"`
	FinishDate    string      `json:"finish_date"`
	ProjectFinish int         `json:"project_finish"`
	Tasks         []GanttTask `json:"tasks"`
}

// TimelineEntry is one phase or milestone of timeline.json.
type TimelineEntry struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
	Kind  string `json:"kind"`
}

// Timeline is the timeline.json document.
type Timeline struct {
	ProjectID  string          `json:"project_id"`
	StartDate  string          `json:"start_date"`
	FinishDate string          `json:"finish_date"`
	Entries    []TimelineEntry `json:"entries"`
}

// CriticalPathDoc is the critical_path.json document.
type CriticalPathDoc struct {
	ProjectID     string                `json:"project_id"`
	ProjectFinish int                   `json:"project_finish"`
	CriticalPath  []string              `json:"critical_path"`
	CriticalTasks []string              `json:"critical_tasks"`
	Tasks         []domain.ScheduleTask `json:"tasks"`
}

// BurndownDoc is the burndown.json document.
type BurndownDoc struct {
	ProjectID         string                 `json:"project_id"`
	SprintLengthWeeks int                    `json:"sprint_length_weeks"`
	Sprints           []domain.Sprint        `json:"sprints"`
	Points            []domain.BurndownPoint `json:"points"`
}

// PlanRows renders tasks as plan.csv rows.
func PlanRows(tasks []domain.ScheduleTask) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID, t.Name, t.ParentID, strconv.Itoa(t.Level), strconv.Itoa(t.Duration),
			strings.Join(t.Predecessors, ";"),
			strconv.Itoa(t.ES), strconv.Itoa(t.EF), strconv.Itoa(t.LS), strconv.Itoa(t.LF),
			strconv.Itoa(t.Float), strconv.FormatBool(t.Critical), t.PlannedStart, t.PlannedEnd,
		})
	}
	return rows
}

func ganttDoc(out *agent.ScheduleOutput) Gantt {
	g := Gantt{ProjectID: out.ProjectID, StartDate: out.StartDate, FinishDate: out.FinishDate, ProjectFinish: out.ProjectFinish}
	g.Tasks = make([]GanttTask, 0, len(out.Tasks))
	for _, t := range out.Tasks {
		g.Tasks = append(g.Tasks, GanttTask{
			ID: t.ID, Name: t.Name, ParentID: t.ParentID,
			Start: t.PlannedStart, End: t.PlannedEnd, Duration: t.Duration,
			Dependencies: append([]string{}, t.Predecessors...), Critical: t.Critical,
		})
	}
	return g
}

func timelineDoc(out *agent.ScheduleOutput) Timeline {
	tl := Timeline{ProjectID: out.ProjectID, StartDate: out.StartDate, FinishDate: out.FinishDate}
	tl.Entries = append(tl.Entries, TimelineEntry{Name: "Project start", Start: out.StartDate, Kind: "milestone"})
	for _, t := range out.Tasks {
		if t.Level > 1 {
			continue
		}
		tl.Entries = append(tl.Entries, TimelineEntry{ID: t.ID, Name: t.Name, Start: phaseStart(out.Tasks, t), End: phaseEnd(out.Tasks, t), Kind: "phase"})
	}
	tl.Entries = append(tl.Entries, TimelineEntry{Name: "Project finish", Start: out.FinishDate, Kind: "milestone"})
	return tl
}

// phaseStart and phaseEnd span a top-level task together with all of its descendants.
func phaseStart(tasks []domain.ScheduleTask, root domain.ScheduleTask) string {
	start := root.PlannedStart
	for _, t := range descendants(tasks, root.ID) {
		if t.PlannedStart < start {
			start = t.PlannedStart
		}
	}
	return start
}

func phaseEnd(tasks []domain.ScheduleTask, root domain.ScheduleTask) string {
	end := root.PlannedEnd
	for _, t := range descendants(tasks, root.ID) {
		if t.PlannedEnd > end {
			end = t.PlannedEnd
		}
	}
	return end
}

func descendants(tasks []domain.ScheduleTask, id string) []domain.ScheduleTask {
	var out []domain.ScheduleTask
	prefix := id + "."
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, prefix) || t.ParentID == id {
			out = append(out, t)
		}
	}
	return out
}

// writeArtifacts writes every schedule artifact into dir and records the paths on out.
func writeArtifacts(dir string, out *agent.ScheduleOutput) error {
	out.PlanCSV = filepath.Join(dir, PlanFileName)
	out.GanttJSON = filepath.Join(dir, GanttFileName)
	out.TimelineJSON = filepath.Join(dir, TimelineFileName)
	out.CriticalPathJSON = filepath.Join(dir, CriticalPathFileName)

	if err := artifact.WriteCSV(out.PlanCSV, PlanHeader, PlanRows(out.Tasks)); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	if err := artifact.WriteJSON(out.GanttJSON, ganttDoc(out)); err != nil {
		return fmt.Errorf("write gantt: %w", err)
	}
	if err := artifact.WriteJSON(out.TimelineJSON, timelineDoc(out)); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	crit := CriticalPathDoc{
		ProjectID:     out.ProjectID,
		ProjectFinish: out.ProjectFinish,
		CriticalPath:  out.CriticalPath,
		CriticalTasks: cpm.SortedCritical(out.Tasks),
		Tasks:         criticalTasks(out.Tasks),
	}
	if err := artifact.WriteJSON(out.CriticalPathJSON, crit); err != nil {
		return fmt.Errorf("write critical path: %w", err)
	}
	out.BurndownJSON = ""
	if out.Methodology == domain.MethodologyAgile {
		out.BurndownJSON = filepath.Join(dir, BurndownFileName)
		doc := BurndownDoc{
			ProjectID:         out.ProjectID,
			SprintLengthWeeks: out.SprintLengthWeeks,
			Sprints:           out.Sprints,
			Points:            out.Burndown,
		}
		if err := artifact.WriteJSON(out.BurndownJSON, doc); err != nil {
			return fmt.Errorf("write burndown: %w", err)
		}
	}
	return nil
}

func criticalTasks(tasks []domain.ScheduleTask) []domain.ScheduleTask {
	out := []domain.ScheduleTask{}
	for _, t := range tasks {
		if t.Critical {
			out = append(out, t)
		}
	}
	return out
}
