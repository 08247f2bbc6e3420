package planner

import (
	"time"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
)

// Manifest is the consolidated proposal written to <data>/<project_id>/proposal_manifest.json.
type Manifest struct {
	ProjectID   string                  `json:"project_id"`
	GeneratedAt string                  `json:"generated_at"`
	Scope       ScopeSection            `json:"scope"`
	Cost        agent.CostOutput        `json:"cost"`
	Schedule    ScheduleSection         `json:"schedule"`
	Risk        *agent.RiskOutput       `json:"risk,omitempty"`
	Integrator  *agent.IntegratorOutput `json:"integrator,omitempty"`
	Steps       []StepReport            `json:"steps"`

	// Path and Result are filled for callers; they are not serialized.
	Path   string       `json:"-"`
	Result agent.Result `json:"-"`
}

// ScopeSection embeds the final requirements and WBS.
type ScopeSection struct {
	Requirements []domain.Requirement `json:"requirements"`
	WBS          domain.WBS           `json:"wbs"`
	Paths        ScopePaths           `json:"paths"`
}

// ScopePaths lists the scope artifact files.
type ScopePaths struct {
	SRS string `json:"srs"`
	WBS string `json:"wbs"`
	RTM string `json:"rtm"`
}

// ScheduleSection carries the critical path ids, the schedule artifact files, and the
// change-request log.
type ScheduleSection struct {
	PlanCSV          string                  `json:"plan_csv"`
	GanttJSON        string                  `json:"gantt_json"`
	CriticalPath     []string                `json:"critical_path"`
	CriticalPathJSON string                  `json:"critical_path_json"`
	Timeline         string                  `json:"timeline"`
	BurndownJSON     string                  `json:"burndown_json,omitempty"`
	ChangeRequests   []domain.ChangeLogEntry `json:"change_requests,omitempty"`
}

// assemble builds the manifest from completed steps in plan order.
func (p *Planner) assemble(projectID string, plan Plan, run *runState) (*Manifest, error) {
	var merged agent.Result
	steps := make([]StepReport, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, run.reports[s.ID])
		if r, ok := run.results[s.ID]; ok {
			merged.Merge(r)
		}
	}
	for _, id := range []string{agent.StepScope, agent.StepCost, agent.StepSchedule} {
		if missingSection(id, merged) {
			return nil, &StepError{StepID: id, Err: agent.ErrMissingInput}
		}
	}

	sc, sch := merged.Scope, merged.Schedule
	return &Manifest{
		ProjectID:   projectID,
		GeneratedAt: p.now().UTC().Format(time.RFC3339),
		Scope: ScopeSection{
			Requirements: sc.Requirements,
			WBS:          sc.WBS,
			Paths:        ScopePaths{SRS: sc.SRSPath, WBS: sc.WBSPath, RTM: sc.RTMPath},
		},
		Cost: *merged.Cost,
		Schedule: ScheduleSection{
			PlanCSV:          sch.PlanCSV,
			GanttJSON:        sch.GanttJSON,
			CriticalPath:     criticalIDs(sch.CriticalPath),
			CriticalPathJSON: sch.CriticalPathJSON,
			Timeline:         sch.TimelineJSON,
			BurndownJSON:     sch.BurndownJSON,
			ChangeRequests:   sch.ChangeRequests,
		},
		Risk:       merged.Risk,
		Integrator: merged.Integrator,
		Steps:      steps,
		Result:     merged,
	}, nil
}

func criticalIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
