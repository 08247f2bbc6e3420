package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/prompt"
)

// WeeklyReportInput holds input values for report generation.
type WeeklyReportInput struct {
	ProjectID string
	// WeekOf is any instant in the reported week; zero means the current week.
	WeekOf time.Time
}

// WeeklyReport builds, summarizes, and stores the status report for one week. The body is
// deterministic; the summary comes from the model when one is configured.
func (s *Service) WeeklyReport(ctx context.Context, in WeeklyReportInput) (domain.WeeklyReport, error) {
	project, err := s.repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	weekOf := in.WeekOf
	if weekOf.IsZero() {
		weekOf = s.clock()
	}
	week := domain.WeekStart(weekOf)
	logger := s.logger.With("project_id", project.ID, "week", week.Format(time.DateOnly))

	items, err := s.repo.ListActionItems(ctx, project.ID)
	if err != nil {
		return domain.WeeklyReport{}, fmt.Errorf("list action items: %w", err)
	}
	risks, err := s.repo.ListRisks(ctx, project.ID)
	if err != nil {
		return domain.WeeklyReport{}, fmt.Errorf("list risks: %w", err)
	}
	var sched *agent.ScheduleOutput
	if out, err := s.LatestSchedule(ctx, project.ID); err == nil {
		sched = &out
	} else if !errors.Is(err, ErrNoSchedule) {
		return domain.WeeklyReport{}, err
	}

	facts := collectFacts(week, items, risks, sched)
	body := renderWeeklyBody(project, week, facts)
	summary := facts.summary()
	if s.caller.Available() {
		text, _, err := s.caller.TextWithRetry(ctx, prompt.WeeklySummary(project.Name, body))
		switch {
		case err != nil:
			logger.Warn("weekly summary fell back to template", "err", err)
		case strings.TrimSpace(text) != "":
			summary = strings.TrimSpace(text)
		}
	}

	report, err := domain.NewWeeklyReport(s.idGen(), project.ID, week, summary, body, s.clock())
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	s.warnOnError(logger, "weekly report", s.repo.CreateWeeklyReport(ctx, report))
	logger.Info("weekly report built", "open", len(facts.open), "completed", len(facts.completed), "risks", len(facts.risks))
	return report, nil
}

// ListWeeklyReports lists stored reports of a project.
func (s *Service) ListWeeklyReports(ctx context.Context, projectID string) ([]domain.WeeklyReport, error) {
	return s.repo.ListWeeklyReports(ctx, projectID)
}

type weeklyFacts struct {
	open        []domain.ActionItem
	dueThisWeek int
	completed   []domain.ActionItem
	risks       []domain.Risk
	schedule    *agent.ScheduleOutput
}

func collectFacts(week time.Time, items []domain.ActionItem, risks []domain.Risk, sched *agent.ScheduleOutput) weeklyFacts {
	end := week.AddDate(0, 0, 7)
	f := weeklyFacts{risks: risks, schedule: sched}
	for _, item := range items {
		switch {
		case item.IsOpen():
			f.open = append(f.open, item)
			if item.DueAt != nil && item.DueAt.Before(end) {
				f.dueThisWeek++
			}
		case !item.UpdatedAt.Before(week) && item.UpdatedAt.Before(end):
			f.completed = append(f.completed, item)
		}
	}
	return f
}

func (f weeklyFacts) summary() string {
	out := fmt.Sprintf("%d open action item(s), %d due by the end of the week; %d completed this week; %d risk(s) on the register.",
		len(f.open), f.dueThisWeek, len(f.completed), len(f.risks))
	if f.schedule != nil {
		out += fmt.Sprintf(" The schedule finishes on day %d", f.schedule.ProjectFinish)
		if f.schedule.FinishDate != "" {
			out += " (" + f.schedule.FinishDate + ")"
		}
		out += "."
	}
	return out
}

// renderWeeklyBody renders the markdown body of a weekly report.
func renderWeeklyBody(project domain.Project, week time.Time, f weeklyFacts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Weekly status: %s\n\n", project.Name)
	fmt.Fprintf(&b, "Week of %s\n\n", week.Format(time.DateOnly))

	b.WriteString("## Schedule\n\n")
	if f.schedule == nil {
		b.WriteString("- No schedule has been generated yet.\n")
	} else {
		fmt.Fprintf(&b, "- Methodology: %s\n", f.schedule.Methodology)
		fmt.Fprintf(&b, "- Finish: day %d", f.schedule.ProjectFinish)
		if f.schedule.FinishDate != "" {
			fmt.Fprintf(&b, " (%s)", f.schedule.FinishDate)
		}
		b.WriteString("\n")
		if len(f.schedule.CriticalPath) > 0 {
			fmt.Fprintf(&b, "- Critical path: %s\n", strings.Join(f.schedule.CriticalPath, " -> "))
		}
		if f.schedule.Revised {
			fmt.Fprintf(&b, "- Revised from a baseline of %d day(s)\n", f.schedule.BaselineFinish)
		}
	}

	fmt.Fprintf(&b, "\n## Open action items (%d)\n\n", len(f.open))
	if len(f.open) == 0 {
		b.WriteString("- None.\n")
	}
	for _, item := range f.open {
		b.WriteString("- " + itemLine(item) + "\n")
	}

	fmt.Fprintf(&b, "\n## Completed this week (%d)\n\n", len(f.completed))
	if len(f.completed) == 0 {
		b.WriteString("- None.\n")
	}
	for _, item := range f.completed {
		b.WriteString("- " + itemLine(item) + "\n")
	}

	fmt.Fprintf(&b, "\n## Risks (%d)\n\n", len(f.risks))
	if len(f.risks) == 0 {
		b.WriteString("- None recorded.\n")
	}
	for _, r := range f.risks {
		fmt.Fprintf(&b, "- [%s] %s (%s, score %d)\n", r.ID, r.Title, r.Category, r.Score)
	}
	return b.String()
}

func itemLine(item domain.ActionItem) string {
	var extra []string
	if item.Owner != "" {
		extra = append(extra, "@"+item.Owner)
	}
	if item.DueAt != nil {
		extra = append(extra, "due "+item.DueAt.Format(time.DateOnly))
	}
	if len(extra) == 0 {
		return item.Task
	}
	return item.Task + " (" + strings.Join(extra, ", ") + ")"
}
