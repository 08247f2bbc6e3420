package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/planner"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	criticalStyle = cellStyle.Foreground(lipgloss.Color("203")).Bold(true)
	skippedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// renderSteps prints one line per pipeline step.
func renderSteps(w io.Writer, steps []planner.StepReport) {
	for _, step := range steps {
		status := step.Status
		switch step.Status {
		case planner.StatusSkipped:
			status = skippedStyle.Render(status)
		case planner.StatusFailed:
			status = failedStyle.Render(status)
		}
		line := fmt.Sprintf("  %-10s %s", step.ID, status)
		if step.Reason != "" {
			line += " (" + step.Reason + ")"
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// renderSchedule prints the CPM table with critical tasks highlighted.
func renderSchedule(w io.Writer, sched agent.ScheduleOutput) {
	if len(sched.Tasks) == 0 {
		_, _ = fmt.Fprintln(w, "no scheduled tasks")
		return
	}
	rows := make([][]string, 0, len(sched.Tasks))
	for _, t := range sched.Tasks {
		critical := ""
		if t.Critical {
			critical = "*"
		}
		rows = append(rows, []string{
			t.ID, t.Name, strconv.Itoa(t.Duration),
			strconv.Itoa(t.ES), strconv.Itoa(t.EF), strconv.Itoa(t.LS), strconv.Itoa(t.LF),
			strconv.Itoa(t.Float), critical,
		})
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TASK", "DUR", "ES", "EF", "LS", "LF", "FLOAT", "CP").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(sched.Tasks) && sched.Tasks[row].Critical {
				return criticalStyle
			}
			return cellStyle
		})
	_, _ = fmt.Fprintln(w, tbl.Render())

	summary := fmt.Sprintf("finish: day %d", sched.ProjectFinish)
	if sched.FinishDate != "" {
		summary += " (" + sched.FinishDate + ")"
	}
	_, _ = fmt.Fprintln(w, summary)
	if len(sched.CriticalPath) > 0 {
		_, _ = fmt.Fprintf(w, "critical path: %s\n", strings.Join(sched.CriticalPath, " -> "))
	}
	if sched.Degraded {
		_, _ = fmt.Fprintln(w, skippedStyle.Render("schedule computed without critical path analysis"))
	}
	for _, warning := range sched.Warnings {
		_, _ = fmt.Fprintln(w, skippedStyle.Render("warning: "+warning))
	}
}

// renderMarkdown renders body for the terminal. style "raw" prints it unchanged and "auto" picks
// a style from the terminal background.
func renderMarkdown(body, style string, width int) (string, error) {
	if style == "raw" {
		return body, nil
	}
	styleOpt := glamour.WithStandardStyle(style)
	if style == "" || style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("configure markdown renderer: %w", err)
	}
	return r.Render(body)
}
