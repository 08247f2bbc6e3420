package domain

import (
	"strings"
	"time"
)

// WeeklyReport is a generated status report for one project week.
type WeeklyReport struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	WeekStart    time.Time `json:"week_start"`
	Summary      string    `json:"summary"`
	BodyMarkdown string    `json:"body_markdown"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewWeeklyReport validates and constructs one report.
func NewWeeklyReport(id, projectID string, weekStart time.Time, summary, body string, now time.Time) (WeeklyReport, error) {
	id = strings.TrimSpace(id)
	projectID = strings.TrimSpace(projectID)
	if id == "" || projectID == "" {
		return WeeklyReport{}, ErrInvalidID
	}
	if strings.TrimSpace(body) == "" {
		return WeeklyReport{}, ErrInvalidText
	}
	return WeeklyReport{
		ID:           id,
		ProjectID:    projectID,
		WeekStart:    WeekStart(weekStart),
		Summary:      strings.TrimSpace(summary),
		BodyMarkdown: body,
		CreatedAt:    now.UTC(),
	}, nil
}

// WeekStart returns the Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
