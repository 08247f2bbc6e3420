package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/pmforge/internal/domain"
)

// DateLayout is the calendar date format used in artifacts.
const DateLayout = time.DateOnly

// Calendar projects day offsets onto dates. By default every calendar day counts; with
// SkipWeekends or Holidays only working days do.
type Calendar struct {
	Start        time.Time
	SkipWeekends bool
	holidays     map[string]struct{}
}

// NewCalendar parses an ISO start date. An empty start uses the date of now.
func NewCalendar(start string, skipWeekends bool, holidays []string, now time.Time) (Calendar, error) {
	c := Calendar{SkipWeekends: skipWeekends, holidays: map[string]struct{}{}}
	start = strings.TrimSpace(start)
	if start == "" {
		y, m, d := now.UTC().Date()
		c.Start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else {
		t, err := time.Parse(DateLayout, start)
		if err != nil {
			return Calendar{}, fmt.Errorf("start_date %q: %w", start, err)
		}
		c.Start = t.UTC()
	}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		t, err := time.Parse(DateLayout, h)
		if err != nil {
			return Calendar{}, fmt.Errorf("holiday %q: %w", h, err)
		}
		c.holidays[t.Format(DateLayout)] = struct{}{}
	}
	return c, nil
}

// raw reports whether every calendar day counts.
func (c Calendar) raw() bool {
	return !c.SkipWeekends && len(c.holidays) == 0
}

func (c Calendar) isWorkday(t time.Time) bool {
	if c.SkipWeekends && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday) {
		return false
	}
	_, holiday := c.holidays[t.Format(DateLayout)]
	return !holiday
}

// At returns the date that is offset days after Start.
func (c Calendar) At(offset int) time.Time {
	if c.raw() {
		return c.Start.AddDate(0, 0, offset)
	}
	day := c.Start
	for !c.isWorkday(day) {
		day = day.AddDate(0, 0, 1)
	}
	for n := 0; n < offset; {
		day = day.AddDate(0, 0, 1)
		if c.isWorkday(day) {
			n++
		}
	}
	return day
}

// Date renders At(offset) as an ISO date.
func (c Calendar) Date(offset int) string {
	return c.At(offset).Format(DateLayout)
}

// Project sets planned start (Start + ES) and planned end (start + duration) on every task.
func (c Calendar) Project(tasks []domain.ScheduleTask) {
	for i := range tasks {
		tasks[i].PlannedStart = c.Date(tasks[i].ES)
		tasks[i].PlannedEnd = c.Date(tasks[i].EF)
	}
}
