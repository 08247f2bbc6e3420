package ingest

import (
	"regexp"
	"strings"
	"time"
)

var (
	actionPrefixRe = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:\[\s\]\s*|action(?:\s+item)?\s*[:\-]\s*|todo\s*[:\-]\s*|ai\s*:\s*)`)
	ownerRe        = regexp.MustCompile(`@([A-Za-z0-9_.\-]+)`)
	ownerPhraseRe  = regexp.MustCompile(`(?i)\(\s*owner\s*:\s*([^)]+)\)`)
	dueRe          = regexp.MustCompile(`(?i)\bdue\s*[:=]?\s*(\d{4}-\d{2}-\d{2})\b`)
)

// ActionCandidate is an action item parsed from free text.
type ActionCandidate struct {
	Task  string     `json:"task"`
	Owner string     `json:"owner,omitempty"`
	DueAt *time.Time `json:"due_at,omitempty"`
	Line  int        `json:"line"`
}

// ExtractActionItems scans notes for lines marked "ACTION:", "TODO:", "AI:", or "- [ ]".
// "@name" or "(owner: name)" sets the owner; "due:YYYY-MM-DD" sets the due date.
func ExtractActionItems(text string) []ActionCandidate {
	var out []ActionCandidate
	for i, line := range strings.Split(text, "\n") {
		if !actionPrefixRe.MatchString(line) {
			continue
		}
		body := actionPrefixRe.ReplaceAllString(line, "")
		cand := ActionCandidate{Line: i + 1}

		if m := ownerPhraseRe.FindStringSubmatch(body); len(m) > 1 {
			cand.Owner = strings.TrimSpace(m[1])
			body = ownerPhraseRe.ReplaceAllString(body, "")
		} else if m := ownerRe.FindStringSubmatch(body); len(m) > 1 {
			cand.Owner = m[1]
			body = ownerRe.ReplaceAllString(body, "")
		}
		if m := dueRe.FindStringSubmatch(body); len(m) > 1 {
			if due, err := time.Parse(time.DateOnly, m[1]); err == nil {
				due = due.UTC()
				cand.DueAt = &due
			}
			body = dueRe.ReplaceAllString(body, "")
		}
		cand.Task = strings.Join(strings.Fields(strings.Trim(body, " \t-;,.")), " ")
		cand.Task = strings.TrimPrefix(cand.Task, "to ")
		if cand.Task == "" {
			continue
		}
		out = append(out, cand)
	}
	return out
}
