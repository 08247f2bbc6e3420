package scope

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
)

// shortReplyRunes is the reply length under which confidence is capped.
const shortReplyRunes = 120

// shortReplyCap bounds the confidence of a short raw reply.
const shortReplyCap = 0.45

// Catalogue is one parsed model reply.
type Catalogue struct {
	Requirements []domain.Requirement
	// Confidence is the reply's self-reported confidence, if present.
	Confidence *float64
	// HasList reports whether the reply carried a requirements or epics list at all.
	HasList bool
	// Complete counts requirements that arrived with req_id, title, and description.
	Complete int
	// JSON is the extracted object text.
	JSON string
}

type criteria []string

func (c *criteria) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one = strings.TrimSpace(one); one != "" {
			*c = []string{one}
		}
		return nil
	}
	var objs []map[string]any
	if err := json.Unmarshal(data, &objs); err != nil {
		return fmt.Errorf("acceptance_criteria: %w", err)
	}
	for _, o := range objs {
		for _, key := range []string{"criterion", "text", "description"} {
			if s, ok := o[key].(string); ok && strings.TrimSpace(s) != "" {
				*c = append(*c, s)
				break
			}
		}
	}
	return nil
}

type rawRequirement struct {
	ReqID              string   `json:"req_id"`
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	Priority           string   `json:"priority"`
	Description        string   `json:"description"`
	SourceSpan         string   `json:"source_span"`
	AcceptanceCriteria criteria `json:"acceptance_criteria"`
}

type rawFeature struct {
	Title        string           `json:"title"`
	Name         string           `json:"name"`
	Requirements []rawRequirement `json:"requirements"`
}

type rawEpic struct {
	Title        string           `json:"title"`
	Name         string           `json:"name"`
	Features     []rawFeature     `json:"features"`
	Requirements []rawRequirement `json:"requirements"`
}

type rawCatalogue struct {
	Confidence   *float64         `json:"confidence"`
	Requirements []rawRequirement `json:"requirements"`
	Epics        []rawEpic        `json:"epics"`
}

// ParseCatalogue extracts the first JSON object (or a bare requirements array) from a reply.
// Epics and features are flattened onto their requirements.
func ParseCatalogue(raw string) (Catalogue, error) {
	var (
		found bool
		out   Catalogue
	)
	if obj := llm.ExtractJSON(raw); obj != "" {
		var rc rawCatalogue
		if err := json.Unmarshal([]byte(obj), &rc); err == nil {
			out, found = rc.flatten(obj), true
			if out.HasList {
				return out, nil
			}
		}
	}
	// A bare array's first element also parses as an object without a list.
	if arr := llm.ExtractJSONArray(raw); arr != "" {
		var reqs []rawRequirement
		if err := json.Unmarshal([]byte(arr), &reqs); err == nil {
			if reqs == nil {
				reqs = []rawRequirement{}
			}
			return rawCatalogue{Requirements: reqs}.flatten(arr), nil
		}
	}
	if found {
		return out, nil
	}
	return Catalogue{}, llm.ErrNoJSON
}

func (rc rawCatalogue) flatten(text string) Catalogue {
	out := Catalogue{
		Confidence: rc.Confidence,
		HasList:    rc.Requirements != nil || rc.Epics != nil,
		JSON:       text,
	}
	add := func(r rawRequirement, epic, feature string) {
		id := firstNonEmpty(r.ReqID, r.ID)
		title := firstNonEmpty(r.Title, r.Name)
		if id != "" && title != "" && strings.TrimSpace(r.Description) != "" {
			out.Complete++
		}
		out.Requirements = append(out.Requirements, domain.Requirement{
			ReqID:              id,
			Title:              title,
			Type:               domain.RequirementType(r.Type),
			Priority:           domain.Priority(r.Priority),
			Description:        r.Description,
			SourceSpan:         r.SourceSpan,
			AcceptanceCriteria: []string(r.AcceptanceCriteria),
			Epic:               epic,
			Feature:            feature,
		}.Normalize())
	}
	for _, r := range rc.Requirements {
		add(r, "", "")
	}
	for _, e := range rc.Epics {
		epic := firstNonEmpty(e.Title, e.Name)
		for _, r := range e.Requirements {
			add(r, epic, "")
		}
		for _, f := range e.Features {
			feature := firstNonEmpty(f.Title, f.Name)
			for _, r := range f.Requirements {
				add(r, epic, feature)
			}
		}
	}
	return out
}

// Usable reports whether the catalogue holds at least one titled requirement.
func (c Catalogue) Usable() bool {
	for _, r := range c.Requirements {
		if r.Title != "" {
			return true
		}
	}
	return false
}

// Confidence scores a reply in [0, 1]. A self-reported confidence is clamped and used as-is;
// otherwise a requirements list earns 0.5 plus 0.5 x the fraction of complete requirements.
// Replies shorter than 120 runes never exceed 0.45.
func Confidence(raw string, c Catalogue) float64 {
	var score float64
	switch {
	case c.Confidence != nil:
		score = clamp01(*c.Confidence)
	case c.HasList:
		score = 0.5
		if n := len(c.Requirements); n > 0 {
			score += 0.5 * float64(c.Complete) / float64(n)
		}
	}
	if len([]rune(strings.TrimSpace(raw))) < shortReplyRunes {
		score = math.Min(score, shortReplyCap)
	}
	return math.Round(score*1000) / 1000
}

// Defects lists what a refinement prompt should ask the model to fix.
func Defects(c Catalogue, parsed bool, confidence, threshold float64) []string {
	if !parsed {
		return []string{"No JSON object was found. Return only the JSON catalogue, with no prose."}
	}
	var out []string
	if !c.HasList {
		out = append(out, `The reply has no "requirements" list.`)
	} else if len(c.Requirements) == 0 {
		out = append(out, "The requirements list is empty; extract every requirement in the text.")
	}
	missing := 0
	for i, r := range c.Requirements {
		var fields []string
		if r.ReqID == "" {
			fields = append(fields, "req_id")
		}
		if r.Title == "" {
			fields = append(fields, "title")
		}
		if len(r.AcceptanceCriteria) == 0 {
			fields = append(fields, "acceptance_criteria")
		}
		if len(fields) == 0 {
			continue
		}
		missing++
		if missing <= 10 {
			out = append(out, fmt.Sprintf("Requirement %d is missing %s.", i+1, strings.Join(fields, ", ")))
		}
	}
	if missing > 10 {
		out = append(out, fmt.Sprintf("%d more requirements are missing fields.", missing-10))
	}
	if confidence < threshold {
		out = append(out, fmt.Sprintf("Structural confidence %.2f is below the %.2f acceptance threshold.", confidence, threshold))
	}
	return out
}

func marshalCatalogue(reqs []domain.Requirement) string {
	data, err := json.MarshalIndent(map[string]any{"requirements": reqs}, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
