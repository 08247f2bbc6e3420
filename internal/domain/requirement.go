package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// RequirementType classifies one requirement.
type RequirementType string

// RequirementType values.
const (
	RequirementFunctional    RequirementType = "functional"
	RequirementNonFunctional RequirementType = "non-functional"
	RequirementConstraint    RequirementType = "constraint"
)

var validRequirementTypes = []RequirementType{
	RequirementFunctional,
	RequirementNonFunctional,
	RequirementConstraint,
}

// Priority ranks requirements.
type Priority string

// Priority values.
const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

var validPriorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Requirement is one entry of the requirements catalogue.
type Requirement struct {
	ReqID              string          `json:"req_id"`
	Title              string          `json:"title"`
	Type               RequirementType `json:"type"`
	Priority           Priority        `json:"priority"`
	Description        string          `json:"description"`
	SourceSpan         string          `json:"source_span,omitempty"`
	AcceptanceCriteria []string        `json:"acceptance_criteria"`
	Epic               string          `json:"epic,omitempty"`
	Feature            string          `json:"feature,omitempty"`
}

// NormalizeRequirementType maps loose type labels onto the supported set.
func NormalizeRequirementType(raw RequirementType) RequirementType {
	s := strings.ToLower(strings.TrimSpace(string(raw)))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	switch s {
	case "functional", "f", "fr", "feature":
		return RequirementFunctional
	case "non-functional", "nonfunctional", "nfr", "nf", "quality":
		return RequirementNonFunctional
	case "constraint", "constraints", "c":
		return RequirementConstraint
	}
	if slices.Contains(qualityAttributes, s) {
		return RequirementNonFunctional
	}
	return RequirementFunctional
}

// qualityAttributes are type labels that name a quality of the system rather than a behaviour.
var qualityAttributes = []string{
	"performance", "security", "availability", "usability", "reliability", "scalability",
	"maintainability", "portability", "accessibility", "compliance", "privacy", "safety",
	"capacity", "interoperability",
}

// NormalizePriority maps loose priority labels onto High/Medium/Low.
func NormalizePriority(raw Priority) Priority {
	switch strings.ToLower(strings.TrimSpace(string(raw))) {
	case "high", "h", "critical", "must", "p0", "p1":
		return PriorityHigh
	case "low", "l", "could", "nice-to-have", "p3":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Normalize trims fields and canonicalizes type and priority without validating.
func (r Requirement) Normalize() Requirement {
	r.ReqID = strings.TrimSpace(r.ReqID)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.SourceSpan = strings.TrimSpace(r.SourceSpan)
	r.Epic = strings.TrimSpace(r.Epic)
	r.Feature = strings.TrimSpace(r.Feature)
	r.Type = NormalizeRequirementType(r.Type)
	r.Priority = NormalizePriority(r.Priority)
	criteria := make([]string, 0, len(r.AcceptanceCriteria))
	for _, c := range r.AcceptanceCriteria {
		if c = strings.TrimSpace(c); c != "" {
			criteria = append(criteria, c)
		}
	}
	r.AcceptanceCriteria = criteria
	if r.Description == "" {
		r.Description = r.Title
	}
	return r
}

// Validate checks the structural invariants of one requirement.
func (r Requirement) Validate() error {
	if strings.TrimSpace(r.ReqID) == "" {
		return fmt.Errorf("%w: req_id is required", ErrInvalidRequirement)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: %s title is required", ErrInvalidRequirement, r.ReqID)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: %s description is required", ErrInvalidRequirement, r.ReqID)
	}
	if !slices.Contains(validRequirementTypes, r.Type) {
		return fmt.Errorf("%w: %s type %q", ErrInvalidRequirement, r.ReqID, r.Type)
	}
	if !slices.Contains(validPriorities, r.Priority) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRequirement, r.ReqID, ErrInvalidPriority)
	}
	return nil
}

// HasCoreFields reports whether req_id, title, and description are all present.
func (r Requirement) HasCoreFields() bool {
	return strings.TrimSpace(r.ReqID) != "" &&
		strings.TrimSpace(r.Title) != "" &&
		strings.TrimSpace(r.Description) != ""
}

// AssignRequirementIDs fills missing req_ids and renames duplicates in place.
// Generated ids use a timestamp stem so ids from separate runs do not collide.
func AssignRequirementIDs(reqs []Requirement, now time.Time) {
	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		if id := strings.TrimSpace(r.ReqID); id != "" {
			seen[id] = struct{}{}
		}
	}
	stem := "REQ-" + now.UTC().Format("20060102150405")
	counter := 0
	next := func() string {
		for {
			counter++
			id := fmt.Sprintf("%s-%03d", stem, counter)
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				return id
			}
		}
	}

	claimed := make(map[string]struct{}, len(reqs))
	for i := range reqs {
		id := strings.TrimSpace(reqs[i].ReqID)
		if id == "" {
			reqs[i].ReqID = next()
			continue
		}
		if _, dup := claimed[id]; dup {
			reqs[i].ReqID = next()
			continue
		}
		claimed[id] = struct{}{}
		reqs[i].ReqID = id
	}
}

// CloneRequirements deep-copies a requirement slice.
func CloneRequirements(in []Requirement) []Requirement {
	if in == nil {
		return nil
	}
	out := make([]Requirement, len(in))
	for i, r := range in {
		r.AcceptanceCriteria = append([]string(nil), r.AcceptanceCriteria...)
		out[i] = r
	}
	return out
}
