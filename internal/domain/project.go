package domain

import (
	"slices"
	"strings"
	"time"
)

// Methodology selects the delivery model a project is planned with.
type Methodology string

// Methodology values.
const (
	MethodologyWaterfall Methodology = "waterfall"
	MethodologyAgile     Methodology = "agile"
)

var validMethodologies = []Methodology{MethodologyWaterfall, MethodologyAgile}

// NormalizeMethodology lowercases and trims one methodology value, defaulting to waterfall when empty.
func NormalizeMethodology(m Methodology) Methodology {
	m = Methodology(strings.ToLower(strings.TrimSpace(string(m))))
	if m == "" {
		return MethodologyWaterfall
	}
	return m
}

// IsValidMethodology reports whether m is a supported methodology.
func IsValidMethodology(m Methodology) bool {
	return slices.Contains(validMethodologies, m)
}

// Project represents project data used by this package.
type Project struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Methodology Methodology     `json:"methodology"`
	Metadata    ProjectMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ArchivedAt  *time.Time      `json:"archived_at,omitempty"`
}

// ProjectMetadata represents project metadata data used by this package.
type ProjectMetadata struct {
	Owner    string   `json:"owner,omitempty"`
	Client   string   `json:"client,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// NewProject constructs a new value for this package.
func NewProject(id, name, description string, methodology Methodology, now time.Time) (Project, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Project{}, ErrInvalidID
	}
	if name == "" {
		return Project{}, ErrInvalidName
	}
	methodology = NormalizeMethodology(methodology)
	if !IsValidMethodology(methodology) {
		return Project{}, ErrInvalidMethodology
	}

	return Project{
		ID:          id,
		Slug:        normalizeSlug(name),
		Name:        name,
		Description: strings.TrimSpace(description),
		Methodology: methodology,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// UpdateDetails updates the descriptive fields. Methodology is fixed at creation.
func (p *Project) UpdateDetails(name, description string, metadata ProjectMetadata, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	p.Name = name
	p.Slug = normalizeSlug(name)
	p.Description = strings.TrimSpace(description)
	p.Metadata = normalizeProjectMetadata(metadata)
	p.UpdatedAt = now.UTC()
	return nil
}

// Archive archives the requested operation.
func (p *Project) Archive(now time.Time) {
	ts := now.UTC()
	p.ArchivedAt = &ts
	p.UpdatedAt = ts
}

// Restore restores the requested operation.
func (p *Project) Restore(now time.Time) {
	p.ArchivedAt = nil
	p.UpdatedAt = now.UTC()
}

// normalizeSlug normalizes slug.
func normalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	prevDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
			prevDash = false
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// normalizeProjectMetadata normalizes project metadata.
func normalizeProjectMetadata(meta ProjectMetadata) ProjectMetadata {
	meta.Owner = strings.TrimSpace(meta.Owner)
	meta.Client = strings.TrimSpace(meta.Client)
	meta.Currency = strings.ToUpper(strings.TrimSpace(meta.Currency))
	meta.Tags = normalizeLabels(meta.Tags)
	return meta
}

func normalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := map[string]struct{}{}
	for _, raw := range labels {
		label := strings.ToLower(strings.TrimSpace(raw))
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	slices.Sort(out)
	return out
}
