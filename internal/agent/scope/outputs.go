package scope

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanschultz/pmforge/internal/artifact"
	"github.com/evanschultz/pmforge/internal/domain"
)

// Scope artifact file names.
const (
	WBSFileName = "wbs_structure.json"
	RTMFileName = "rtm.csv"
)

// RTMHeader is the traceability matrix header row.
var RTMHeader = []string{"req_id", "title", "wbs_id", "test_case", "verification_status"}

var (
	waterfallPhases = []string{"Planning & Design", "Build", "Test & Release"}
	agilePhases     = []string{"Iteration 1", "Iteration 2", "Iteration 3"}
)

// SRSFileName returns <project_id>_SRS.md.
func SRSFileName(projectID string) string {
	return projectID + "_SRS.md"
}

// DraftWBS distributes requirements round-robin over three phases, each requirement becoming a leaf
// task named after its title. With depth 1 the requirements are attached to the phases directly.
func DraftWBS(projectID string, methodology domain.Methodology, reqs []domain.Requirement, depth int) domain.WBS {
	names := waterfallPhases
	if domain.NormalizeMethodology(methodology) == domain.MethodologyAgile {
		names = agilePhases
	}
	phases := make([]domain.WBSNode, len(names))
	for i, name := range names {
		phases[i] = domain.WBSNode{Name: name}
	}
	for i, r := range reqs {
		phase := &phases[i%len(phases)]
		if depth <= 1 {
			phase.ReqIDs = append(phase.ReqIDs, r.ReqID)
			continue
		}
		phase.Children = append(phase.Children, domain.WBSNode{
			Name:   r.Title,
			ReqIDs: []string{r.ReqID},
		})
	}
	w := domain.WBS{ProjectID: projectID, Methodology: domain.NormalizeMethodology(methodology), Nodes: phases}
	w.Renumber()
	return w
}

// TraceRows maps each requirement to the WBS node that carries it. Test case and status start empty.
func TraceRows(reqs []domain.Requirement, w domain.WBS) [][]string {
	owner := map[string]string{}
	for _, n := range w.Flatten() {
		for _, id := range n.ReqIDs {
			if _, ok := owner[id]; !ok {
				owner[id] = n.ID
			}
		}
	}
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, []string{r.ReqID, r.Title, owner[r.ReqID], "", ""})
	}
	return rows
}

// RenderSRS renders a human-readable requirements specification grouped by type.
func RenderSRS(projectID string, reqs []domain.Requirement, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Software Requirements Specification: %s\n\n", projectID)
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Requirements: %d\n", len(reqs))

	sections := []struct {
		title string
		kind  domain.RequirementType
	}{
		{"Functional Requirements", domain.RequirementFunctional},
		{"Non-Functional Requirements", domain.RequirementNonFunctional},
		{"Constraints", domain.RequirementConstraint},
	}
	for i, sec := range sections {
		fmt.Fprintf(&b, "\n## %d. %s\n", i+1, sec.title)
		count := 0
		for _, r := range reqs {
			if r.Type != sec.kind {
				continue
			}
			count++
			fmt.Fprintf(&b, "\n### %s %s\n\n", r.ReqID, r.Title)
			fmt.Fprintf(&b, "- Priority: %s\n", r.Priority)
			if r.Epic != "" {
				fmt.Fprintf(&b, "- Epic: %s\n", r.Epic)
			}
			if r.Feature != "" {
				fmt.Fprintf(&b, "- Feature: %s\n", r.Feature)
			}
			fmt.Fprintf(&b, "- Description: %s\n", r.Description)
			if r.SourceSpan != "" {
				fmt.Fprintf(&b, "- Source: \"%s\"\n", r.SourceSpan)
			}
			if len(r.AcceptanceCriteria) > 0 {
				b.WriteString("- Acceptance criteria:\n")
				for j, c := range r.AcceptanceCriteria {
					fmt.Fprintf(&b, "  %d. %s\n", j+1, c)
				}
			}
		}
		if count == 0 {
			b.WriteString("\n_None._\n")
		}
	}
	return b.String()
}

// Paths holds the written scope artifact locations.
type Paths struct {
	WBS string
	RTM string
	SRS string
}

// WriteOutputs writes the SRS, RTM, and WBS draft under layout.ScopeDir(projectID).
func WriteOutputs(layout artifact.Layout, projectID string, reqs []domain.Requirement, w domain.WBS, now time.Time) (Paths, error) {
	if err := artifact.ValidateSegment(projectID); err != nil {
		return Paths{}, err
	}
	dir := layout.ScopeDir(projectID)
	p := Paths{
		WBS: filepath.Join(dir, WBSFileName),
		RTM: filepath.Join(dir, RTMFileName),
		SRS: filepath.Join(dir, SRSFileName(projectID)),
	}
	if err := artifact.WriteText(p.SRS, RenderSRS(projectID, reqs, now)); err != nil {
		return Paths{}, fmt.Errorf("write srs: %w", err)
	}
	if err := artifact.WriteCSV(p.RTM, RTMHeader, TraceRows(reqs, w)); err != nil {
		return Paths{}, fmt.Errorf("write rtm: %w", err)
	}
	if err := artifact.WriteJSON(p.WBS, w); err != nil {
		return Paths{}, fmt.Errorf("write wbs: %w", err)
	}
	return p, nil
}
