package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewProjectAndSlug(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	p, err := NewProject("p1", "  My Big Project!  ", " desc ", "", now)
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	if p.Slug != "my-big-project" {
		t.Fatalf("unexpected slug %q", p.Slug)
	}
	if p.Name != "My Big Project!" {
		t.Fatalf("unexpected name %q", p.Name)
	}
	if p.Methodology != MethodologyWaterfall {
		t.Fatalf("expected waterfall default, got %q", p.Methodology)
	}
}

func TestNewProjectValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewProject("", "ok", "", MethodologyAgile, now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewProject("id", "   ", "", MethodologyAgile, now); err != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := NewProject("id", "ok", "", "spiral", now); err != ErrInvalidMethodology {
		t.Fatalf("expected ErrInvalidMethodology, got %v", err)
	}
}

func TestProjectArchiveRestore(t *testing.T) {
	now := time.Now()
	p, err := NewProject("p1", "test", "", MethodologyAgile, now)
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	later := now.Add(time.Minute)
	p.Archive(later)
	if p.ArchivedAt == nil {
		t.Fatal("expected archived_at to be set")
	}
	p.Restore(later.Add(time.Minute))
	if p.ArchivedAt != nil {
		t.Fatal("expected archived_at to be nil")
	}
}

func TestNewDocumentValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewDocument(DocumentInput{ID: "d1", ProjectID: "p1", Kind: "memo", Text: "x"}, now); err != ErrInvalidDocumentKind {
		t.Fatalf("expected ErrInvalidDocumentKind, got %v", err)
	}
	if _, err := NewDocument(DocumentInput{ID: "d1", ProjectID: "p1", Kind: DocumentKindRFP, Text: "  "}, now); err != ErrInvalidText {
		t.Fatalf("expected ErrInvalidText, got %v", err)
	}
	doc, err := NewDocument(DocumentInput{ID: "d1", ProjectID: "p1", Kind: " RFP ", Text: "The system shall work."}, now)
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	if doc.Kind != DocumentKindRFP || doc.Title != "rfp" {
		t.Fatalf("unexpected document %#v", doc)
	}
}

func TestRequirementNormalizeAndValidate(t *testing.T) {
	r := Requirement{
		ReqID:              " R1 ",
		Title:              " Login ",
		Type:               "NFR",
		Priority:           "must",
		AcceptanceCriteria: []string{" a ", "", "b"},
	}.Normalize()
	if r.Type != RequirementNonFunctional {
		t.Fatalf("unexpected type %q", r.Type)
	}
	if r.Priority != PriorityHigh {
		t.Fatalf("unexpected priority %q", r.Priority)
	}
	if r.Description != "Login" {
		t.Fatalf("expected description to default to title, got %q", r.Description)
	}
	if len(r.AcceptanceCriteria) != 2 {
		t.Fatalf("unexpected criteria %#v", r.AcceptanceCriteria)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	bad := Requirement{Title: "x", Description: "y", Type: RequirementFunctional, Priority: PriorityLow}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRequirement) {
		t.Fatalf("expected ErrInvalidRequirement, got %v", err)
	}
}

func TestNormalizeRequirementTypeFoldsUnknownLabels(t *testing.T) {
	tests := []struct {
		raw  RequirementType
		want RequirementType
	}{
		{"performance", RequirementNonFunctional},
		{" Security ", RequirementNonFunctional},
		{"Non_Functional", RequirementNonFunctional},
		{"usability", RequirementNonFunctional},
		{"business", RequirementFunctional},
		{"user story", RequirementFunctional},
		{"", RequirementFunctional},
		{"Constraints", RequirementConstraint},
	}
	for _, tt := range tests {
		if got := NormalizeRequirementType(tt.raw); got != tt.want {
			t.Fatalf("NormalizeRequirementType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
		r := Requirement{ReqID: "R1", Title: "t", Type: tt.raw}.Normalize()
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate() for type %q error = %v", tt.raw, err)
		}
	}
}

func TestAssignRequirementIDs(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	reqs := []Requirement{{ReqID: "R1"}, {}, {ReqID: "R1"}, {ReqID: "REQ-20260301093000-001"}}
	AssignRequirementIDs(reqs, now)
	seen := map[string]struct{}{}
	for _, r := range reqs {
		if r.ReqID == "" {
			t.Fatal("expected every requirement to have an id")
		}
		if _, dup := seen[r.ReqID]; dup {
			t.Fatalf("duplicate id %q in %#v", r.ReqID, reqs)
		}
		seen[r.ReqID] = struct{}{}
	}
	if reqs[0].ReqID != "R1" {
		t.Fatalf("expected first id kept, got %q", reqs[0].ReqID)
	}
	if reqs[1].ReqID != "REQ-20260301093000-002" {
		t.Fatalf("expected collision-avoiding id, got %q", reqs[1].ReqID)
	}
}

func TestWBSRenumberFlattenValidate(t *testing.T) {
	w := WBS{ProjectID: "p1", Nodes: []WBSNode{
		{ID: "a", Name: "Phase A", Children: []WBSNode{
			{ID: "a1", Name: "Task A1"},
			{ID: "a2", Name: "Task A2", Predecessors: []string{"a1", "missing", "a2"}},
		}},
		{ID: "b", Name: "Phase B", Predecessors: []string{"a"}},
	}}
	w.Renumber()
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	flat := w.Flatten()
	if len(flat) != 4 {
		t.Fatalf("expected 4 flattened nodes, got %d", len(flat))
	}
	ids := []string{}
	for _, n := range flat {
		ids = append(ids, n.ID)
	}
	if strings.Join(ids, ",") != "1,1.1,1.2,2" {
		t.Fatalf("unexpected depth-first ids %v", ids)
	}
	if flat[2].ParentID != "1" || flat[2].Level != 2 {
		t.Fatalf("unexpected node %#v", flat[2])
	}
	if strings.Join(flat[2].Predecessors, ",") != "1.1" {
		t.Fatalf("expected remapped predecessors, got %v", flat[2].Predecessors)
	}
	if strings.Join(flat[0].ChildIDs, ",") != "1.1,1.2" {
		t.Fatalf("unexpected child ids %v", flat[0].ChildIDs)
	}
	if len(w.Leaves()) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(w.Leaves()))
	}
}

func TestWBSValidateRejectsBrokenTrees(t *testing.T) {
	w := WBS{Nodes: []WBSNode{{ID: "1", Name: "x", Level: 2}}}
	if err := w.Validate(); !errors.Is(err, ErrInvalidWBS) {
		t.Fatalf("expected ErrInvalidWBS for bad level, got %v", err)
	}
	w = WBS{Nodes: []WBSNode{{ID: "1", Name: "x", Level: 1, Predecessors: []string{"9"}}}}
	if err := w.Validate(); !errors.Is(err, ErrInvalidWBS) {
		t.Fatalf("expected ErrInvalidWBS for dangling predecessor, got %v", err)
	}
}

func TestChangeRequestAliases(t *testing.T) {
	var cr ChangeRequest
	if err := json.Unmarshal([]byte(`{"op":"UPDATE_DURATION","task_id":"B","duration":1.6}`), &cr); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cr.Op != ChangeOpUpdateDuration || cr.NewDuration == nil || *cr.NewDuration != 2 {
		t.Fatalf("unexpected change request %#v", cr)
	}
	if err := json.Unmarshal([]byte(`{"op":"add_pred","id":"D","pred":"A"}`), &cr); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cr.TaskID != "D" || cr.Predecessor != "A" || cr.NewDuration != nil {
		t.Fatalf("unexpected change request %#v", cr)
	}
	if !IsValidChangeOp(cr.Op) || IsValidChangeOp("explode") {
		t.Fatal("unexpected op validity")
	}
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC)
	if got := WeekStart(sunday); !got.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week start %s", got)
	}
}

func TestRiskValidate(t *testing.T) {
	if err := (Risk{Title: "x", Probability: RiskHigh}).Validate(); err != ErrInvalidRiskLevel {
		t.Fatalf("expected ErrInvalidRiskLevel, got %v", err)
	}
	if RiskHigh.Weight()*RiskMedium.Weight() != 6 {
		t.Fatal("unexpected risk weights")
	}
}
