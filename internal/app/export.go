package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/pmforge/internal/domain"
)

// ExportVersion tags the bundle format.
const ExportVersion = "pmforge.export.v1"

var exportedSnapshotKinds = []domain.SnapshotKind{domain.SnapshotScope, domain.SnapshotSchedule, domain.SnapshotManifest}

// Export is a portable copy of one or more projects and their records. Only the latest snapshot of
// each kind is carried.
type Export struct {
	Version       string                `json:"version"`
	ExportedAt    time.Time             `json:"exported_at"`
	Projects      []domain.Project      `json:"projects"`
	Documents     []domain.Document     `json:"documents"`
	ActionItems   []domain.ActionItem   `json:"action_items"`
	Risks         []domain.Risk         `json:"risks"`
	WeeklyReports []domain.WeeklyReport `json:"weekly_reports"`
	Snapshots     []domain.Snapshot     `json:"snapshots"`
}

// ExportProjects bundles the given projects, or every project when ids is empty.
func (s *Service) ExportProjects(ctx context.Context, ids ...string) (Export, error) {
	var projects []domain.Project
	if len(ids) == 0 {
		all, err := s.repo.ListProjects(ctx, true)
		if err != nil {
			return Export{}, err
		}
		projects = all
	}
	for _, id := range ids {
		p, err := s.ResolveProject(ctx, id)
		if err != nil {
			return Export{}, fmt.Errorf("project %q: %w", id, err)
		}
		projects = append(projects, p)
	}

	out := Export{
		Version:       ExportVersion,
		ExportedAt:    s.clock().UTC(),
		Projects:      projects,
		Documents:     []domain.Document{},
		ActionItems:   []domain.ActionItem{},
		Risks:         []domain.Risk{},
		WeeklyReports: []domain.WeeklyReport{},
		Snapshots:     []domain.Snapshot{},
	}
	for _, p := range projects {
		docs, err := s.repo.ListDocuments(ctx, p.ID)
		if err != nil {
			return Export{}, err
		}
		out.Documents = append(out.Documents, docs...)

		items, err := s.repo.ListActionItems(ctx, p.ID)
		if err != nil {
			return Export{}, err
		}
		out.ActionItems = append(out.ActionItems, items...)

		risks, err := s.repo.ListRisks(ctx, p.ID)
		if err != nil {
			return Export{}, err
		}
		for _, r := range risks {
			r.ProjectID = p.ID
			out.Risks = append(out.Risks, r)
		}

		reports, err := s.repo.ListWeeklyReports(ctx, p.ID)
		if err != nil {
			return Export{}, err
		}
		out.WeeklyReports = append(out.WeeklyReports, reports...)

		for _, kind := range exportedSnapshotKinds {
			snap, err := s.repo.LatestSnapshot(ctx, p.ID, kind)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return Export{}, err
			}
			out.Snapshots = append(out.Snapshots, snap)
		}
	}
	out.sort()
	return out, nil
}

// ImportProjects writes a bundle into the repository. Existing projects and action items are
// updated; records already present by id are left alone.
func (s *Service) ImportProjects(ctx context.Context, in Export) error {
	if err := in.Validate(); err != nil {
		return err
	}
	in.sort()

	for _, p := range in.Projects {
		if _, err := s.repo.GetProject(ctx, p.ID); err == nil {
			if err := s.repo.UpdateProject(ctx, p); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateProject(ctx, p); err != nil {
			return err
		}
	}

	known := map[string]struct{}{}
	for _, p := range in.Projects {
		docs, err := s.repo.ListDocuments(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, d := range docs {
			known[d.ID] = struct{}{}
		}
		reports, err := s.repo.ListWeeklyReports(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, r := range reports {
			known[r.ID] = struct{}{}
		}
	}
	for _, d := range in.Documents {
		if _, ok := known[d.ID]; ok {
			continue
		}
		if err := s.repo.CreateDocument(ctx, d); err != nil {
			return err
		}
	}
	for _, item := range in.ActionItems {
		if _, err := s.repo.GetActionItem(ctx, item.ID); err == nil {
			if err := s.repo.UpdateActionItem(ctx, item); err != nil {
				return err
			}
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateActionItem(ctx, item); err != nil {
			return err
		}
	}
	for _, r := range in.WeeklyReports {
		if _, ok := known[r.ID]; ok {
			continue
		}
		if err := s.repo.CreateWeeklyReport(ctx, r); err != nil {
			return err
		}
	}

	byProject := map[string][]domain.Risk{}
	for _, r := range in.Risks {
		byProject[r.ProjectID] = append(byProject[r.ProjectID], r)
	}
	for projectID, risks := range byProject {
		if err := s.repo.ReplaceRisks(ctx, projectID, risks); err != nil {
			return err
		}
	}
	for _, snap := range in.Snapshots {
		if cur, err := s.repo.LatestSnapshot(ctx, snap.ProjectID, snap.Kind); err == nil && cur.ID == snap.ID {
			continue
		}
		if err := s.repo.CreateSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks ids, required fields, and project references.
func (e *Export) Validate() error {
	if e.Version != "" && e.Version != ExportVersion {
		return fmt.Errorf("unsupported export version: %q", e.Version)
	}
	projectIDs := map[string]struct{}{}
	for i, p := range e.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("projects[%d].id is required", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d].name is required", i)
		}
		if _, exists := projectIDs[p.ID]; exists {
			return fmt.Errorf("duplicate project id: %q", p.ID)
		}
		if !domain.IsValidMethodology(domain.NormalizeMethodology(p.Methodology)) {
			return fmt.Errorf("projects[%d]: %w", i, domain.ErrInvalidMethodology)
		}
		projectIDs[p.ID] = struct{}{}
	}
	ref := func(section string, i int, projectID string) error {
		if _, ok := projectIDs[projectID]; !ok {
			return fmt.Errorf("%s[%d] references unknown project_id %q", section, i, projectID)
		}
		return nil
	}
	for i, d := range e.Documents {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("documents[%d].id is required", i)
		}
		if err := ref("documents", i, d.ProjectID); err != nil {
			return err
		}
	}
	for i, item := range e.ActionItems {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Task) == "" {
			return fmt.Errorf("action_items[%d] id and task are required", i)
		}
		if err := ref("action_items", i, item.ProjectID); err != nil {
			return err
		}
	}
	for i, r := range e.Risks {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("risks[%d]: %w", i, err)
		}
		if err := ref("risks", i, r.ProjectID); err != nil {
			return err
		}
	}
	for i, r := range e.WeeklyReports {
		if err := ref("weekly_reports", i, r.ProjectID); err != nil {
			return err
		}
	}
	for i, snap := range e.Snapshots {
		if !slices.Contains(exportedSnapshotKinds, snap.Kind) {
			return fmt.Errorf("snapshots[%d]: %w", i, domain.ErrInvalidSnapshotKind)
		}
		if err := ref("snapshots", i, snap.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Export) sort() {
	slices.SortStableFunc(e.Projects, func(a, b domain.Project) int {
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortStableFunc(e.Documents, func(a, b domain.Document) int {
		if c := strings.Compare(a.ProjectID, b.ProjectID); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortStableFunc(e.ActionItems, func(a, b domain.ActionItem) int {
		if c := strings.Compare(a.ProjectID, b.ProjectID); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortStableFunc(e.Risks, func(a, b domain.Risk) int {
		if c := strings.Compare(a.ProjectID, b.ProjectID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortStableFunc(e.WeeklyReports, func(a, b domain.WeeklyReport) int {
		if c := strings.Compare(a.ProjectID, b.ProjectID); c != 0 {
			return c
		}
		return a.WeekStart.Compare(b.WeekStart)
	})
	slices.SortStableFunc(e.Snapshots, func(a, b domain.Snapshot) int {
		if c := strings.Compare(a.ProjectID, b.ProjectID); c != 0 {
			return c
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})
}
