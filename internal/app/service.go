package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/ingest"
	"github.com/evanschultz/pmforge/internal/llm"
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Pipeline  Pipeline
	Replanner Replanner
	// Caller writes the optional weekly-report summary. Nil disables it.
	Caller *llm.Caller
	// Defaults are merged under every GeneratePlan request.
	Defaults agent.Options
	Logger   *log.Logger
}

// Service coordinates persistence and the agent pipeline.
type Service struct {
	repo      Repository
	idGen     IDGenerator
	clock     Clock
	pipeline  Pipeline
	replanner Replanner
	caller    *llm.Caller
	defaults  agent.Options
	logger    *log.Logger
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = agent.DiscardLogger()
	}
	return &Service{
		repo:      repo,
		idGen:     idGen,
		clock:     clock,
		pipeline:  cfg.Pipeline,
		replanner: cfg.Replanner,
		caller:    cfg.Caller,
		defaults:  cfg.Defaults,
		logger:    logger,
	}
}

// CreateProjectInput holds input values for create project operations.
type CreateProjectInput struct {
	Name        string
	Description string
	Methodology domain.Methodology
	Metadata    domain.ProjectMetadata
}

// CreateProject creates project.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	now := s.clock()
	project, err := domain.NewProject(s.idGen(), in.Name, in.Description, in.Methodology, now)
	if err != nil {
		return domain.Project{}, err
	}
	if err := project.UpdateDetails(project.Name, project.Description, in.Metadata, now); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// UpdateProject updates the descriptive fields of a project.
func (s *Service) UpdateProject(ctx context.Context, projectID, name, description string, metadata domain.ProjectMetadata) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := project.UpdateDetails(name, description, metadata, s.clock()); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return s.repo.GetProject(ctx, strings.TrimSpace(projectID))
}

// ResolveProject finds a project by id, then by slug.
func (s *Service) ResolveProject(ctx context.Context, ref string) (domain.Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Project{}, domain.ErrInvalidID
	}
	project, err := s.repo.GetProject(ctx, ref)
	if err == nil {
		return project, nil
	}
	projects, listErr := s.repo.ListProjects(ctx, true)
	if listErr != nil {
		return domain.Project{}, listErr
	}
	for _, p := range projects {
		if p.Slug == strings.ToLower(ref) {
			return p, nil
		}
	}
	return domain.Project{}, err
}

// ListProjects lists projects ordered by creation time.
func (s *Service) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	projects, err := s.repo.ListProjects(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(projects, func(a, b domain.Project) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return projects, nil
}

// ArchiveProject archives project.
func (s *Service) ArchiveProject(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	project.Archive(s.clock())
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// RestoreProject restores an archived project.
func (s *Service) RestoreProject(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	project.Restore(s.clock())
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// AddDocumentInput holds input values for document ingestion.
type AddDocumentInput struct {
	ProjectID string
	Kind      domain.DocumentKind
	Title     string
	Text      string
	Source    string
}

// Ingested is one stored document plus the action items captured from it.
type Ingested struct {
	Document    domain.Document     `json:"document"`
	ActionItems []domain.ActionItem `json:"action_items"`
}

// AddDocument stores a document. Meeting minutes also yield action items.
func (s *Service) AddDocument(ctx context.Context, in AddDocumentInput) (Ingested, error) {
	if _, err := s.repo.GetProject(ctx, in.ProjectID); err != nil {
		return Ingested{}, err
	}
	now := s.clock()
	doc, err := domain.NewDocument(domain.DocumentInput{
		ID:        s.idGen(),
		ProjectID: in.ProjectID,
		Kind:      in.Kind,
		Title:     in.Title,
		Text:      in.Text,
		Source:    in.Source,
	}, now)
	if err != nil {
		return Ingested{}, err
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return Ingested{}, err
	}

	out := Ingested{Document: doc, ActionItems: []domain.ActionItem{}}
	if doc.Kind != domain.DocumentKindMeeting {
		return out, nil
	}
	for _, cand := range ingest.ExtractActionItems(doc.Text) {
		item, err := domain.NewActionItem(domain.ActionItemInput{
			ID:         s.idGen(),
			ProjectID:  doc.ProjectID,
			DocumentID: doc.ID,
			Task:       cand.Task,
			Owner:      cand.Owner,
			DueAt:      cand.DueAt,
		}, now)
		if err != nil {
			continue
		}
		if err := s.repo.CreateActionItem(ctx, item); err != nil {
			return out, err
		}
		out.ActionItems = append(out.ActionItems, item)
	}
	s.logger.Info("meeting ingested", "project_id", doc.ProjectID, "document_id", doc.ID, "action_items", len(out.ActionItems))
	return out, nil
}

// ListDocuments lists the documents of a project in ingestion order.
func (s *Service) ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	docs, err := s.repo.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return docs, nil
}

// CreateActionItemInput holds input values for a manually entered action item.
type CreateActionItemInput struct {
	ProjectID string
	Task      string
	Owner     string
	DueAt     *time.Time
}

// CreateActionItem creates one open action item.
func (s *Service) CreateActionItem(ctx context.Context, in CreateActionItemInput) (domain.ActionItem, error) {
	if _, err := s.repo.GetProject(ctx, in.ProjectID); err != nil {
		return domain.ActionItem{}, err
	}
	item, err := domain.NewActionItem(domain.ActionItemInput{
		ID:        s.idGen(),
		ProjectID: in.ProjectID,
		Task:      in.Task,
		Owner:     in.Owner,
		DueAt:     in.DueAt,
	}, s.clock())
	if err != nil {
		return domain.ActionItem{}, err
	}
	if err := s.repo.CreateActionItem(ctx, item); err != nil {
		return domain.ActionItem{}, err
	}
	return item, nil
}

// CompleteActionItem marks one action item done.
func (s *Service) CompleteActionItem(ctx context.Context, itemID string) (domain.ActionItem, error) {
	item, err := s.repo.GetActionItem(ctx, itemID)
	if err != nil {
		return domain.ActionItem{}, err
	}
	item.Complete(s.clock())
	if err := s.repo.UpdateActionItem(ctx, item); err != nil {
		return domain.ActionItem{}, err
	}
	return item, nil
}

// ListActionItems lists action items, open first, then by creation time.
func (s *Service) ListActionItems(ctx context.Context, projectID string, includeDone bool) ([]domain.ActionItem, error) {
	items, err := s.repo.ListActionItems(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActionItem, 0, len(items))
	for _, item := range items {
		if !includeDone && !item.IsOpen() {
			continue
		}
		out = append(out, item)
	}
	slices.SortStableFunc(out, func(a, b domain.ActionItem) int {
		if a.IsOpen() != b.IsOpen() {
			if a.IsOpen() {
				return -1
			}
			return 1
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// ListRisks returns the latest risk register of a project.
func (s *Service) ListRisks(ctx context.Context, projectID string) ([]domain.Risk, error) {
	return s.repo.ListRisks(ctx, projectID)
}

// ListLogs returns up to limit pipeline log entries, newest first.
func (s *Service) ListLogs(ctx context.Context, projectID string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListLogs(ctx, projectID, limit)
}
