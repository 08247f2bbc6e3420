package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanschultz/pmforge/internal/app"
	"github.com/evanschultz/pmforge/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository implements app.Repository on one sqlite database.
type Repository struct {
	db *sql.DB
}

var _ app.Repository = (*Repository)(nil)

// Open opens the database at path, creating its directory and schema as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			methodology TEXT NOT NULL DEFAULT 'waterfall',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS action_items (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			document_id TEXT NOT NULL DEFAULT '',
			task TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			due_at TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS risks (
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			probability TEXT NOT NULL,
			impact TEXT NOT NULL,
			score INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			responses_json TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY(project_id, id),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS weekly_reports (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			week_start TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			body_markdown TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS pipeline_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			step TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_project_created_at ON documents(project_id, created_at ASC, id ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_action_items_project_created_at ON action_items(project_id, created_at ASC, id ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_weekly_reports_project_week ON weekly_reports(project_id, week_start DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_project_kind_created_at ON snapshots(project_id, kind, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_logs_project_id ON pipeline_logs(project_id, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	projectAlterStatements := []string{
		`ALTER TABLE projects ADD COLUMN metadata_json TEXT NOT NULL DEFAULT '{}'`,
		`ALTER TABLE projects ADD COLUMN methodology TEXT NOT NULL DEFAULT 'waterfall'`,
	}
	for _, stmt := range projectAlterStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil && !isDuplicateColumnErr(err) {
			return fmt.Errorf("migrate sqlite projects: %w", err)
		}
	}
	return nil
}

// CreateProject creates project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	metaJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode project metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects(id, slug, name, description, methodology, metadata_json, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Slug, p.Name, p.Description, string(p.Methodology), string(metaJSON), ts(p.CreatedAt), ts(p.UpdatedAt), nullableTS(p.ArchivedAt))
	return err
}

// UpdateProject updates project.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	metaJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode project metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET slug = ?, name = ?, description = ?, methodology = ?, metadata_json = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, p.Slug, p.Name, p.Description, string(p.Methodology), string(metaJSON), ts(p.UpdatedAt), nullableTS(p.ArchivedAt), p.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetProject returns project.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, methodology, metadata_json, created_at, updated_at, archived_at
		FROM projects
		WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects lists projects.
func (r *Repository) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	query := `
		SELECT id, slug, name, description, methodology, metadata_json, created_at, updated_at, archived_at
		FROM projects
	`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateDocument creates document.
func (r *Repository) CreateDocument(ctx context.Context, d domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents(id, project_id, kind, title, body, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ProjectID, string(d.Kind), d.Title, d.Text, d.Source, ts(d.CreatedAt))
	return err
}

// ListDocuments lists documents.
func (r *Repository) ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, kind, title, body, source, created_at
		FROM documents
		WHERE project_id = ?
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Document{}
	for rows.Next() {
		var (
			d          domain.Document
			kind       string
			createdRaw string
		)
		if err := rows.Scan(&d.ID, &d.ProjectID, &kind, &d.Title, &d.Text, &d.Source, &createdRaw); err != nil {
			return nil, err
		}
		d.Kind = domain.DocumentKind(kind)
		d.CreatedAt = parseTS(createdRaw)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateActionItem creates action item.
func (r *Repository) CreateActionItem(ctx context.Context, a domain.ActionItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO action_items(id, project_id, document_id, task, owner, due_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ProjectID, a.DocumentID, a.Task, a.Owner, nullableTS(a.DueAt), string(a.Status), ts(a.CreatedAt), ts(a.UpdatedAt))
	return err
}

// UpdateActionItem updates action item.
func (r *Repository) UpdateActionItem(ctx context.Context, a domain.ActionItem) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE action_items
		SET task = ?, owner = ?, due_at = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, a.Task, a.Owner, nullableTS(a.DueAt), string(a.Status), ts(a.UpdatedAt), a.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetActionItem returns action item.
func (r *Repository) GetActionItem(ctx context.Context, id string) (domain.ActionItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, document_id, task, owner, due_at, status, created_at, updated_at
		FROM action_items
		WHERE id = ?
	`, id)
	return scanActionItem(row)
}

// ListActionItems lists action items.
func (r *Repository) ListActionItems(ctx context.Context, projectID string) ([]domain.ActionItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, document_id, task, owner, due_at, status, created_at, updated_at
		FROM action_items
		WHERE project_id = ?
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ActionItem{}
	for rows.Next() {
		a, err := scanActionItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceRisks swaps the risk register of one project in a single transaction.
func (r *Repository) ReplaceRisks(ctx context.Context, projectID string, risks []domain.Risk) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM risks WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	for i, risk := range risks {
		responses, encErr := json.Marshal(risk.RecommendedResponses)
		if encErr != nil {
			err = fmt.Errorf("encode risk responses: %w", encErr)
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO risks(project_id, id, position, title, category, probability, impact, score, source, owner, responses_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, projectID, risk.ID, i, risk.Title, risk.Category, string(risk.Probability), string(risk.Impact), risk.Score, risk.Source, risk.Owner, string(responses))
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// ListRisks lists the register in stored order.
func (r *Repository) ListRisks(ctx context.Context, projectID string) ([]domain.Risk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, title, category, probability, impact, score, source, owner, responses_json
		FROM risks
		WHERE project_id = ?
		ORDER BY position ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Risk{}
	for rows.Next() {
		var (
			risk         domain.Risk
			probability  string
			impact       string
			responsesRaw string
		)
		if err := rows.Scan(&risk.ID, &risk.ProjectID, &risk.Title, &risk.Category, &probability, &impact, &risk.Score, &risk.Source, &risk.Owner, &responsesRaw); err != nil {
			return nil, err
		}
		risk.Probability = domain.RiskLevel(probability)
		risk.Impact = domain.RiskLevel(impact)
		if err := decodeJSON(responsesRaw, "[]", &risk.RecommendedResponses); err != nil {
			return nil, fmt.Errorf("decode risks.responses_json: %w", err)
		}
		out = append(out, risk)
	}
	return out, rows.Err()
}

// CreateWeeklyReport creates weekly report.
func (r *Repository) CreateWeeklyReport(ctx context.Context, w domain.WeeklyReport) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO weekly_reports(id, project_id, week_start, summary, body_markdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.ID, w.ProjectID, ts(w.WeekStart), w.Summary, w.BodyMarkdown, ts(w.CreatedAt))
	return err
}

// ListWeeklyReports lists reports, newest week first.
func (r *Repository) ListWeeklyReports(ctx context.Context, projectID string) ([]domain.WeeklyReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, week_start, summary, body_markdown, created_at
		FROM weekly_reports
		WHERE project_id = ?
		ORDER BY week_start DESC, created_at DESC, id DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WeeklyReport{}
	for rows.Next() {
		var (
			w          domain.WeeklyReport
			weekRaw    string
			createdRaw string
		)
		if err := rows.Scan(&w.ID, &w.ProjectID, &weekRaw, &w.Summary, &w.BodyMarkdown, &createdRaw); err != nil {
			return nil, err
		}
		w.WeekStart = parseTS(weekRaw)
		w.CreatedAt = parseTS(createdRaw)
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreateSnapshot creates snapshot.
func (r *Repository) CreateSnapshot(ctx context.Context, s domain.Snapshot) error {
	payload := string(s.Payload)
	if strings.TrimSpace(payload) == "" {
		payload = "null"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots(id, project_id, kind, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, s.ProjectID, string(s.Kind), payload, ts(s.CreatedAt))
	return err
}

// LatestSnapshot returns the newest snapshot of kind; rows written in the same instant resolve to
// the last inserted.
func (r *Repository) LatestSnapshot(ctx context.Context, projectID string, kind domain.SnapshotKind) (domain.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, kind, payload_json, created_at
		FROM snapshots
		WHERE project_id = ? AND kind = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, projectID, string(kind))
	var (
		s          domain.Snapshot
		kindRaw    string
		payloadRaw string
		createdRaw string
	)
	if err := row.Scan(&s.ID, &s.ProjectID, &kindRaw, &payloadRaw, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, app.ErrNotFound
		}
		return domain.Snapshot{}, err
	}
	s.Kind = domain.SnapshotKind(kindRaw)
	s.Payload = json.RawMessage(payloadRaw)
	s.CreatedAt = parseTS(createdRaw)
	return s, nil
}

// AppendLog appends one pipeline log entry.
func (r *Repository) AppendLog(ctx context.Context, e domain.LogEntry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode log metadata: %w", err)
	}
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pipeline_logs(project_id, run_id, step, level, message, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ProjectID, e.RunID, e.Step, string(e.Level), e.Message, string(metaJSON), ts(occurredAt))
	return err
}

// ListLogs lists up to limit entries, newest first.
func (r *Repository) ListLogs(ctx context.Context, projectID string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, run_id, step, level, message, metadata_json, created_at
		FROM pipeline_logs
		WHERE project_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.LogEntry{}
	for rows.Next() {
		var (
			e          domain.LogEntry
			level      string
			metaRaw    string
			createdRaw string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.RunID, &e.Step, &level, &e.Message, &metaRaw, &createdRaw); err != nil {
			return nil, err
		}
		e.Level = domain.LogLevel(level)
		if err := decodeJSON(metaRaw, "{}", &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode pipeline_logs.metadata_json: %w", err)
		}
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
		e.OccurredAt = parseTS(createdRaw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanner describes the Scan method shared by sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanProject scans project.
func scanProject(s scanner) (domain.Project, error) {
	var (
		p           domain.Project
		methodology string
		metadataRaw string
		createdRaw  string
		updatedRaw  string
		archived    sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &methodology, &metadataRaw, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, app.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.Methodology = domain.NormalizeMethodology(domain.Methodology(methodology))
	if err := decodeJSON(metadataRaw, "{}", &p.Metadata); err != nil {
		return domain.Project{}, fmt.Errorf("decode project metadata_json: %w", err)
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	p.ArchivedAt = parseNullTS(archived)
	return p, nil
}

// scanActionItem scans action item.
func scanActionItem(s scanner) (domain.ActionItem, error) {
	var (
		a          domain.ActionItem
		due        sql.NullString
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&a.ID, &a.ProjectID, &a.DocumentID, &a.Task, &a.Owner, &due, &status, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ActionItem{}, app.ErrNotFound
		}
		return domain.ActionItem{}, err
	}
	a.DueAt = parseNullTS(due)
	a.Status = domain.ActionItemStatus(status)
	a.CreatedAt = parseTS(createdRaw)
	a.UpdatedAt = parseTS(updatedRaw)
	return a, nil
}

func decodeJSON(raw, empty string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		raw = empty
	}
	return json.Unmarshal([]byte(raw), dst)
}

// translateNoRows maps zero affected rows to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized value.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized value.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

// isDuplicateColumnErr reports whether the requested condition is satisfied.
func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
