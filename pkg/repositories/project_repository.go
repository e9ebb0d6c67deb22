package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/database"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// ProjectRepository defines the interface for project data access.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	// GetForUpdate reads the project and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error)
	// ListByAssignee returns projects where staffID is the editor (role editor)
	// or QC (role qc). Terminal projects are included only when includeClosed.
	ListByAssignee(ctx context.Context, staffID uuid.UUID, role models.Role, includeClosed bool) ([]*models.Project, error)
	// ListActive returns non-terminal projects past pending.
	ListActive(ctx context.Context) ([]*models.Project, error)
	ListPending(ctx context.Context) ([]*models.Project, error)
	// CountOpenByAssignee returns the number of non-terminal projects per
	// staff member for role.
	CountOpenByAssignee(ctx context.Context, role models.Role) (map[uuid.UUID]int, error)
	// UpdateGuarded writes the mutable fields of project only if the stored
	// status still equals expected. Otherwise it returns a ConflictError
	// carrying the status found, or NotFound.
	UpdateGuarded(ctx context.Context, project *models.Project, expected models.ProjectStatus) error
	// UpdateProgress sets progress on a non-terminal project.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, actorID uuid.UUID) (*models.Project, error)
}

type projectRepository struct{}

// NewProjectRepository creates a new project repository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

const projectColumns = `id, client_id, title, description, editor_id, qc_id, status, priority,
	progress, revision_count, revision_limit, due_date, created_at, updated_at, updated_by`

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	query := `
		INSERT INTO projects (id, client_id, title, description, editor_id, qc_id, status, priority,
			progress, revision_count, revision_limit, due_date, created_at, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = q.Exec(ctx, query,
		project.ID,
		project.ClientID,
		project.Title,
		project.Description,
		project.EditorID,
		project.QCID,
		project.Status,
		project.Priority,
		project.Progress,
		project.RevisionCount,
		project.RevisionLimit,
		project.DueDate,
		project.CreatedAt,
		project.UpdatedAt,
		project.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

func (r *projectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return r.get(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
}

func (r *projectRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return r.get(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id)
}

func (r *projectRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.Project, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	project, err := scanProject(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("project", id.String())
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

func (r *projectRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error) {
	return r.list(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE client_id = $1
		ORDER BY created_at DESC, id`, clientID)
}

func (r *projectRepository) ListByAssignee(ctx context.Context, staffID uuid.UUID, role models.Role, includeClosed bool) ([]*models.Project, error) {
	column, err := assigneeColumn(role)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + column + ` = $1`
	if !includeClosed {
		query += ` AND status NOT IN ('completed', 'cancelled')`
	}
	query += ` ORDER BY created_at DESC, id`

	return r.list(ctx, query, staffID)
}

func (r *projectRepository) ListActive(ctx context.Context) ([]*models.Project, error) {
	return r.list(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE status = ANY($1)
		ORDER BY updated_at DESC, id`, statusStrings(models.ActiveStatuses))
}

func (r *projectRepository) ListPending(ctx context.Context) ([]*models.Project, error) {
	return r.list(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE status = 'pending'
		ORDER BY created_at, id`)
}

func (r *projectRepository) CountOpenByAssignee(ctx context.Context, role models.Role) (map[uuid.UUID]int, error) {
	column, err := assigneeColumn(role)
	if err != nil {
		return nil, err
	}

	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+column+`, COUNT(*)
		FROM projects
		WHERE `+column+` IS NOT NULL AND status NOT IN ('completed', 'cancelled')
		GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("failed to count open projects: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

func (r *projectRepository) UpdateGuarded(ctx context.Context, project *models.Project, expected models.ProjectStatus) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects
		SET editor_id = $3, qc_id = $4, status = $5, progress = $6,
		    revision_count = $7, updated_at = $8, updated_by = $9
		WHERE id = $1 AND status = $2`

	result, err := q.Exec(ctx, query,
		project.ID,
		expected,
		project.EditorID,
		project.QCID,
		project.Status,
		project.Progress,
		project.RevisionCount,
		project.UpdatedAt,
		project.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var actual models.ProjectStatus
	err = q.QueryRow(ctx, `SELECT status FROM projects WHERE id = $1`, project.ID).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("project", project.ID.String())
	}
	if err != nil {
		return fmt.Errorf("failed to read project status: %w", err)
	}
	return &apperrors.ConflictError{
		Entity:   "project",
		ID:       project.ID.String(),
		Expected: string(expected),
		Actual:   string(actual),
	}
}

func (r *projectRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, actorID uuid.UUID) (*models.Project, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE projects
		SET progress = $2, updated_at = $3, updated_by = $4
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
		RETURNING ` + projectColumns

	project, err := scanProject(q.QueryRow(ctx, query, id, progress, time.Now().UTC(), actorID))
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &apperrors.ConflictError{
		Entity:   "project",
		ID:       id.String(),
		Expected: "non-terminal status",
		Actual:   string(current.Status),
	}
}

func (r *projectRepository) list(ctx context.Context, query string, args ...any) ([]*models.Project, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

func assigneeColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleEditor:
		return "editor_id", nil
	case models.RoleQC:
		return "qc_id", nil
	default:
		return "", fmt.Errorf("%w: %s has no project queue", apperrors.ErrInvalidRole, role)
	}
}

func statusStrings(statuses []models.ProjectStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID,
		&p.ClientID,
		&p.Title,
		&p.Description,
		&p.EditorID,
		&p.QCID,
		&p.Status,
		&p.Priority,
		&p.Progress,
		&p.RevisionCount,
		&p.RevisionLimit,
		&p.DueDate,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
