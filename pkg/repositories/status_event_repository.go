package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/database"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// StatusEventRepository stores the append-only log of project transitions.
type StatusEventRepository interface {
	Record(ctx context.Context, event *models.StatusEvent) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.StatusEvent, error)
}

type statusEventRepository struct{}

// NewStatusEventRepository creates a new status event repository.
func NewStatusEventRepository() StatusEventRepository {
	return &statusEventRepository{}
}

func (r *statusEventRepository) Record(ctx context.Context, event *models.StatusEvent) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err = q.Exec(ctx, `
		INSERT INTO project_status_events (id, project_id, from_status, to_status, actor_id, actor_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.ProjectID,
		event.FromStatus,
		event.ToStatus,
		event.ActorID,
		event.ActorRole,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record status event: %w", err)
	}
	return nil
}

func (r *statusEventRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.StatusEvent, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, project_id, from_status, to_status, actor_id, actor_role, created_at
		FROM project_status_events
		WHERE project_id = $1
		ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.StatusEvent, 0)
	for rows.Next() {
		var e models.StatusEvent
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.ActorRole, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status events: %w", err)
	}
	return events, nil
}
