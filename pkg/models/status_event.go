package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusEvent records one successful status transition and who made it.
type StatusEvent struct {
	ID         uuid.UUID     `json:"id"`
	ProjectID  uuid.UUID     `json:"project_id"`
	FromStatus ProjectStatus `json:"from_status"`
	ToStatus   ProjectStatus `json:"to_status"`
	ActorID    uuid.UUID     `json:"actor_id"`
	ActorRole  Role          `json:"actor_role"`
	CreatedAt  time.Time     `json:"created_at"`
}
