package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// transitions lists every legal move. Anything absent is illegal.
var transitions = map[models.ProjectStatus][]models.ProjectStatus{
	models.StatusPending:      {models.StatusAssigned, models.StatusCancelled},
	models.StatusAssigned:     {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress:   {models.StatusQCReview, models.StatusCancelled},
	models.StatusQCReview:     {models.StatusInProgress, models.StatusClientReview, models.StatusCancelled},
	models.StatusClientReview: {models.StatusInProgress, models.StatusCompleted, models.StatusCancelled},
}

// IsLegalTransition reports whether from -> to is in the lifecycle table.
func IsLegalTransition(from, to models.ProjectStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LegalTargets returns the statuses reachable from from.
func LegalTargets(from models.ProjectStatus) []models.ProjectStatus {
	return append([]models.ProjectStatus(nil), transitions[from]...)
}

// Transition is the outcome of applying a legal move to a project.
type Transition struct {
	From    models.ProjectStatus
	Project *models.Project
	// ClientActiveDelta is the change to the owning client's activeProjects:
	// +1 on leaving pending, -1 on completion or on cancelling a counted project.
	ClientActiveDelta int
}

// ApplyTransition validates from -> to against project and returns the new
// state. The input project is never modified; on error nothing has changed.
func ApplyTransition(project *models.Project, to models.ProjectStatus, actorID uuid.UUID, now time.Time) (*Transition, error) {
	from := project.Status
	fail := func(reason string) error {
		return &apperrors.TransitionError{
			ProjectID: project.ID.String(),
			From:      string(from),
			To:        string(to),
			Reason:    reason,
		}
	}

	if !IsLegalTransition(from, to) {
		return nil, fail("")
	}

	next := project.Clone()

	switch {
	case to == models.StatusAssigned && next.EditorID == nil:
		return nil, fail("no editor assigned")
	case from == models.StatusInProgress && to == models.StatusQCReview && next.QCID == nil:
		return nil, fail("no QC reviewer assigned")
	case from == models.StatusClientReview && to == models.StatusInProgress:
		if !next.RevisionLimit.Allows(next.RevisionCount) {
			return nil, fail(fmt.Sprintf("revision limit %s reached", next.RevisionLimit))
		}
		next.RevisionCount++
	}

	next.Status = to
	next.UpdatedAt = now
	actor := actorID
	next.UpdatedBy = &actor

	return &Transition{
		From:              from,
		Project:           next,
		ClientActiveDelta: activeWeight(to) - activeWeight(from),
	}, nil
}

func activeWeight(s models.ProjectStatus) int {
	if s.CountsAsActive() {
		return 1
	}
	return 0
}

// AuthorizeTransition checks that caller may drive project from its current
// status to to. It assumes the move is legal.
func AuthorizeTransition(caller auth.Caller, project *models.Project, to models.ProjectStatus) error {
	if caller.Role == models.RoleAdmin {
		return nil
	}

	from := project.Status
	allowed := false
	switch caller.Role {
	case models.RoleClient:
		owns := project.ClientID == caller.ID
		allowed = owns && (to == models.StatusCancelled ||
			(from == models.StatusClientReview && (to == models.StatusInProgress || to == models.StatusCompleted)))
	case models.RoleEditor:
		allowed = project.IsAssignedTo(caller.ID, models.RoleEditor) &&
			((from == models.StatusAssigned && to == models.StatusInProgress) ||
				(from == models.StatusInProgress && to == models.StatusQCReview))
	case models.RoleQC:
		allowed = project.IsAssignedTo(caller.ID, models.RoleQC) && from == models.StatusQCReview &&
			(to == models.StatusInProgress || to == models.StatusClientReview)
	}

	if !allowed {
		return fmt.Errorf("%w: %s %s may not move project %s from %s to %s",
			apperrors.ErrForbidden, caller.Role, caller.ID, project.ID, from, to)
	}
	return nil
}
