package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/metrics"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/repositories"
)

// AssignmentService attaches staff to projects. Every call is one
// transaction: the project row is locked first, then staff rows in id order,
// then the owning client.
type AssignmentService interface {
	// Assign gives a pending project its editor and, optionally, its QC
	// reviewer, and moves it to assigned. Checks run in order and the first
	// failure wins: project pending, editor capacity, QC capacity, client
	// enabled, client quota.
	Assign(ctx context.Context, actor auth.Caller, projectID, editorID uuid.UUID, qcID *uuid.UUID) (*models.Project, error)
	// AssignQC attaches a QC reviewer to an assigned, non-terminal project
	// that does not have one yet.
	AssignQC(ctx context.Context, actor auth.Caller, projectID, qcID uuid.UUID) (*models.Project, error)
}

type assignmentService struct {
	tx          TxRunner
	accountRepo repositories.AccountRepository
	projectRepo repositories.ProjectRepository
	eventRepo   repositories.StatusEventRepository
	plans       PlanLookup
	capacities  Capacities
	metrics     *metrics.Metrics
	now         Clock
	logger      *zap.Logger
}

// NewAssignmentService creates a new assignment coordinator.
func NewAssignmentService(
	tx TxRunner,
	accountRepo repositories.AccountRepository,
	projectRepo repositories.ProjectRepository,
	eventRepo repositories.StatusEventRepository,
	plans PlanLookup,
	capacities Capacities,
	m *metrics.Metrics,
	logger *zap.Logger,
) AssignmentService {
	return &assignmentService{
		tx:          tx,
		accountRepo: accountRepo,
		projectRepo: projectRepo,
		eventRepo:   eventRepo,
		plans:       plans,
		capacities:  capacities,
		metrics:     m,
		now:         utcNow,
		logger:      logger.Named("assignment"),
	}
}

func (s *assignmentService) Assign(ctx context.Context, actor auth.Caller, projectID, editorID uuid.UUID, qcID *uuid.UUID) (*models.Project, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins assign projects", apperrors.ErrForbidden)
	}

	var assigned *models.Project
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		project, err := s.lockPending(ctx, projectID)
		if err != nil {
			return err
		}

		staffIDs := []uuid.UUID{editorID}
		if qcID != nil {
			staffIDs = append(staffIDs, *qcID)
		}
		staff, err := s.lockAccounts(ctx, staffIDs)
		if err != nil {
			return err
		}

		if err := s.checkCapacity(ctx, staff[editorID], editorID, models.RoleEditor); err != nil {
			return err
		}
		if qcID != nil {
			if err := s.checkCapacity(ctx, staff[*qcID], *qcID, models.RoleQC); err != nil {
				return err
			}
		}

		client, err := s.accountRepo.GetForUpdate(ctx, project.ClientID)
		if err != nil {
			return fmt.Errorf("failed to lock client %s: %w", project.ClientID, err)
		}
		if client.Disabled {
			return fmt.Errorf("%w: client %s", apperrors.ErrAccountDisabled, client.ID)
		}
		plan, err := s.plans.Lookup(client.PlanID)
		if err != nil {
			return err
		}
		if err := RequireCanCreateProject(client, plan); err != nil {
			s.metrics.QuotaRejected(plan.ID)
			return err
		}

		candidate := project.Clone()
		editor := editorID
		candidate.EditorID = &editor
		if qcID != nil {
			qc := *qcID
			candidate.QCID = &qc
		}

		tr, err := ApplyTransition(candidate, models.StatusAssigned, actor.ID, s.now())
		if err != nil {
			return err
		}

		// Guarded write first: a racer that lost the row lock sees the new
		// status and fails here before touching any counter.
		if err := s.projectRepo.UpdateGuarded(ctx, tr.Project, models.StatusPending); err != nil {
			return err
		}
		if err := s.accountRepo.AdjustActiveProjects(ctx, client.ID, tr.ClientActiveDelta); err != nil {
			return err
		}
		if err := s.accountRepo.IncrementCycleUsage(ctx, client.ID); err != nil {
			return err
		}
		if err := s.eventRepo.Record(ctx, &models.StatusEvent{
			ProjectID:  project.ID,
			FromStatus: tr.From,
			ToStatus:   models.StatusAssigned,
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			CreatedAt:  tr.Project.UpdatedAt,
		}); err != nil {
			return err
		}

		assigned = tr.Project
		return nil
	})

	s.metrics.Assignment(outcome(err))
	if err != nil {
		s.logger.Info("Assignment refused",
			zap.String("project_id", projectID.String()),
			zap.String("editor_id", editorID.String()),
			zap.Error(err))
		return nil, err
	}

	s.metrics.Transition(models.StatusPending, models.StatusAssigned)
	s.logger.Info("Project assigned",
		zap.String("project_id", projectID.String()),
		zap.String("editor_id", editorID.String()),
		zap.Bool("with_qc", qcID != nil),
		zap.String("actor_id", actor.ID.String()))
	return assigned, nil
}

func (s *assignmentService) AssignQC(ctx context.Context, actor auth.Caller, projectID, qcID uuid.UUID) (*models.Project, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins assign projects", apperrors.ErrForbidden)
	}

	var updated *models.Project
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		project, err := s.projectRepo.GetForUpdate(ctx, projectID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return &apperrors.NotAssignableError{ProjectID: projectID.String()}
			}
			return err
		}

		switch {
		case project.Status == models.StatusPending:
			return &apperrors.NotAssignableError{ProjectID: projectID.String(), Status: string(project.Status),
				Reason: "pending projects are assigned together with their editor"}
		case project.Status.IsTerminal():
			return &apperrors.NotAssignableError{ProjectID: projectID.String(), Status: string(project.Status),
				Reason: "project is closed"}
		case project.QCID != nil:
			return &apperrors.NotAssignableError{ProjectID: projectID.String(), Status: string(project.Status),
				Reason: "project already has a QC reviewer"}
		}

		staff, err := s.lockAccounts(ctx, []uuid.UUID{qcID})
		if err != nil {
			return err
		}
		if err := s.checkCapacity(ctx, staff[qcID], qcID, models.RoleQC); err != nil {
			return err
		}

		next := project.Clone()
		qc := qcID
		actorID := actor.ID
		next.QCID = &qc
		next.UpdatedAt = s.now()
		next.UpdatedBy = &actorID

		if err := s.projectRepo.UpdateGuarded(ctx, next, project.Status); err != nil {
			return err
		}
		updated = next
		return nil
	})

	s.metrics.Assignment(outcome(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info("QC reviewer assigned",
		zap.String("project_id", projectID.String()),
		zap.String("qc_id", qcID.String()),
		zap.String("actor_id", actor.ID.String()))
	return updated, nil
}

// lockPending locks the project row and requires it to be pending.
func (s *assignmentService) lockPending(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.projectRepo.GetForUpdate(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, &apperrors.NotAssignableError{ProjectID: projectID.String()}
		}
		return nil, err
	}
	if project.Status != models.StatusPending {
		return nil, &apperrors.NotAssignableError{ProjectID: projectID.String(), Status: string(project.Status)}
	}
	return project, nil
}

// lockAccounts locks the given account rows in ascending id order. Missing
// accounts map to nil.
func (s *assignmentService) lockAccounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	locked := make(map[uuid.UUID]*models.Account, len(sorted))
	for _, id := range sorted {
		if _, done := locked[id]; done {
			continue
		}
		account, err := s.accountRepo.GetForUpdate(ctx, id)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to lock account %s: %w", id, err)
		}
		locked[id] = account
	}
	return locked, nil
}

// checkCapacity requires account to be an enabled member of role with room
// for one more project, counted live inside the transaction.
func (s *assignmentService) checkCapacity(ctx context.Context, account *models.Account, staffID uuid.UUID, role models.Role) error {
	reject := func(reason string) error {
		return &apperrors.CapacityError{StaffID: staffID.String(), Role: string(role), Reason: reason}
	}
	switch {
	case account == nil:
		return reject("account does not exist")
	case account.Role != role:
		return reject(fmt.Sprintf("account has role %s", account.Role))
	case account.Disabled:
		return reject("account is disabled")
	}

	projects, err := s.projectRepo.ListByAssignee(ctx, staffID, role, false)
	if err != nil {
		return fmt.Errorf("failed to count %s workload: %w", role, err)
	}
	snap := Snapshot(staffID, role, s.capacities.For(role), projects)
	if !snap.HasRoom() {
		return &apperrors.CapacityError{
			StaffID:  staffID.String(),
			Role:     string(role),
			Active:   snap.Active,
			Capacity: snap.Capacity,
		}
	}
	return nil
}

// outcome labels an assignment result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrProjectNotAssignable):
		return "not_assignable"
	case errors.Is(err, apperrors.ErrEditorAtCapacity):
		return "editor_at_capacity"
	case errors.Is(err, apperrors.ErrQCAtCapacity):
		return "qc_at_capacity"
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, apperrors.ErrAccountDisabled):
		return "client_disabled"
	case errors.Is(err, apperrors.ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}
