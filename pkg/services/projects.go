package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/metrics"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/repositories"
)

// CreateProjectInput carries a project request. ClientID is only read when an
// admin creates on a client's behalf; clients always create for themselves.
type CreateProjectInput struct {
	ClientID    uuid.UUID
	Title       string
	Description string
	Priority    models.Priority
	DueDate     *time.Time
}

// ProjectService defines the project lifecycle operations.
type ProjectService interface {
	Create(ctx context.Context, actor auth.Caller, in CreateProjectInput) (*models.Project, error)
	Get(ctx context.Context, actor auth.Caller, projectID uuid.UUID) (*models.Project, error)
	// List returns the caller's projects: owned for clients, assigned for
	// staff, pending and active for admins.
	List(ctx context.Context, actor auth.Caller) ([]*models.Project, error)
	AdvanceStatus(ctx context.Context, actor auth.Caller, projectID uuid.UUID, to models.ProjectStatus) (*models.Project, error)
	Cancel(ctx context.Context, actor auth.Caller, projectID uuid.UUID) (*models.Project, error)
	UpdateProgress(ctx context.Context, actor auth.Caller, projectID uuid.UUID, progress int) (*models.Project, error)
	Events(ctx context.Context, actor auth.Caller, projectID uuid.UUID) ([]*models.StatusEvent, error)
}

type projectService struct {
	tx          TxRunner
	accountRepo repositories.AccountRepository
	projectRepo repositories.ProjectRepository
	eventRepo   repositories.StatusEventRepository
	plans       PlanLookup
	metrics     *metrics.Metrics
	now         Clock
	logger      *zap.Logger
}

// NewProjectService creates a new project service with dependencies.
func NewProjectService(
	tx TxRunner,
	accountRepo repositories.AccountRepository,
	projectRepo repositories.ProjectRepository,
	eventRepo repositories.StatusEventRepository,
	plans PlanLookup,
	m *metrics.Metrics,
	logger *zap.Logger,
) ProjectService {
	return &projectService{
		tx:          tx,
		accountRepo: accountRepo,
		projectRepo: projectRepo,
		eventRepo:   eventRepo,
		plans:       plans,
		metrics:     m,
		now:         utcNow,
		logger:      logger.Named("projects"),
	}
}

func (s *projectService) Create(ctx context.Context, actor auth.Caller, in CreateProjectInput) (*models.Project, error) {
	clientID := actor.ID
	switch actor.Role {
	case models.RoleClient:
	case models.RoleAdmin:
		if in.ClientID == uuid.Nil {
			return nil, fmt.Errorf("%w: client_id is required when an admin creates a project", apperrors.ErrInvalidInput)
		}
		clientID = in.ClientID
	default:
		return nil, fmt.Errorf("%w: %s accounts cannot request projects", apperrors.ErrForbidden, actor.Role)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperrors.ErrInvalidInput)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.IsValidPriority(priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", apperrors.ErrInvalidInput, priority)
	}

	var created *models.Project
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		client, err := s.accountRepo.GetForUpdate(ctx, clientID)
		if err != nil {
			return err
		}
		if client.Role != models.RoleClient {
			return fmt.Errorf("%w: account %s is a %s, not a client", apperrors.ErrInvalidInput, client.ID, client.Role)
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

		actorID := actor.ID
		project := &models.Project{
			ClientID:      client.ID,
			Title:         title,
			Description:   in.Description,
			Status:        models.StatusPending,
			Priority:      priority,
			RevisionLimit: plan.RevisionLimit,
			DueDate:       in.DueDate,
			UpdatedBy:     &actorID,
		}
		if err := s.projectRepo.Create(ctx, project); err != nil {
			return err
		}
		created = project
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project requested",
		zap.String("project_id", created.ID.String()),
		zap.String("client_id", created.ClientID.String()),
		zap.String("actor_id", actor.ID.String()))
	return created, nil
}

func (s *projectService) Get(ctx context.Context, actor auth.Caller, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, project) {
		return nil, fmt.Errorf("%w: project %s is not visible to %s %s", apperrors.ErrForbidden, projectID, actor.Role, actor.ID)
	}
	return project, nil
}

func (s *projectService) List(ctx context.Context, actor auth.Caller) ([]*models.Project, error) {
	switch actor.Role {
	case models.RoleClient:
		return s.projectRepo.ListByClient(ctx, actor.ID)
	case models.RoleEditor, models.RoleQC:
		return s.projectRepo.ListByAssignee(ctx, actor.ID, actor.Role, true)
	case models.RoleAdmin:
		pending, err := s.projectRepo.ListPending(ctx)
		if err != nil {
			return nil, err
		}
		active, err := s.projectRepo.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		return append(pending, active...), nil
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRole, actor.Role)
}

func (s *projectService) AdvanceStatus(ctx context.Context, actor auth.Caller, projectID uuid.UUID, to models.ProjectStatus) (*models.Project, error) {
	if !models.IsValidProjectStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, to)
	}

	var tr *Transition
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		project, err := s.projectRepo.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}

		tr, err = ApplyTransition(project, to, actor.ID, s.now())
		if err != nil {
			return err
		}
		if err := AuthorizeTransition(actor, project, to); err != nil {
			return err
		}

		if err := s.projectRepo.UpdateGuarded(ctx, tr.Project, tr.From); err != nil {
			return err
		}
		if tr.ClientActiveDelta != 0 {
			if err := s.accountRepo.AdjustActiveProjects(ctx, project.ClientID, tr.ClientActiveDelta); err != nil {
				return err
			}
		}
		return s.eventRepo.Record(ctx, &models.StatusEvent{
			ProjectID:  project.ID,
			FromStatus: tr.From,
			ToStatus:   to,
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			CreatedAt:  tr.Project.UpdatedAt,
		})
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			s.logger.Warn("Illegal status transition",
				zap.String("project_id", projectID.String()),
				zap.String("target", string(to)),
				zap.String("actor_id", actor.ID.String()),
				zap.Error(err))
		}
		return nil, err
	}

	s.metrics.Transition(tr.From, to)
	s.logger.Info("Project status changed",
		zap.String("project_id", projectID.String()),
		zap.String("from", string(tr.From)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID.String()))
	return tr.Project, nil
}

func (s *projectService) Cancel(ctx context.Context, actor auth.Caller, projectID uuid.UUID) (*models.Project, error) {
	return s.AdvanceStatus(ctx, actor, projectID, models.StatusCancelled)
}

func (s *projectService) UpdateProgress(ctx context.Context, actor auth.Caller, projectID uuid.UUID, progress int) (*models.Project, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: progress must be between 0 and 100, got %d", apperrors.ErrInvalidInput, progress)
	}

	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !project.IsAssignedTo(actor.ID, models.RoleEditor) {
		return nil, fmt.Errorf("%w: only the assigned editor may report progress", apperrors.ErrForbidden)
	}

	return s.projectRepo.UpdateProgress(ctx, projectID, progress, actor.ID)
}

func (s *projectService) Events(ctx context.Context, actor auth.Caller, projectID uuid.UUID) ([]*models.StatusEvent, error) {
	if _, err := s.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.eventRepo.ListByProject(ctx, projectID)
}

// canView reports whether actor may read project.
func canView(actor auth.Caller, project *models.Project) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		return project.ClientID == actor.ID
	default:
		return project.IsAssignedTo(actor.ID, actor.Role)
	}
}
