package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/repositories"
)

// RegisterAccountInput carries a new account. PlanID is required for clients
// and ignored for every other role.
type RegisterAccountInput struct {
	Email       string
	DisplayName string
	Role        string
	PlanID      string
}

// QuotaSummary is the entitlement projection for one client.
type QuotaSummary struct {
	AccountID             uuid.UUID              `json:"account_id"`
	Plan                  models.PlanEntitlement `json:"plan"`
	ActiveProjects        int                    `json:"active_projects"`
	ProjectsUsedThisCycle int                    `json:"projects_used_this_cycle"`
	Remaining             models.Limit           `json:"remaining"`
	CanCreateProject      bool                   `json:"can_create_project"`
}

// AccountService defines account administration and quota projections.
type AccountService interface {
	Register(ctx context.Context, actor auth.Caller, in RegisterAccountInput) (*models.Account, error)
	Get(ctx context.Context, actor auth.Caller, accountID uuid.UUID) (*models.Account, error)
	List(ctx context.Context, actor auth.Caller) ([]*models.Account, error)
	ChangePlan(ctx context.Context, actor auth.Caller, accountID uuid.UUID, planID string) (*models.Account, error)
	SetDisabled(ctx context.Context, actor auth.Caller, accountID uuid.UUID, disabled bool) (*models.Account, error)
	Quota(ctx context.Context, actor auth.Caller, accountID uuid.UUID) (*QuotaSummary, error)
	// ResetCycleUsage zeroes the cycle counter of every client on a monthly
	// plan. Scheduling the rollover is left to the caller.
	ResetCycleUsage(ctx context.Context, actor auth.Caller) (int64, error)
}

type accountService struct {
	tx          TxRunner
	accountRepo repositories.AccountRepository
	plans       PlanLookup
	logger      *zap.Logger
}

// NewAccountService creates a new account service with dependencies.
func NewAccountService(tx TxRunner, accountRepo repositories.AccountRepository, plans PlanLookup, logger *zap.Logger) AccountService {
	return &accountService{
		tx:          tx,
		accountRepo: accountRepo,
		plans:       plans,
		logger:      logger.Named("accounts"),
	}
}

func (s *accountService) Register(ctx context.Context, actor auth.Caller, in RegisterAccountInput) (*models.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", apperrors.ErrInvalidInput)
	}

	account := &models.Account{
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Role:        role,
	}
	if role == models.RoleClient {
		if err := s.requirePlan(in.PlanID); err != nil {
			return nil, err
		}
		account.PlanID = in.PlanID
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account registered",
		zap.String("account_id", account.ID.String()),
		zap.String("role", string(role)),
		zap.String("plan_id", account.PlanID))
	return account, nil
}

func (s *accountService) Get(ctx context.Context, actor auth.Caller, accountID uuid.UUID) (*models.Account, error) {
	if actor.Role != models.RoleAdmin && actor.ID != accountID {
		return nil, fmt.Errorf("%w: accounts are visible to their owner and admins", apperrors.ErrForbidden)
	}
	return s.accountRepo.GetByID(ctx, accountID)
}

func (s *accountService) List(ctx context.Context, actor auth.Caller) ([]*models.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.accountRepo.List(ctx)
}

func (s *accountService) ChangePlan(ctx context.Context, actor auth.Caller, accountID uuid.UUID, planID string) (*models.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.requirePlan(planID); err != nil {
		return nil, err
	}

	var updated *models.Account
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		account, err := s.accountRepo.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Role != models.RoleClient {
			return fmt.Errorf("%w: only client accounts hold a plan", apperrors.ErrInvalidInput)
		}
		if err := s.accountRepo.ChangePlan(ctx, accountID, planID); err != nil {
			return err
		}
		updated, err = s.accountRepo.GetByID(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Plan changed",
		zap.String("account_id", accountID.String()),
		zap.String("plan_id", planID))
	return updated, nil
}

func (s *accountService) SetDisabled(ctx context.Context, actor auth.Caller, accountID uuid.UUID, disabled bool) (*models.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if actor.ID == accountID && disabled {
		return nil, fmt.Errorf("%w: admins cannot disable themselves", apperrors.ErrInvalidInput)
	}

	if err := s.accountRepo.SetDisabled(ctx, accountID, disabled); err != nil {
		return nil, err
	}

	s.logger.Info("Account disabled flag changed",
		zap.String("account_id", accountID.String()),
		zap.Bool("disabled", disabled))
	return s.accountRepo.GetByID(ctx, accountID)
}

func (s *accountService) Quota(ctx context.Context, actor auth.Caller, accountID uuid.UUID) (*QuotaSummary, error) {
	account, err := s.Get(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	if account.Role != models.RoleClient {
		return nil, fmt.Errorf("%w: only client accounts hold a plan", apperrors.ErrInvalidInput)
	}
	plan, err := s.plans.Lookup(account.PlanID)
	if err != nil {
		return nil, err
	}

	return &QuotaSummary{
		AccountID:             account.ID,
		Plan:                  plan,
		ActiveProjects:        account.ActiveProjects,
		ProjectsUsedThisCycle: account.ProjectsUsedThisCycle,
		Remaining:             RemainingQuota(account, plan),
		CanCreateProject:      !account.Disabled && CanCreateProject(account, plan),
	}, nil
}

func (s *accountService) ResetCycleUsage(ctx context.Context, actor auth.Caller) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}

	var monthly []string
	for _, plan := range s.plans.All() {
		if plan.IsMonthly() {
			monthly = append(monthly, plan.ID)
		}
	}

	n, err := s.accountRepo.ResetCycleUsage(ctx, monthly)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Cycle usage reset",
		zap.Strings("plans", monthly),
		zap.Int64("accounts", n))
	return n, nil
}

func requireAdmin(actor auth.Caller) error {
	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("%w: admin role required", apperrors.ErrForbidden)
	}
	return nil
}

func (s *accountService) requirePlan(planID string) error {
	if !s.plans.Exists(planID) {
		return apperrors.NewNotFound("plan", planID)
	}
	return nil
}
