package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/database"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// AccountRepository defines the interface for account data access.
// Every method runs on the transaction in ctx when there is one.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// GetForUpdate reads the account and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	// ListStaffByRole returns enabled accounts holding role, ordered by id.
	ListStaffByRole(ctx context.Context, role models.Role) ([]*models.Account, error)
	// AdjustActiveProjects adds delta to active_projects. The write is guarded
	// so the counter never goes negative.
	AdjustActiveProjects(ctx context.Context, id uuid.UUID, delta int) error
	IncrementCycleUsage(ctx context.Context, id uuid.UUID) error
	// ResetCycleUsage zeroes projects_used_this_cycle for every account on one
	// of planIDs and returns how many rows changed.
	ResetCycleUsage(ctx context.Context, planIDs []string) (int64, error)
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error
	ChangePlan(ctx context.Context, id uuid.UUID, planID string) error
}

type accountRepository struct{}

// NewAccountRepository creates a new account repository.
func NewAccountRepository() AccountRepository {
	return &accountRepository{}
}

const accountColumns = `id, email, display_name, role, COALESCE(plan_id, ''),
	active_projects, projects_used_this_cycle, disabled, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, email, display_name, role, plan_id,
			active_projects, projects_used_this_cycle, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)`

	_, err = q.Exec(ctx, query,
		account.ID,
		account.Email,
		account.DisplayName,
		account.Role,
		account.PlanID,
		account.ActiveProjects,
		account.ProjectsUsedThisCycle,
		account.Disabled,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("account with email %q already exists: %w", account.Email, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *accountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *accountRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.Account, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	account, err := scanAccount(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("account", id.String())
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
}

func (r *accountRepository) ListStaffByRole(ctx context.Context, role models.Role) ([]*models.Account, error) {
	return r.list(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE role = $1 AND NOT disabled
		ORDER BY id`, role)
}

func (r *accountRepository) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (r *accountRepository) AdjustActiveProjects(ctx context.Context, id uuid.UUID, delta int) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET active_projects = active_projects + $2, updated_at = $3
		WHERE id = $1 AND active_projects + $2 >= 0`

	result, err := q.Exec(ctx, query, id, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to adjust active projects: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missOrConflict(ctx, q, id, "active_projects would go negative")
	}
	return nil
}

func (r *accountRepository) IncrementCycleUsage(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, id, "increment cycle usage", `
		UPDATE accounts
		SET projects_used_this_cycle = projects_used_this_cycle + 1, updated_at = $2
		WHERE id = $1`, time.Now().UTC())
}

func (r *accountRepository) ResetCycleUsage(ctx context.Context, planIDs []string) (int64, error) {
	if len(planIDs) == 0 {
		return 0, nil
	}

	q, err := database.GetQuerier(ctx)
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE accounts
		SET projects_used_this_cycle = 0, updated_at = $2
		WHERE plan_id = ANY($1) AND projects_used_this_cycle <> 0`

	result, err := q.Exec(ctx, query, planIDs, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset cycle usage: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *accountRepository) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	return r.exec(ctx, id, "set disabled", `
		UPDATE accounts SET disabled = $2, updated_at = $3 WHERE id = $1`,
		disabled, time.Now().UTC())
}

func (r *accountRepository) ChangePlan(ctx context.Context, id uuid.UUID, planID string) error {
	return r.exec(ctx, id, "change plan", `
		UPDATE accounts SET plan_id = $2, updated_at = $3 WHERE id = $1`,
		planID, time.Now().UTC())
}

// exec runs a single-row update keyed by id as its first parameter.
func (r *accountRepository) exec(ctx context.Context, id uuid.UUID, op, query string, args ...any) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFound("account", id.String())
	}
	return nil
}

// missOrConflict distinguishes a missing row from a guard that did not hold.
func (r *accountRepository) missOrConflict(ctx context.Context, q database.Querier, id uuid.UUID, reason string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return apperrors.NewNotFound("account", id.String())
	}
	return &apperrors.ConflictError{Entity: "account", ID: id.String(), Expected: reason}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.DisplayName,
		&a.Role,
		&a.PlanID,
		&a.ActiveProjects,
		&a.ProjectsUsedThisCycle,
		&a.Disabled,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
