package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/metrics"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/repositories"
)

// Classification thresholds, in percent of capacity.
const (
	busyThreshold       = 50.0
	overloadedThreshold = 90.0
)

// Capacities holds the per-role project capacity.
type Capacities struct {
	Editor int
	QC     int
}

// For returns the capacity of role; roles without a queue have none.
func (c Capacities) For(role models.Role) int {
	switch role {
	case models.RoleEditor:
		return c.Editor
	case models.RoleQC:
		return c.QC
	}
	return 0
}

// Classify maps a utilization percentage to its workload class.
func Classify(utilizationPct float64) models.WorkloadClass {
	switch {
	case utilizationPct >= overloadedThreshold:
		return models.WorkloadOverloaded
	case utilizationPct >= busyThreshold:
		return models.WorkloadBusy
	default:
		return models.WorkloadAvailable
	}
}

// Snapshot derives staffID's workload from projects: the non-terminal ones
// where staffID is the editor (role editor) or QC reviewer (role qc).
func Snapshot(staffID uuid.UUID, role models.Role, capacity int, projects []*models.Project) models.WorkloadSnapshot {
	active := 0
	for _, p := range projects {
		if !p.Status.IsTerminal() && p.IsAssignedTo(staffID, role) {
			active++
		}
	}
	return snapshotFromCount(staffID, role, active, capacity)
}

// snapshotFromCount builds a snapshot from a known active count. A
// non-positive capacity reads as fully used so the member is never offered.
func snapshotFromCount(staffID uuid.UUID, role models.Role, active, capacity int) models.WorkloadSnapshot {
	pct := 100.0
	if capacity > 0 {
		pct = float64(active) / float64(capacity) * 100
	}
	return models.WorkloadSnapshot{
		StaffID:        staffID,
		Role:           role,
		Active:         active,
		Capacity:       capacity,
		UtilizationPct: pct,
		Classification: Classify(pct),
	}
}

// WorkloadService serves live workload projections for staff.
type WorkloadService interface {
	// Board returns a snapshot for every enabled editor and QC reviewer.
	Board(ctx context.Context) ([]models.WorkloadSnapshot, error)
	// ForStaff returns the snapshot of a single staff member.
	ForStaff(ctx context.Context, staffID uuid.UUID) (models.WorkloadSnapshot, error)
	// SuggestStaff returns members of role with room, least utilized first.
	SuggestStaff(ctx context.Context, role models.Role) ([]models.WorkloadSnapshot, error)
}

type workloadService struct {
	accountRepo repositories.AccountRepository
	projectRepo repositories.ProjectRepository
	capacities  Capacities
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewWorkloadService creates a new workload service.
func NewWorkloadService(
	accountRepo repositories.AccountRepository,
	projectRepo repositories.ProjectRepository,
	capacities Capacities,
	m *metrics.Metrics,
	logger *zap.Logger,
) WorkloadService {
	return &workloadService{
		accountRepo: accountRepo,
		projectRepo: projectRepo,
		capacities:  capacities,
		metrics:     m,
		logger:      logger.Named("workload"),
	}
}

func (s *workloadService) Board(ctx context.Context) ([]models.WorkloadSnapshot, error) {
	var board []models.WorkloadSnapshot
	for _, role := range []models.Role{models.RoleEditor, models.RoleQC} {
		snaps, err := s.roleBoard(ctx, role)
		if err != nil {
			return nil, err
		}
		board = append(board, snaps...)
	}
	return board, nil
}

func (s *workloadService) ForStaff(ctx context.Context, staffID uuid.UUID) (models.WorkloadSnapshot, error) {
	account, err := s.accountRepo.GetByID(ctx, staffID)
	if err != nil {
		return models.WorkloadSnapshot{}, err
	}
	if !account.Role.IsStaff() {
		return models.WorkloadSnapshot{}, fmt.Errorf("%w: %s has no project queue", apperrors.ErrInvalidRole, account.Role)
	}

	projects, err := s.projectRepo.ListByAssignee(ctx, staffID, account.Role, false)
	if err != nil {
		return models.WorkloadSnapshot{}, fmt.Errorf("failed to list projects for %s: %w", staffID, err)
	}

	snap := Snapshot(staffID, account.Role, s.capacities.For(account.Role), projects)
	snap.DisplayName = account.DisplayName
	s.metrics.StaffUtilization(snap.Role, snap.StaffID, snap.UtilizationPct)
	return snap, nil
}

func (s *workloadService) SuggestStaff(ctx context.Context, role models.Role) ([]models.WorkloadSnapshot, error) {
	if !role.IsStaff() {
		return nil, fmt.Errorf("%w: %s has no project queue", apperrors.ErrInvalidRole, role)
	}

	snaps, err := s.roleBoard(ctx, role)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.WorkloadSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if snap.HasRoom() {
			candidates = append(candidates, snap)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].UtilizationPct != candidates[j].UtilizationPct {
			return candidates[i].UtilizationPct < candidates[j].UtilizationPct
		}
		return candidates[i].StaffID.String() < candidates[j].StaffID.String()
	})
	return candidates, nil
}

func (s *workloadService) roleBoard(ctx context.Context, role models.Role) ([]models.WorkloadSnapshot, error) {
	staff, err := s.accountRepo.ListStaffByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s staff: %w", role, err)
	}
	counts, err := s.projectRepo.CountOpenByAssignee(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s workload: %w", role, err)
	}

	capacity := s.capacities.For(role)
	snaps := make([]models.WorkloadSnapshot, 0, len(staff))
	for _, member := range staff {
		snap := snapshotFromCount(member.ID, role, counts[member.ID], capacity)
		snap.DisplayName = member.DisplayName
		s.metrics.StaffUtilization(role, member.ID, snap.UtilizationPct)
		snaps = append(snaps, snap)
	}

	s.logger.Debug("Computed workload",
		zap.String("role", string(role)),
		zap.Int("staff", len(snaps)))
	return snaps, nil
}
