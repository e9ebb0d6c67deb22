package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/services"
)

// mockProjectService is a configurable mock for all handler tests.
type mockProjectService struct {
	project  *models.Project
	projects []*models.Project
	events   []*models.StatusEvent
	err      error

	lastCaller   auth.Caller
	lastCreate   services.CreateProjectInput
	lastStatus   models.ProjectStatus
	lastProgress int
}

func (m *mockProjectService) result(actor auth.Caller, id uuid.UUID) (*models.Project, error) {
	m.lastCaller = actor
	if m.err != nil {
		return nil, m.err
	}
	if m.project != nil {
		return m.project, nil
	}
	return &models.Project{ID: id, Title: "Test Project", Status: models.StatusPending}, nil
}

func (m *mockProjectService) Create(ctx context.Context, actor auth.Caller, in services.CreateProjectInput) (*models.Project, error) {
	m.lastCreate = in
	return m.result(actor, uuid.New())
}

func (m *mockProjectService) Get(ctx context.Context, actor auth.Caller, projectID uuid.UUID) (*models.Project, error) {
	return m.result(actor, projectID)
}

func (m *mockProjectService) List(ctx context.Context, actor auth.Caller) ([]*models.Project, error) {
	m.lastCaller = actor
	return m.projects, m.err
}

func (m *mockProjectService) AdvanceStatus(ctx context.Context, actor auth.Caller, projectID uuid.UUID, to models.ProjectStatus) (*models.Project, error) {
	m.lastStatus = to
	return m.result(actor, projectID)
}

func (m *mockProjectService) Cancel(ctx context.Context, actor auth.Caller, projectID uuid.UUID) (*models.Project, error) {
	return m.AdvanceStatus(ctx, actor, projectID, models.StatusCancelled)
}

func (m *mockProjectService) UpdateProgress(ctx context.Context, actor auth.Caller, projectID uuid.UUID, progress int) (*models.Project, error) {
	m.lastProgress = progress
	return m.result(actor, projectID)
}

func (m *mockProjectService) Events(ctx context.Context, actor auth.Caller, projectID uuid.UUID) ([]*models.StatusEvent, error) {
	m.lastCaller = actor
	return m.events, m.err
}

// mockAssignmentService records the staff it was asked to assign.
type mockAssignmentService struct {
	project *models.Project
	err     error

	lastEditor uuid.UUID
	lastQC     *uuid.UUID
}

func (m *mockAssignmentService) Assign(ctx context.Context, actor auth.Caller, projectID, editorID uuid.UUID, qcID *uuid.UUID) (*models.Project, error) {
	m.lastEditor, m.lastQC = editorID, qcID
	if m.err != nil {
		return nil, m.err
	}
	if m.project != nil {
		return m.project, nil
	}
	return &models.Project{ID: projectID, Status: models.StatusAssigned, EditorID: &editorID, QCID: qcID}, nil
}

func (m *mockAssignmentService) AssignQC(ctx context.Context, actor auth.Caller, projectID, qcID uuid.UUID) (*models.Project, error) {
	m.lastQC = &qcID
	if m.err != nil {
		return nil, m.err
	}
	return &models.Project{ID: projectID, Status: models.StatusInProgress, QCID: &qcID}, nil
}

// mockAccountService is a configurable account service mock.
type mockAccountService struct {
	account  *models.Account
	accounts []*models.Account
	quota    *services.QuotaSummary
	reset    int64
	err      error

	lastRegister services.RegisterAccountInput
	lastPlan     string
	lastDisabled bool
}

func (m *mockAccountService) one(id uuid.UUID) (*models.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.account != nil {
		return m.account, nil
	}
	return &models.Account{ID: id, Email: "test@example.com", Role: models.RoleClient, PlanID: "basic"}, nil
}

func (m *mockAccountService) Register(ctx context.Context, actor auth.Caller, in services.RegisterAccountInput) (*models.Account, error) {
	m.lastRegister = in
	return m.one(uuid.New())
}

func (m *mockAccountService) Get(ctx context.Context, actor auth.Caller, accountID uuid.UUID) (*models.Account, error) {
	return m.one(accountID)
}

func (m *mockAccountService) List(ctx context.Context, actor auth.Caller) ([]*models.Account, error) {
	return m.accounts, m.err
}

func (m *mockAccountService) ChangePlan(ctx context.Context, actor auth.Caller, accountID uuid.UUID, planID string) (*models.Account, error) {
	m.lastPlan = planID
	return m.one(accountID)
}

func (m *mockAccountService) SetDisabled(ctx context.Context, actor auth.Caller, accountID uuid.UUID, disabled bool) (*models.Account, error) {
	m.lastDisabled = disabled
	return m.one(accountID)
}

func (m *mockAccountService) Quota(ctx context.Context, actor auth.Caller, accountID uuid.UUID) (*services.QuotaSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.quota, nil
}

func (m *mockAccountService) ResetCycleUsage(ctx context.Context, actor auth.Caller) (int64, error) {
	return m.reset, m.err
}

// mockWorkloadService returns canned snapshots.
type mockWorkloadService struct {
	board    []models.WorkloadSnapshot
	snapshot models.WorkloadSnapshot
	err      error
	lastRole models.Role
}

func (m *mockWorkloadService) Board(ctx context.Context) ([]models.WorkloadSnapshot, error) {
	return m.board, m.err
}

func (m *mockWorkloadService) ForStaff(ctx context.Context, staffID uuid.UUID) (models.WorkloadSnapshot, error) {
	return m.snapshot, m.err
}

func (m *mockWorkloadService) SuggestStaff(ctx context.Context, role models.Role) ([]models.WorkloadSnapshot, error) {
	m.lastRole = role
	return m.board, m.err
}

// asCaller returns req carrying an authenticated caller.
func asCaller(req *http.Request, caller auth.Caller) *http.Request {
	return req.WithContext(auth.WithCaller(req.Context(), caller))
}
