package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/plans"
	"github.com/cutroom-studio/cutroom-engine/pkg/repositories"
)

// memStore is an in-memory stand-in for PostgreSQL. WithinTx serializes
// transactions and restores the previous state when fn fails, which is the
// behavior row locks plus rollback give the real repositories.
type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
	projects map[uuid.UUID]*models.Project
	events   []*models.StatusEvent

	// failOn makes the named repository method return the error.
	failOn map[string]error
	// afterLock runs once after GetForUpdate on a project, outside the store
	// lock's protection, to let a test interleave a competing writer.
	afterLock func(id uuid.UUID)
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*models.Account),
		projects: make(map[uuid.UUID]*models.Project),
		failOn:   make(map[string]error),
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, projects, events := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.accounts, s.projects, s.events = accounts, projects, events
		return err
	}
	return nil
}

func (s *memStore) snapshot() (map[uuid.UUID]*models.Account, map[uuid.UUID]*models.Project, []*models.StatusEvent) {
	accounts := make(map[uuid.UUID]*models.Account, len(s.accounts))
	for id, a := range s.accounts {
		c := *a
		accounts[id] = &c
	}
	projects := make(map[uuid.UUID]*models.Project, len(s.projects))
	for id, p := range s.projects {
		projects[id] = p.Clone()
	}
	return accounts, projects, append([]*models.StatusEvent(nil), s.events...)
}

// with runs fn under the store lock unless ctx is already inside WithinTx.
func (s *memStore) with(ctx context.Context, fn func() error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *memStore) fail(method string) error {
	return s.failOn[method]
}

// --- AccountRepository ---

type memAccounts struct{ s *memStore }

func (r memAccounts) Create(ctx context.Context, account *models.Account) error {
	return r.s.with(ctx, func() error {
		if err := r.s.fail("Create"); err != nil {
			return err
		}
		for _, a := range r.s.accounts {
			if a.Email == account.Email {
				return apperrors.ErrConflict
			}
		}
		if account.ID == uuid.Nil {
			account.ID = uuid.New()
		}
		c := *account
		r.s.accounts[account.ID] = &c
		return nil
	})
}

func (r memAccounts) get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var out *models.Account
	err := r.s.with(ctx, func() error {
		a, ok := r.s.accounts[id]
		if !ok {
			return apperrors.NewNotFound("account", id.String())
		}
		c := *a
		out = &c
		return nil
	})
	return out, err
}

func (r memAccounts) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.get(ctx, id)
}

func (r memAccounts) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.get(ctx, id)
}

func (r memAccounts) List(ctx context.Context) ([]*models.Account, error) {
	var out []*models.Account
	err := r.s.with(ctx, func() error {
		for _, a := range r.s.accounts {
			c := *a
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, err
}

func (r memAccounts) ListStaffByRole(ctx context.Context, role models.Role) ([]*models.Account, error) {
	all, err := r.List(ctx)
	var out []*models.Account
	for _, a := range all {
		if a.Role == role && !a.Disabled {
			out = append(out, a)
		}
	}
	return out, err
}

func (r memAccounts) update(ctx context.Context, method string, id uuid.UUID, fn func(a *models.Account) error) error {
	return r.s.with(ctx, func() error {
		if err := r.s.fail(method); err != nil {
			return err
		}
		a, ok := r.s.accounts[id]
		if !ok {
			return apperrors.NewNotFound("account", id.String())
		}
		return fn(a)
	})
}

func (r memAccounts) AdjustActiveProjects(ctx context.Context, id uuid.UUID, delta int) error {
	return r.update(ctx, "AdjustActiveProjects", id, func(a *models.Account) error {
		if a.ActiveProjects+delta < 0 {
			return &apperrors.ConflictError{Entity: "account", ID: id.String(), Expected: "active_projects would go negative"}
		}
		a.ActiveProjects += delta
		return nil
	})
}

func (r memAccounts) IncrementCycleUsage(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, "IncrementCycleUsage", id, func(a *models.Account) error {
		a.ProjectsUsedThisCycle++
		return nil
	})
}

func (r memAccounts) ResetCycleUsage(ctx context.Context, planIDs []string) (int64, error) {
	var n int64
	err := r.s.with(ctx, func() error {
		for _, a := range r.s.accounts {
			for _, id := range planIDs {
				if a.PlanID == id && a.ProjectsUsedThisCycle != 0 {
					a.ProjectsUsedThisCycle = 0
					n++
				}
			}
		}
		return nil
	})
	return n, err
}

func (r memAccounts) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	return r.update(ctx, "SetDisabled", id, func(a *models.Account) error {
		a.Disabled = disabled
		return nil
	})
}

func (r memAccounts) ChangePlan(ctx context.Context, id uuid.UUID, planID string) error {
	return r.update(ctx, "ChangePlan", id, func(a *models.Account) error {
		a.PlanID = planID
		return nil
	})
}

// --- ProjectRepository ---

type memProjects struct{ s *memStore }

func (r memProjects) Create(ctx context.Context, project *models.Project) error {
	return r.s.with(ctx, func() error {
		if err := r.s.fail("CreateProject"); err != nil {
			return err
		}
		if project.ID == uuid.Nil {
			project.ID = uuid.New()
		}
		now := time.Now().UTC()
		project.CreatedAt, project.UpdatedAt = now, now
		r.s.projects[project.ID] = project.Clone()
		return nil
	})
}

func (r memProjects) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var out *models.Project
	err := r.s.with(ctx, func() error {
		p, ok := r.s.projects[id]
		if !ok {
			return apperrors.NewNotFound("project", id.String())
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r memProjects) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := r.GetByID(ctx, id)
	if err == nil && r.s.afterLock != nil {
		hook := r.s.afterLock
		r.s.afterLock = nil
		hook(id)
	}
	return p, err
}

func (r memProjects) filter(ctx context.Context, keep func(p *models.Project) bool) ([]*models.Project, error) {
	out := make([]*models.Project, 0)
	err := r.s.with(ctx, func() error {
		for _, p := range r.s.projects {
			if keep(p) {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, err
}

func (r memProjects) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error) {
	return r.filter(ctx, func(p *models.Project) bool { return p.ClientID == clientID })
}

func (r memProjects) ListByAssignee(ctx context.Context, staffID uuid.UUID, role models.Role, includeClosed bool) ([]*models.Project, error) {
	return r.filter(ctx, func(p *models.Project) bool {
		return p.IsAssignedTo(staffID, role) && (includeClosed || !p.Status.IsTerminal())
	})
}

func (r memProjects) ListActive(ctx context.Context) ([]*models.Project, error) {
	return r.filter(ctx, func(p *models.Project) bool { return p.Status.CountsAsActive() })
}

func (r memProjects) ListPending(ctx context.Context) ([]*models.Project, error) {
	return r.filter(ctx, func(p *models.Project) bool { return p.Status == models.StatusPending })
}

func (r memProjects) CountOpenByAssignee(ctx context.Context, role models.Role) (map[uuid.UUID]int, error) {
	open, err := r.filter(ctx, func(p *models.Project) bool { return !p.Status.IsTerminal() })
	counts := make(map[uuid.UUID]int)
	for _, p := range open {
		switch {
		case role == models.RoleEditor && p.EditorID != nil:
			counts[*p.EditorID]++
		case role == models.RoleQC && p.QCID != nil:
			counts[*p.QCID]++
		}
	}
	return counts, err
}

func (r memProjects) UpdateGuarded(ctx context.Context, project *models.Project, expected models.ProjectStatus) error {
	return r.s.with(ctx, func() error {
		if err := r.s.fail("UpdateGuarded"); err != nil {
			return err
		}
		stored, ok := r.s.projects[project.ID]
		if !ok {
			return apperrors.NewNotFound("project", project.ID.String())
		}
		if stored.Status != expected {
			return &apperrors.ConflictError{Entity: "project", ID: project.ID.String(),
				Expected: string(expected), Actual: string(stored.Status)}
		}
		r.s.projects[project.ID] = project.Clone()
		return nil
	})
}

func (r memProjects) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, actorID uuid.UUID) (*models.Project, error) {
	var out *models.Project
	err := r.s.with(ctx, func() error {
		p, ok := r.s.projects[id]
		if !ok {
			return apperrors.NewNotFound("project", id.String())
		}
		if p.Status.IsTerminal() {
			return &apperrors.ConflictError{Entity: "project", ID: id.String(),
				Expected: "non-terminal status", Actual: string(p.Status)}
		}
		p.Progress = progress
		actor := actorID
		p.UpdatedBy = &actor
		out = p.Clone()
		return nil
	})
	return out, err
}

// --- StatusEventRepository ---

type memEvents struct{ s *memStore }

func (r memEvents) Record(ctx context.Context, event *models.StatusEvent) error {
	return r.s.with(ctx, func() error {
		if err := r.s.fail("Record"); err != nil {
			return err
		}
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		c := *event
		r.s.events = append(r.s.events, &c)
		return nil
	})
}

func (r memEvents) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.StatusEvent, error) {
	out := make([]*models.StatusEvent, 0)
	err := r.s.with(ctx, func() error {
		for _, e := range r.s.events {
			if e.ProjectID == projectID {
				c := *e
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

var (
	_ repositories.AccountRepository     = memAccounts{}
	_ repositories.ProjectRepository     = memProjects{}
	_ repositories.StatusEventRepository = memEvents{}
	_ TxRunner                           = (*memStore)(nil)
)

// --- fixture ---

var testCapacities = Capacities{Editor: 8, QC: 10}

// fixture wires every service to one memStore.
type fixture struct {
	store       *memStore
	accounts    memAccounts
	projects    memProjects
	events      memEvents
	catalog     *plans.Catalog
	assignment  AssignmentService
	projectSvc  ProjectService
	accountSvc  AccountService
	workloadSvc WorkloadService
	admin       auth.Caller
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:    store,
		accounts: memAccounts{store},
		projects: memProjects{store},
		events:   memEvents{store},
		catalog:  plans.Default(),
	}
	logger := zapNop()
	f.assignment = NewAssignmentService(store, f.accounts, f.projects, f.events, f.catalog, testCapacities, nil, logger)
	f.projectSvc = NewProjectService(store, f.accounts, f.projects, f.events, f.catalog, nil, logger)
	f.accountSvc = NewAccountService(store, f.accounts, f.catalog, logger)
	f.workloadSvc = NewWorkloadService(f.accounts, f.projects, testCapacities, nil, logger)

	admin := f.seedAccount(models.RoleAdmin, "")
	f.admin = auth.Caller{ID: admin.ID, Role: models.RoleAdmin}
	return f
}

func (f *fixture) seedAccount(role models.Role, planID string) *models.Account {
	a := &models.Account{
		ID:          uuid.New(),
		Email:       uuid.NewString() + "@example.com",
		DisplayName: string(role),
		Role:        role,
		PlanID:      planID,
	}
	f.store.accounts[a.ID] = a
	return a
}

func (f *fixture) seedProject(clientID uuid.UUID, status models.ProjectStatus, editorID, qcID *uuid.UUID) *models.Project {
	p := &models.Project{
		ID:            uuid.New(),
		ClientID:      clientID,
		Title:         "Brand film",
		Status:        status,
		Priority:      models.PriorityMedium,
		RevisionLimit: models.Limited(2),
		EditorID:      editorID,
		QCID:          qcID,
	}
	f.store.projects[p.ID] = p
	return p
}

// fillQueue gives staffID n open projects in role.
func (f *fixture) fillQueue(staffID uuid.UUID, role models.Role, n int) {
	client := f.seedAccount(models.RoleClient, "agency")
	for i := 0; i < n; i++ {
		id := staffID
		editor := uuid.New()
		if role == models.RoleEditor {
			f.seedProject(client.ID, models.StatusInProgress, &id, nil)
		} else {
			f.seedProject(client.ID, models.StatusQCReview, &editor, &id)
		}
	}
}

func (f *fixture) account(id uuid.UUID) models.Account {
	return *f.store.accounts[id]
}

func (f *fixture) project(id uuid.UUID) *models.Project {
	return f.store.projects[id].Clone()
}

func callerOf(a *models.Account) auth.Caller {
	return auth.Caller{ID: a.ID, Role: a.Role}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
