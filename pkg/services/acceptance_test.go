package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// acceptanceContext drives the services through feature files against the
// in-memory store.
type acceptanceContext struct {
	f        *fixture
	accounts map[string]*models.Account
	projects map[string]uuid.UUID
	lastErr  error
}

func (a *acceptanceContext) reset() {
	a.f = newFixture()
	a.accounts = make(map[string]*models.Account)
	a.projects = make(map[string]uuid.UUID)
	a.lastErr = nil
}

func (a *acceptanceContext) aClientOnPlan(name, plan string) error {
	if _, err := a.f.catalog.Lookup(plan); err != nil {
		return err
	}
	a.accounts[name] = a.f.seedAccount(models.RoleClient, plan)
	return nil
}

func (a *acceptanceContext) aClientOnPlanWithUsage(name, plan string, used int) error {
	if err := a.aClientOnPlan(name, plan); err != nil {
		return err
	}
	a.f.store.accounts[a.accounts[name].ID].ProjectsUsedThisCycle = used
	return nil
}

func (a *acceptanceContext) anEditor(name string) error {
	a.accounts[name] = a.f.seedAccount(models.RoleEditor, "")
	return nil
}

func (a *acceptanceContext) anEditorWithActive(name string, n int) error {
	a.accounts[name] = a.f.seedAccount(models.RoleEditor, "")
	a.f.fillQueue(a.accounts[name].ID, models.RoleEditor, n)
	return nil
}

func (a *acceptanceContext) aQCReviewer(name string) error {
	a.accounts[name] = a.f.seedAccount(models.RoleQC, "")
	return nil
}

func (a *acceptanceContext) account(name string) (*models.Account, error) {
	acc, ok := a.accounts[name]
	if !ok {
		return nil, fmt.Errorf("unknown account %q", name)
	}
	return acc, nil
}

func (a *acceptanceContext) project(title string) (uuid.UUID, error) {
	id, ok := a.projects[title]
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown project %q", title)
	}
	return id, nil
}

func (a *acceptanceContext) requestsAProject(name, title string) error {
	client, err := a.account(name)
	if err != nil {
		return err
	}
	p, err := a.f.projectSvc.Create(context.Background(), callerOf(client), CreateProjectInput{Title: title})
	a.lastErr = err
	if err == nil {
		a.projects[title] = p.ID
	}
	return nil
}

func (a *acceptanceContext) adminAssigns(title, editorName string) error {
	return a.assign(title, editorName, "")
}

func (a *acceptanceContext) adminAssignsWithQC(title, editorName, qcName string) error {
	return a.assign(title, editorName, qcName)
}

func (a *acceptanceContext) assign(title, editorName, qcName string) error {
	projectID, err := a.project(title)
	if err != nil {
		return err
	}
	editor, err := a.account(editorName)
	if err != nil {
		return err
	}
	var qcID *uuid.UUID
	if qcName != "" {
		qc, err := a.account(qcName)
		if err != nil {
			return err
		}
		qcID = uuidPtr(qc.ID)
	}
	_, a.lastErr = a.f.assignment.Assign(context.Background(), a.f.admin, projectID, editor.ID, qcID)
	return nil
}

func (a *acceptanceContext) movesTo(name, title, status string) error {
	actor, err := a.account(name)
	if err != nil {
		return err
	}
	projectID, err := a.project(title)
	if err != nil {
		return err
	}
	_, a.lastErr = a.f.projectSvc.AdvanceStatus(context.Background(), callerOf(actor), projectID, models.ProjectStatus(status))
	return nil
}

func (a *acceptanceContext) hasActiveProjects(name string, n int) error {
	acc, err := a.account(name)
	if err != nil {
		return err
	}
	if got := a.f.account(acc.ID).ActiveProjects; got != n {
		return fmt.Errorf("expected %d active projects, got %d", n, got)
	}
	return nil
}

func (a *acceptanceContext) projectIs(title, status string) error {
	id, err := a.project(title)
	if err != nil {
		return err
	}
	if got := a.f.project(id).Status; string(got) != status {
		return fmt.Errorf("expected %s to be %s, got %s", title, status, got)
	}
	return nil
}

func (a *acceptanceContext) projectHasRevisions(title string, n int) error {
	id, err := a.project(title)
	if err != nil {
		return err
	}
	if got := a.f.project(id).RevisionCount; got != n {
		return fmt.Errorf("expected %d revisions, got %d", n, got)
	}
	return nil
}

func (a *acceptanceContext) requestFailsWith(msg string) error {
	if a.lastErr == nil {
		return errors.New("expected the last request to fail")
	}
	if !strings.Contains(a.lastErr.Error(), msg) && !containsWrapped(a.lastErr, msg) {
		return fmt.Errorf("expected error containing %q, got %v", msg, a.lastErr)
	}
	return nil
}

func (a *acceptanceContext) requestSucceeds() error {
	if a.lastErr != nil {
		return fmt.Errorf("expected success, got %v", a.lastErr)
	}
	return nil
}

// containsWrapped walks the Unwrap chain looking for a sentinel whose text is msg.
func containsWrapped(err error, msg string) bool {
	for err != nil {
		if err.Error() == msg {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func initializeAcceptanceScenario(sc *godog.ScenarioContext) {
	a := &acceptanceContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		a.reset()
		return ctx, nil
	})

	sc.Step(`^a client "([^"]*)" on the "([^"]*)" plan$`, a.aClientOnPlan)
	sc.Step(`^a client "([^"]*)" on the "([^"]*)" plan with (\d+) projects used this cycle$`, a.aClientOnPlanWithUsage)
	sc.Step(`^an editor "([^"]*)"$`, a.anEditor)
	sc.Step(`^an editor "([^"]*)" with (\d+) active projects$`, a.anEditorWithActive)
	sc.Step(`^a QC reviewer "([^"]*)"$`, a.aQCReviewer)
	sc.Step(`^"([^"]*)" requests a project "([^"]*)"$`, a.requestsAProject)
	sc.Step(`^the admin assigns "([^"]*)" to editor "([^"]*)"$`, a.adminAssigns)
	sc.Step(`^the admin assigns "([^"]*)" to editor "([^"]*)" and QC "([^"]*)"$`, a.adminAssignsWithQC)
	sc.Step(`^"([^"]*)" moves "([^"]*)" to "([^"]*)"$`, a.movesTo)
	sc.Step(`^"([^"]*)" has (\d+) active projects?$`, a.hasActiveProjects)
	sc.Step(`^"([^"]*)" is "([^"]*)"$`, a.projectIs)
	sc.Step(`^"([^"]*)" has (\d+) revisions?$`, a.projectHasRevisions)
	sc.Step(`^the request fails with "([^"]*)"$`, a.requestFailsWith)
	sc.Step(`^the request succeeds$`, a.requestSucceeds)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeAcceptanceScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
