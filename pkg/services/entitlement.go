package services

import (
	"fmt"

	"github.com/jinzhu/inflection"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// CanCreateProject decides whether account may put one more project in play
// under plan. Monthly plans check cycle usage against the limit and allow
// only one project in flight, unlimited or not. Per-video plans check active
// projects against the limit, which may be unlimited.
func CanCreateProject(account *models.Account, plan models.PlanEntitlement) bool {
	return checkEntitlement(account, plan) == ""
}

// RemainingQuota reports how many more projects the plan allows: per cycle
// for monthly plans, concurrently for per-video plans.
func RemainingQuota(account *models.Account, plan models.PlanEntitlement) models.Limit {
	if plan.IsMonthly() {
		return plan.ProjectLimit.Remaining(account.ProjectsUsedThisCycle)
	}
	return plan.ProjectLimit.Remaining(account.ActiveProjects)
}

// RequireCanCreateProject is CanCreateProject returning a QuotaError that
// explains the refusal.
func RequireCanCreateProject(account *models.Account, plan models.PlanEntitlement) error {
	if msg := checkEntitlement(account, plan); msg != "" {
		return &apperrors.QuotaError{
			AccountID: account.ID.String(),
			PlanID:    plan.ID,
			Message:   msg,
		}
	}
	return nil
}

// checkEntitlement returns the refusal message, or "" when allowed.
// An unlimited limit skips the count comparison only; the one-in-flight rule
// still binds every monthly plan.
func checkEntitlement(account *models.Account, plan models.PlanEntitlement) string {
	limit, _ := plan.ProjectLimit.Count()

	if plan.IsMonthly() {
		if !plan.ProjectLimit.Allows(account.ProjectsUsedThisCycle) {
			return fmt.Sprintf("%s allows %s per billing cycle and %d %s been used",
				plan.Name, countNoun(limit, "project"), account.ProjectsUsedThisCycle,
				hasHave(account.ProjectsUsedThisCycle))
		}
		if account.ActiveProjects >= 1 {
			return fmt.Sprintf("%s allows one project in flight at a time", plan.Name)
		}
		return ""
	}

	if !plan.ProjectLimit.Allows(account.ActiveProjects) {
		return fmt.Sprintf("%s allows %s at a time and %d %s active",
			plan.Name, countNoun(limit, "active project"), account.ActiveProjects,
			isAre(account.ActiveProjects))
	}
	return ""
}

// countNoun renders "1 project" or "3 projects".
func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}

func hasHave(n int) string {
	if n == 1 {
		return "has"
	}
	return "have"
}

func isAre(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}
