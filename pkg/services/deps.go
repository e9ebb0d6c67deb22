package services

import (
	"context"
	"time"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// TxRunner runs fn inside one transaction. Repositories called with the
// context passed to fn take part in it. *database.Transactor implements it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PlanLookup resolves plan entitlements. *plans.Catalog implements it.
type PlanLookup interface {
	Lookup(planID string) (models.PlanEntitlement, error)
	Exists(planID string) bool
	All() []models.PlanEntitlement
}

// Clock returns the current time; tests pin it.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
