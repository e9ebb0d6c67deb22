package models

// BillingCadence is how a plan is billed, and decides which usage counter the
// entitlement check reads.
type BillingCadence string

const (
	CadencePerVideo BillingCadence = "per-video"
	CadenceMonthly  BillingCadence = "monthly"
)

// IsValidBillingCadence checks if the given cadence is valid.
func IsValidBillingCadence(c BillingCadence) bool {
	return c == CadencePerVideo || c == CadenceMonthly
}

// PlanEntitlement is a subscription tier and the limits it grants.
// Entitlements are immutable and loaded from the static plan catalog.
type PlanEntitlement struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	PriceCents    int64          `json:"price_cents" yaml:"price_cents"`
	Currency      string         `json:"currency" yaml:"currency"`
	Cadence       BillingCadence `json:"billing_cadence" yaml:"billing_cadence"`
	ProjectLimit  Limit          `json:"project_limit" yaml:"project_limit"`
	RevisionLimit Limit          `json:"revision_limit" yaml:"revision_limit"`
	Features      []string       `json:"features" yaml:"features"`
}

// IsMonthly reports whether the plan is billed per calendar cycle.
func (p PlanEntitlement) IsMonthly() bool {
	return p.Cadence == CadenceMonthly
}
