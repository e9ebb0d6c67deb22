package models

import "github.com/google/uuid"

// WorkloadClass is the traffic-light view of a staff member's utilization.
type WorkloadClass string

const (
	WorkloadAvailable  WorkloadClass = "available"
	WorkloadBusy       WorkloadClass = "busy"
	WorkloadOverloaded WorkloadClass = "overloaded"
)

// WorkloadSnapshot is derived on every read and never stored.
// UtilizationPct is not clamped: over-allocation reads above 100.
type WorkloadSnapshot struct {
	StaffID        uuid.UUID     `json:"staff_id"`
	DisplayName    string        `json:"display_name,omitempty"`
	Role           Role          `json:"role"`
	Active         int           `json:"active"`
	Capacity       int           `json:"capacity"`
	UtilizationPct float64       `json:"utilization_pct"`
	Classification WorkloadClass `json:"classification"`
}

// HasRoom reports whether one more project fits under capacity.
func (w WorkloadSnapshot) HasRoom() bool {
	return w.Active < w.Capacity
}
