package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
)

// Role is the closed set of account roles.
type Role string

// Role constants for account roles.
const (
	RoleClient Role = "client"
	RoleEditor Role = "editor"
	RoleQC     Role = "qc"
	RoleAdmin  Role = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []Role{RoleClient, RoleEditor, RoleQC, RoleAdmin}

// IsValidRole checks if the given role is valid.
func IsValidRole(role Role) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole converts a role string to a Role. The legacy "employee" role is
// rejected: editors and QC reviewers are distinct roles.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidRole, s)
	}
	return role, nil
}

// IsStaff reports whether the role carries a project queue.
func (r Role) IsStaff() bool {
	return r == RoleEditor || r == RoleQC
}

// Account is a person using the system.
// ActiveProjects counts the client's projects past pending and not terminal;
// it is only changed inside the transaction that changes a project's status.
// ProjectsUsedThisCycle is read for monthly plans only.
type Account struct {
	ID                    uuid.UUID `json:"id"`
	Email                 string    `json:"email"`
	DisplayName           string    `json:"display_name"`
	Role                  Role      `json:"role"`
	PlanID                string    `json:"plan_id,omitempty"`
	ActiveProjects        int       `json:"active_projects"`
	ProjectsUsedThisCycle int       `json:"projects_used_this_cycle"`
	Disabled              bool      `json:"disabled"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
