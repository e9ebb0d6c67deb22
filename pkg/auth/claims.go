// Package auth validates bearer tokens issued by the identity provider and
// places the caller's id and role on the request context.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// CallerKey is the context key for the resolved Caller.
	CallerKey contextKey = "caller"
)

// Claims represents the JWT claims issued by the identity provider.
// Subject carries the account UUID.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// Caller is the trusted identity attached to every operation.
type Caller struct {
	ID   uuid.UUID
	Role models.Role
}

// Is reports whether the caller holds one of roles.
func (c Caller) Is(roles ...models.Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// Caller converts validated claims into a Caller. Unknown roles, including
// the legacy "employee" role, are rejected.
func (c *Claims) Caller() (Caller, error) {
	if c.Subject == "" {
		return Caller{}, fmt.Errorf("missing subject in JWT claims")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Caller{}, fmt.Errorf("invalid subject format: %w", err)
	}
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return Caller{}, err
	}
	return Caller{ID: id, Role: role}, nil
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}
