// Package testhelpers provides utilities for testing cutroom-engine components.
package testhelpers

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// GenerateTestJWT creates a test JWT token for use when verification is disabled.
// The token has a valid structure but no signature (alg: none).
func GenerateTestJWT(sub uuid.UUID, role models.Role) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := fmt.Sprintf(`{"sub":"%s","role":"%s"}`, sub, role)
	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub uuid.UUID, role models.Role) string {
	return "Bearer " + GenerateTestJWT(sub, role)
}
