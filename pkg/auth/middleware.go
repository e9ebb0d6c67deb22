package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuth validates the JWT and resolves the caller's id and role.
// Sets claims and caller in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		caller, err := claims.Caller()
		if err != nil {
			m.logger.Warn("Rejected token with unusable identity",
				zap.String("subject", claims.Subject),
				zap.String("role", claims.Role),
				zap.Error(err))
			m.writeError(w, http.StatusForbidden, "invalid_identity", "Token does not carry a valid account and role")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = WithCaller(ctx, caller)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole rejects callers whose role is not listed. It must run after
// RequireAuth.
func (m *Middleware) RequireRole(roles ...models.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			caller, ok := GetCaller(r.Context())
			if !ok {
				m.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if !caller.Is(roles...) {
				m.logger.Debug("Role not permitted",
					zap.String("caller_id", caller.ID.String()),
					zap.String("role", string(caller.Role)),
					zap.String("path", r.URL.Path))
				m.writeError(w, http.StatusForbidden, "forbidden", "Role not permitted for this operation")
				return
			}
			next(w, r)
		}
	}
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
