package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/testhelpers"
)

// passThroughScope stands in for the database scope middleware.
func passThroughScope(next http.HandlerFunc) http.HandlerFunc { return next }

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	validatorImpl, err := auth.NewJWTValidator(context.Background(), &auth.ValidatorConfig{EnableVerification: false})
	require.NoError(t, err)
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(validatorImpl, zap.NewNop()), zap.NewNop())

	mux := http.NewServeMux()
	v := validator.New()
	NewProjectsHandler(&mockProjectService{}, &mockAssignmentService{}, v, zap.NewNop()).RegisterRoutes(mux, authMiddleware, passThroughScope)
	NewAccountsHandler(&mockAccountService{}, v, zap.NewNop()).RegisterRoutes(mux, authMiddleware, passThroughScope)
	NewWorkloadHandler(&mockWorkloadService{}, zap.NewNop()).RegisterRoutes(mux, authMiddleware, passThroughScope)
	return mux
}

func TestRoutes_RoleGates(t *testing.T) {
	mux := newTestMux(t)
	projectID := uuid.NewString()
	assignBody := `{"editor_id":"` + uuid.NewString() + `"}`

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		role   models.Role
		want   int
	}{
		{"anonymous list", http.MethodGet, "/api/projects", "", "", http.StatusUnauthorized},
		{"client list", http.MethodGet, "/api/projects", "", models.RoleClient, http.StatusOK},
		{"client creates", http.MethodPost, "/api/projects", `{"title":"x"}`, models.RoleClient, http.StatusCreated},
		{"editor cannot create", http.MethodPost, "/api/projects", `{"title":"x"}`, models.RoleEditor, http.StatusForbidden},
		{"editor cannot assign", http.MethodPost, "/api/projects/" + projectID + "/assign", assignBody, models.RoleEditor, http.StatusForbidden},
		{"admin assigns", http.MethodPost, "/api/projects/" + projectID + "/assign", assignBody, models.RoleAdmin, http.StatusOK},
		{"client cannot report progress", http.MethodPut, "/api/projects/" + projectID + "/progress", `{"progress":5}`, models.RoleClient, http.StatusForbidden},
		{"client cannot list accounts", http.MethodGet, "/api/accounts", "", models.RoleClient, http.StatusForbidden},
		{"qc cannot read board", http.MethodGet, "/api/workload", "", models.RoleQC, http.StatusForbidden},
		{"admin reads board", http.MethodGet, "/api/workload", "", models.RoleAdmin, http.StatusOK},
		{"employee token rejected", http.MethodGet, "/api/me", "", "employee", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			if tt.role != "" {
				req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer(uuid.New(), tt.role))
			}

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
