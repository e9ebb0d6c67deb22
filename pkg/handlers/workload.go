package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/services"
)

// WorkloadHandler serves staff workload projections.
type WorkloadHandler struct {
	workloadService services.WorkloadService
	logger          *zap.Logger
}

// NewWorkloadHandler creates a new workload handler.
func NewWorkloadHandler(workloadService services.WorkloadService, logger *zap.Logger) *WorkloadHandler {
	return &WorkloadHandler{workloadService: workloadService, logger: logger}
}

// RegisterRoutes registers the workload routes on the given mux.
func (h *WorkloadHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	admin := authMiddleware.RequireRole(models.RoleAdmin)

	mux.HandleFunc("GET /api/workload", authMiddleware.RequireAuth(admin(scope(h.Board))))
	mux.HandleFunc("GET /api/workload/suggestions", authMiddleware.RequireAuth(admin(scope(h.Suggest))))
	mux.HandleFunc("GET /api/workload/{id}", authMiddleware.RequireAuth(scope(h.ForStaff)))
}

// Board handles GET /api/workload
func (h *WorkloadHandler) Board(w http.ResponseWriter, r *http.Request) {
	board, err := h.workloadService.Board(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.logger, "Get workload board")
		return
	}
	if board == nil {
		board = []models.WorkloadSnapshot{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"staff": board}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ForStaff handles GET /api/workload/{id}
// Staff may read their own snapshot; admins may read anyone's.
func (h *WorkloadHandler) ForStaff(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	staffID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}
	if caller.Role != models.RoleAdmin && caller.ID != staffID {
		WriteServiceError(w, fmt.Errorf("%w: workload is visible to the staff member and admins", apperrors.ErrForbidden), h.logger, "Get workload")
		return
	}

	snap, err := h.workloadService.ForStaff(r.Context(), staffID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Get workload")
		return
	}
	if err := WriteJSON(w, http.StatusOK, snap); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Suggest handles GET /api/workload/suggestions?role=editor|qc
func (h *WorkloadHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	role, err := models.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		WriteServiceError(w, err, h.logger, "Suggest staff")
		return
	}

	snaps, err := h.workloadService.SuggestStaff(r.Context(), role)
	if err != nil {
		WriteServiceError(w, err, h.logger, "Suggest staff")
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"staff": snaps}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
