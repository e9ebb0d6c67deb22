package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/services"
)

// PlansHandler serves the read-only plan catalog.
type PlansHandler struct {
	plans  services.PlanLookup
	logger *zap.Logger
}

// NewPlansHandler creates a new plans handler.
func NewPlansHandler(plans services.PlanLookup, logger *zap.Logger) *PlansHandler {
	return &PlansHandler{plans: plans, logger: logger}
}

// RegisterRoutes registers the plan routes. The catalog is public.
func (h *PlansHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/plans", h.List)
	mux.HandleFunc("GET /api/plans/{planId}", h.Get)
}

// List handles GET /api/plans
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"plans": h.plans.All()}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/plans/{planId}
func (h *PlansHandler) Get(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Lookup(r.PathValue("planId"))
	if err != nil {
		WriteServiceError(w, err, h.logger, "Get plan")
		return
	}
	if err := WriteJSON(w, http.StatusOK, plan); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
