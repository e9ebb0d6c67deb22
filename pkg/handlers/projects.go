package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/audit"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/services"
)

// CreateProjectRequest is the body of POST /api/projects. ClientID is only
// honored for admins creating on a client's behalf.
type CreateProjectRequest struct {
	ClientID    string     `json:"client_id" validate:"omitempty,uuid"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate     *time.Time `json:"due_date"`
}

// AssignProjectRequest is the body of POST /api/projects/{id}/assign.
type AssignProjectRequest struct {
	EditorID string `json:"editor_id" validate:"required,uuid"`
	QCID     string `json:"qc_id" validate:"omitempty,uuid"`
}

// AssignQCRequest is the body of POST /api/projects/{id}/qc.
type AssignQCRequest struct {
	QCID string `json:"qc_id" validate:"required,uuid"`
}

// AdvanceStatusRequest is the body of POST /api/projects/{id}/status.
type AdvanceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateProgressRequest is the body of PUT /api/projects/{id}/progress.
type UpdateProgressRequest struct {
	Progress *int `json:"progress" validate:"required,min=0,max=100"`
}

// ProjectResponse is a project with its display badge and the statuses it can
// move to next.
type ProjectResponse struct {
	*models.Project
	Badge        models.StatusBadge     `json:"badge"`
	NextStatuses []models.ProjectStatus `json:"next_statuses"`
}

func newProjectResponse(p *models.Project) ProjectResponse {
	next := services.LegalTargets(p.Status)
	if next == nil {
		next = []models.ProjectStatus{}
	}
	return ProjectResponse{Project: p, Badge: p.Status.Badge(), NextStatuses: next}
}

// ProjectsHandler handles project lifecycle requests.
type ProjectsHandler struct {
	projectService    services.ProjectService
	assignmentService services.AssignmentService
	validate          *validator.Validate
	auditor           *audit.SecurityAuditor
	logger            *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(
	projectService services.ProjectService,
	assignmentService services.AssignmentService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProjectsHandler {
	return &ProjectsHandler{
		projectService:    projectService,
		assignmentService: assignmentService,
		validate:          validate,
		auditor:           audit.NewSecurityAuditor(logger),
		logger:            logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	admin := authMiddleware.RequireRole(models.RoleAdmin)

	mux.HandleFunc("POST /api/projects",
		authMiddleware.RequireAuth(authMiddleware.RequireRole(models.RoleClient, models.RoleAdmin)(scope(h.Create))))
	mux.HandleFunc("GET /api/projects", authMiddleware.RequireAuth(scope(h.List)))
	mux.HandleFunc("GET /api/projects/{id}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("GET /api/projects/{id}/events", authMiddleware.RequireAuth(scope(h.Events)))
	mux.HandleFunc("POST /api/projects/{id}/status", authMiddleware.RequireAuth(scope(h.AdvanceStatus)))
	mux.HandleFunc("POST /api/projects/{id}/cancel", authMiddleware.RequireAuth(scope(h.Cancel)))
	mux.HandleFunc("PUT /api/projects/{id}/progress",
		authMiddleware.RequireAuth(authMiddleware.RequireRole(models.RoleEditor, models.RoleAdmin)(scope(h.UpdateProgress))))

	mux.HandleFunc("POST /api/projects/{id}/assign", authMiddleware.RequireAuth(admin(scope(h.Assign))))
	mux.HandleFunc("POST /api/projects/{id}/qc", authMiddleware.RequireAuth(admin(scope(h.AssignQC))))
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	in := services.CreateProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    models.Priority(req.Priority),
		DueDate:     req.DueDate,
	}
	if req.ClientID != "" {
		in.ClientID = uuid.MustParse(req.ClientID)
	}

	project, err := h.projectService.Create(r.Context(), caller, in)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Create project", "")
		return
	}
	if err := WriteJSON(w, http.StatusCreated, newProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projects, err := h.projectService.List(r.Context(), caller)
	if err != nil {
		WriteServiceError(w, err, h.logger, "List projects")
		return
	}

	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, newProjectResponse(p))
	}
	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"projects": out}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{id}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Get(r.Context(), caller, projectID)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Get project", projectID.String())
		return
	}
	if err := WriteJSON(w, http.StatusOK, newProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Events handles GET /api/projects/{id}/events
func (h *ProjectsHandler) Events(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	events, err := h.projectService.Events(r.Context(), caller, projectID)
	if err != nil {
		WriteServiceError(w, err, h.logger, "List project events")
		return
	}
	if events == nil {
		events = []*models.StatusEvent{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AdvanceStatus handles POST /api/projects/{id}/status
func (h *ProjectsHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	var req AdvanceStatusRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	project, err := h.projectService.AdvanceStatus(r.Context(), caller, projectID, models.ProjectStatus(req.Status))
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Advance status", projectID.String())
		return
	}
	if err := WriteJSON(w, http.StatusOK, newProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Cancel handles POST /api/projects/{id}/cancel
func (h *ProjectsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Cancel(r.Context(), caller, projectID)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Cancel project", projectID.String())
		return
	}
	if err := WriteJSON(w, http.StatusOK, newProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateProgress handles PUT /api/projects/{id}/progress
func (h *ProjectsHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	var req UpdateProgressRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	project, err := h.projectService.UpdateProgress(r.Context(), caller, projectID, *req.Progress)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Update progress", projectID.String())
		return
	}
	if err := WriteJSON(w, http.StatusOK, newProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Assign handles POST /api/projects/{id}/assign
func (h *ProjectsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	var req AssignProjectRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	var qcID *uuid.UUID
	if req.QCID != "" {
		id := uuid.MustParse(req.QCID)
		qcID = &id
	}

	project, err := h.assignmentService.Assign(r.Context(), caller, projectID, uuid.MustParse(req.EditorID), qcID)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Assign project", projectID.String())
		return
	}
	h.auditor.AdminAction(r.Context(), "Assign project", projectID.String(),
		map[string]string{"editor_id": req.EditorID, "qc_id": req.QCID}, clientIP(r))
	if err := WriteJSON(w, http.StatusOK, newProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AssignQC handles POST /api/projects/{id}/qc
func (h *ProjectsHandler) AssignQC(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	var req AssignQCRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	project, err := h.assignmentService.AssignQC(r.Context(), caller, projectID, uuid.MustParse(req.QCID))
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Assign QC reviewer", projectID.String())
		return
	}
	h.auditor.AdminAction(r.Context(), "Assign QC reviewer", projectID.String(),
		map[string]string{"qc_id": req.QCID}, clientIP(r))
	if err := WriteJSON(w, http.StatusOK, newProjectResponse(project)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
