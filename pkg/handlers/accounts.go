package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/audit"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
	"github.com/cutroom-studio/cutroom-engine/pkg/services"
)

// ScopeMiddleware wraps a handler with a request-scoped database connection.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// RegisterAccountRequest is the body of POST /api/accounts.
// Role is parsed by the service so unknown roles report invalid_role.
type RegisterAccountRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Role        string `json:"role" validate:"required"`
	PlanID      string `json:"plan_id" validate:"required_if=Role client"`
}

// ChangePlanRequest is the body of PUT /api/accounts/{id}/plan.
type ChangePlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// SetDisabledRequest is the body of PUT /api/accounts/{id}/disabled.
type SetDisabledRequest struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

// CycleResetResponse reports how many clients had their cycle usage cleared.
type CycleResetResponse struct {
	Reset int64 `json:"reset"`
}

// AccountsHandler handles account administration and quota projections.
type AccountsHandler struct {
	accountService services.AccountService
	validate       *validator.Validate
	auditor        *audit.SecurityAuditor
	logger         *zap.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(accountService services.AccountService, validate *validator.Validate, logger *zap.Logger) *AccountsHandler {
	return &AccountsHandler{
		accountService: accountService,
		validate:       validate,
		auditor:        audit.NewSecurityAuditor(logger),
		logger:         logger,
	}
}

// RegisterRoutes registers the account routes on the given mux.
func (h *AccountsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	admin := authMiddleware.RequireRole(models.RoleAdmin)

	mux.HandleFunc("GET /api/me", authMiddleware.RequireAuth(scope(h.Me)))
	mux.HandleFunc("GET /api/accounts/{id}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("GET /api/accounts/{id}/quota", authMiddleware.RequireAuth(scope(h.Quota)))

	mux.HandleFunc("GET /api/accounts", authMiddleware.RequireAuth(admin(scope(h.List))))
	mux.HandleFunc("POST /api/accounts", authMiddleware.RequireAuth(admin(scope(h.Register))))
	mux.HandleFunc("PUT /api/accounts/{id}/plan", authMiddleware.RequireAuth(admin(scope(h.ChangePlan))))
	mux.HandleFunc("PUT /api/accounts/{id}/disabled", authMiddleware.RequireAuth(admin(scope(h.SetDisabled))))
	mux.HandleFunc("POST /api/admin/cycle-reset", authMiddleware.RequireAuth(admin(scope(h.ResetCycle))))
}

// Me handles GET /api/me
func (h *AccountsHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	account, err := h.accountService.Get(r.Context(), caller, caller.ID)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Get account", caller.ID.String())
		return
	}
	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/accounts/{id}
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	account, err := h.accountService.Get(r.Context(), caller, accountID)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Get account", accountID.String())
		return
	}
	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/accounts
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	accounts, err := h.accountService.List(r.Context(), caller)
	if err != nil {
		WriteServiceError(w, err, h.logger, "List accounts")
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Register handles POST /api/accounts
func (h *AccountsHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req RegisterAccountRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	account, err := h.accountService.Register(r.Context(), caller, services.RegisterAccountInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		PlanID:      req.PlanID,
	})
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Register account", "")
		return
	}
	h.auditor.AdminAction(r.Context(), "Register account", account.ID.String(),
		map[string]string{"role": string(account.Role), "plan_id": account.PlanID}, clientIP(r))
	if err := WriteJSON(w, http.StatusCreated, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ChangePlan handles PUT /api/accounts/{id}/plan
func (h *AccountsHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	account, err := h.accountService.ChangePlan(r.Context(), caller, accountID, req.PlanID)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Change plan", accountID.String())
		return
	}
	h.auditor.AdminAction(r.Context(), "Change plan", accountID.String(),
		map[string]string{"plan_id": req.PlanID}, clientIP(r))
	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetDisabled handles PUT /api/accounts/{id}/disabled
func (h *AccountsHandler) SetDisabled(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}
	var req SetDisabledRequest
	if !decodeJSON(w, r, h.validate, &req, h.logger) {
		return
	}

	account, err := h.accountService.SetDisabled(r.Context(), caller, accountID, *req.Disabled)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Set account disabled", accountID.String())
		return
	}
	h.auditor.AdminAction(r.Context(), "Set account disabled", accountID.String(),
		map[string]bool{"disabled": *req.Disabled}, clientIP(r))
	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Quota handles GET /api/accounts/{id}/quota
func (h *AccountsHandler) Quota(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	summary, err := h.accountService.Quota(r.Context(), caller, accountID)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Get quota", accountID.String())
		return
	}
	if err := WriteJSON(w, http.StatusOK, summary); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ResetCycle handles POST /api/admin/cycle-reset
func (h *AccountsHandler) ResetCycle(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	n, err := h.accountService.ResetCycleUsage(r.Context(), caller)
	if err != nil {
		writeAuditedError(w, r, err, h.auditor, h.logger, "Reset cycle usage", "")
		return
	}
	h.auditor.AdminAction(r.Context(), "Reset cycle usage", "", map[string]int64{"accounts": n}, clientIP(r))
	if err := WriteJSON(w, http.StatusOK, CycleResetResponse{Reset: n}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
