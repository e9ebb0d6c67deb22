package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/audit"
	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
)

// maxBodyBytes caps request bodies; every payload here is a few fields.
const maxBodyBytes = 64 << 10

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// errorMapping ties a sentinel to its HTTP status and error code. Order
// matters: the first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperrors.ErrQuotaExceeded, http.StatusUnprocessableEntity, "quota_exceeded"},
	{apperrors.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{apperrors.ErrEditorAtCapacity, http.StatusConflict, "editor_at_capacity"},
	{apperrors.ErrQCAtCapacity, http.StatusConflict, "qc_at_capacity"},
	{apperrors.ErrProjectNotAssignable, http.StatusConflict, "project_not_assignable"},
	{apperrors.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict"},
	{apperrors.ErrAccountDisabled, http.StatusForbidden, "account_disabled"},
	{apperrors.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{auth.ErrNoCaller, http.StatusUnauthorized, "unauthorized"},
}

// WriteServiceError maps a service error to its HTTP response. Known errors
// carry their own message; anything else is logged and reported as a 500.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger, op string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			if m.status == http.StatusConflict || m.status == http.StatusUnprocessableEntity {
				logger.Info(op+" refused", zap.Error(err))
			}
			if werr := ErrorResponse(w, m.status, m.code, err.Error()); werr != nil {
				logger.Error("Failed to write error response", zap.Error(werr))
			}
			return
		}
	}

	logger.Error(op+" failed", zap.Error(err))
	if werr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", op+" failed"); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

// decodeJSON reads a JSON body into dst and validates it. It writes a 400 and
// returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}, logger *zap.Logger) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error()); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return false
	}

	if err := validate.Struct(dst); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "validation_failed", validationMessage(err)); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return false
	}
	return true
}

// validationMessage renders validator errors as "field: rule" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return "Validation failed: " + strings.Join(parts, ", ")
}

// requireCaller fetches the authenticated caller or writes a 401.
func requireCaller(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (auth.Caller, bool) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		if werr := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return auth.Caller{}, false
	}
	return caller, true
}

// writeAuditedError is WriteServiceError plus an audit line when the caller
// was refused.
func writeAuditedError(w http.ResponseWriter, r *http.Request, err error, auditor *audit.SecurityAuditor, logger *zap.Logger, op, targetID string) {
	if errors.Is(err, apperrors.ErrForbidden) || errors.Is(err, apperrors.ErrAccountDisabled) {
		auditor.AccessDenied(r.Context(), op, targetID, err.Error(), clientIP(r))
	}
	WriteServiceError(w, err, logger, op)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
