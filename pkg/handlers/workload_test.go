package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

func TestWorkloadHandler_Board(t *testing.T) {
	ws := &mockWorkloadService{board: []models.WorkloadSnapshot{
		{StaffID: uuid.New(), Role: models.RoleEditor, Active: 4, Capacity: 8, UtilizationPct: 50, Classification: models.WorkloadBusy},
	}}
	handler := NewWorkloadHandler(ws, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Board(rec, asCaller(httptest.NewRequest(http.MethodGet, "/api/workload", nil), adminCaller))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classification":"busy"`)
}

func TestWorkloadHandler_ForStaff_Visibility(t *testing.T) {
	handler := NewWorkloadHandler(&mockWorkloadService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("id", editorCaller.ID.String())
	rec := httptest.NewRecorder()
	handler.ForStaff(rec, asCaller(req, editorCaller))
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("id", uuid.NewString())
	rec = httptest.NewRecorder()
	handler.ForStaff(rec, asCaller(req, editorCaller))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWorkloadHandler_Suggest(t *testing.T) {
	ws := &mockWorkloadService{}
	handler := NewWorkloadHandler(ws, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Suggest(rec, asCaller(httptest.NewRequest(http.MethodGet, "/api/workload/suggestions?role=qc", nil), adminCaller))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleQC, ws.lastRole)

	rec = httptest.NewRecorder()
	handler.Suggest(rec, asCaller(httptest.NewRequest(http.MethodGet, "/api/workload/suggestions?role=employee", nil), adminCaller))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
