package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want models.WorkloadClass
	}{
		{0, models.WorkloadAvailable},
		{49.999, models.WorkloadAvailable},
		{50, models.WorkloadBusy},
		{89.999, models.WorkloadBusy},
		{90, models.WorkloadOverloaded},
		{100, models.WorkloadOverloaded},
		{137.5, models.WorkloadOverloaded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.pct), "pct %v", tt.pct)
	}
}

func TestSnapshot_CountsOnlyOpenProjectsInRole(t *testing.T) {
	staff := uuid.New()
	other := uuid.New()
	mk := func(status models.ProjectStatus, editor, qc *uuid.UUID) *models.Project {
		return &models.Project{ID: uuid.New(), Status: status, EditorID: editor, QCID: qc}
	}
	projects := []*models.Project{
		mk(models.StatusAssigned, &staff, nil),
		mk(models.StatusInProgress, &staff, &other),
		mk(models.StatusClientReview, &staff, nil),
		mk(models.StatusCompleted, &staff, nil),
		mk(models.StatusCancelled, &staff, nil),
		mk(models.StatusQCReview, &other, &staff),
		mk(models.StatusInProgress, &other, nil),
	}

	snap := Snapshot(staff, models.RoleEditor, 8, projects)
	assert.Equal(t, 3, snap.Active)
	assert.Equal(t, 37.5, snap.UtilizationPct)
	assert.Equal(t, models.WorkloadAvailable, snap.Classification)

	qcSnap := Snapshot(staff, models.RoleQC, 10, projects)
	assert.Equal(t, 1, qcSnap.Active)
}

func TestSnapshot_CapacityEdges(t *testing.T) {
	staff := uuid.New()
	projects := func(n int) []*models.Project {
		out := make([]*models.Project, n)
		for i := range out {
			out[i] = &models.Project{Status: models.StatusInProgress, EditorID: &staff}
		}
		return out
	}

	below := Snapshot(staff, models.RoleEditor, 8, projects(7))
	assert.True(t, below.HasRoom())
	assert.Equal(t, 87.5, below.UtilizationPct)
	assert.Equal(t, models.WorkloadBusy, below.Classification)

	full := Snapshot(staff, models.RoleEditor, 8, projects(8))
	assert.False(t, full.HasRoom())
	assert.Equal(t, 100.0, full.UtilizationPct)
	assert.Equal(t, models.WorkloadOverloaded, full.Classification)

	over := Snapshot(staff, models.RoleEditor, 8, projects(10))
	assert.Equal(t, 125.0, over.UtilizationPct, "over-allocation is not clamped")
}

func TestSnapshot_NonPositiveCapacity(t *testing.T) {
	snap := Snapshot(uuid.New(), models.RoleQC, 0, nil)
	assert.Equal(t, 100.0, snap.UtilizationPct)
	assert.Equal(t, models.WorkloadOverloaded, snap.Classification)
	assert.False(t, snap.HasRoom())
}

func TestWorkloadService_Board(t *testing.T) {
	f := newFixture()
	editor := f.seedAccount(models.RoleEditor, "")
	qc := f.seedAccount(models.RoleQC, "")
	disabled := f.seedAccount(models.RoleEditor, "")
	disabled.Disabled = true
	f.fillQueue(editor.ID, models.RoleEditor, 4)
	f.fillQueue(qc.ID, models.RoleQC, 9)

	board, err := f.workloadSvc.Board(context.Background())
	require.NoError(t, err)
	require.Len(t, board, 2)

	byID := map[uuid.UUID]models.WorkloadSnapshot{}
	for _, s := range board {
		byID[s.StaffID] = s
	}
	assert.Equal(t, models.WorkloadBusy, byID[editor.ID].Classification)
	assert.Equal(t, 4, byID[editor.ID].Active)
	assert.Equal(t, models.WorkloadOverloaded, byID[qc.ID].Classification)
	assert.Equal(t, 90.0, byID[qc.ID].UtilizationPct)
	assert.NotContains(t, byID, disabled.ID)
}

func TestWorkloadService_ForStaff(t *testing.T) {
	f := newFixture()
	editor := f.seedAccount(models.RoleEditor, "")
	f.fillQueue(editor.ID, models.RoleEditor, 2)

	snap, err := f.workloadSvc.ForStaff(context.Background(), editor.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Active)
	assert.Equal(t, 8, snap.Capacity)
	assert.Equal(t, 25.0, snap.UtilizationPct)

	client := f.seedAccount(models.RoleClient, "basic")
	_, err = f.workloadSvc.ForStaff(context.Background(), client.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRole)

	_, err = f.workloadSvc.ForStaff(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestWorkloadService_SuggestStaff(t *testing.T) {
	f := newFixture()
	busy := f.seedAccount(models.RoleEditor, "")
	idle := f.seedAccount(models.RoleEditor, "")
	full := f.seedAccount(models.RoleEditor, "")
	f.fillQueue(busy.ID, models.RoleEditor, 5)
	f.fillQueue(full.ID, models.RoleEditor, 8)

	suggested, err := f.workloadSvc.SuggestStaff(context.Background(), models.RoleEditor)
	require.NoError(t, err)
	require.Len(t, suggested, 2)
	assert.Equal(t, idle.ID, suggested[0].StaffID)
	assert.Equal(t, busy.ID, suggested[1].StaffID)

	_, err = f.workloadSvc.SuggestStaff(context.Background(), models.RoleClient)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRole)
}
