// Package models contains domain types for cutroom-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is a stage in the project lifecycle.
// State machine:
//
//	pending → assigned → in_progress → qc_review → client_review → completed
//	                          ↑             │              │
//	                          └─────────────┴──────────────┘ (reject / revision)
//
//	Any non-terminal state can transition to: cancelled
type ProjectStatus string

const (
	StatusPending      ProjectStatus = "pending"
	StatusAssigned     ProjectStatus = "assigned"
	StatusInProgress   ProjectStatus = "in_progress"
	StatusQCReview     ProjectStatus = "qc_review"
	StatusClientReview ProjectStatus = "client_review"
	StatusCompleted    ProjectStatus = "completed"
	StatusCancelled    ProjectStatus = "cancelled"
)

// ValidProjectStatuses contains all valid status values.
var ValidProjectStatuses = []ProjectStatus{
	StatusPending,
	StatusAssigned,
	StatusInProgress,
	StatusQCReview,
	StatusClientReview,
	StatusCompleted,
	StatusCancelled,
}

// IsValidProjectStatus checks if the given status is valid.
func IsValidProjectStatus(s ProjectStatus) bool {
	for _, v := range ValidProjectStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s ProjectStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CountsAsActive reports whether a project in this status is charged against
// its client's active-project counter. Pending requests are not.
func (s ProjectStatus) CountsAsActive() bool {
	return s != StatusPending && !s.IsTerminal()
}

// ActiveStatuses are the non-terminal statuses a staff member can be working in.
var ActiveStatuses = []ProjectStatus{
	StatusAssigned,
	StatusInProgress,
	StatusQCReview,
	StatusClientReview,
}

// Priority of a project.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriorities contains all valid priority values.
var ValidPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// IsValidPriority checks if the given priority is valid.
func IsValidPriority(p Priority) bool {
	for _, v := range ValidPriorities {
		if v == p {
			return true
		}
	}
	return false
}

// Project is the unit of work.
// EditorID and QCID are nil while pending; EditorID is set for every later status.
// RevisionLimit is copied from the client's plan at creation.
type Project struct {
	ID            uuid.UUID     `json:"id"`
	ClientID      uuid.UUID     `json:"client_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	EditorID      *uuid.UUID    `json:"editor_id,omitempty"`
	QCID          *uuid.UUID    `json:"qc_id,omitempty"`
	Status        ProjectStatus `json:"status"`
	Priority      Priority      `json:"priority"`
	Progress      int           `json:"progress"`
	RevisionCount int           `json:"revision_count"`
	RevisionLimit Limit         `json:"revision_limit"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	UpdatedBy     *uuid.UUID    `json:"updated_by,omitempty"`
}

// Clone returns a deep copy so a transition can be tried without touching the original.
func (p *Project) Clone() *Project {
	c := *p
	c.EditorID = cloneUUID(p.EditorID)
	c.QCID = cloneUUID(p.QCID)
	c.UpdatedBy = cloneUUID(p.UpdatedBy)
	if p.DueDate != nil {
		d := *p.DueDate
		c.DueDate = &d
	}
	return &c
}

// IsAssignedTo reports whether staffID holds the project in the given role.
func (p *Project) IsAssignedTo(staffID uuid.UUID, role Role) bool {
	switch role {
	case RoleEditor:
		return p.EditorID != nil && *p.EditorID == staffID
	case RoleQC:
		return p.QCID != nil && *p.QCID == staffID
	}
	return false
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// StatusBadge is the display projection of a status.
type StatusBadge struct {
	Status ProjectStatus `json:"status"`
	Label  string        `json:"label"`
	Tone   string        `json:"tone"`
}

var badges = map[ProjectStatus]StatusBadge{
	StatusPending:      {StatusPending, "Awaiting assignment", "neutral"},
	StatusAssigned:     {StatusAssigned, "Assigned", "info"},
	StatusInProgress:   {StatusInProgress, "In production", "info"},
	StatusQCReview:     {StatusQCReview, "Quality check", "warning"},
	StatusClientReview: {StatusClientReview, "Ready for your review", "warning"},
	StatusCompleted:    {StatusCompleted, "Delivered", "success"},
	StatusCancelled:    {StatusCancelled, "Cancelled", "muted"},
}

// Badge returns the display badge for s. Unknown statuses get a neutral badge
// labelled with the raw value.
func (s ProjectStatus) Badge() StatusBadge {
	if b, ok := badges[s]; ok {
		return b
	}
	return StatusBadge{Status: s, Label: string(s), Tone: "neutral"}
}
