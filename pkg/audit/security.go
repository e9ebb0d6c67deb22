// Package audit writes security-relevant events (refused requests and
// privileged changes) as structured log lines for SIEM ingestion.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
)

// EventType categorizes security events for filtering and alerting.
type EventType string

const (
	// EventAccessDenied is logged when an authenticated caller is refused.
	EventAccessDenied EventType = "access_denied"
	// EventAdminAction is logged for every privileged change that succeeded.
	EventAdminAction EventType = "admin_action"
)

// Event is the JSON document embedded in every audit line.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorRole string    `json:"actor_role,omitempty"`
	TargetID  string    `json:"target_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Details   any       `json:"details,omitempty"`
	Severity  string    `json:"severity"`
}

// SecurityAuditor logs Events under the "security_audit" logger name.
// A nil *SecurityAuditor discards events.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates an auditor that writes through logger.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AccessDenied records a refused request at WARN.
func (a *SecurityAuditor) AccessDenied(ctx context.Context, action, targetID, reason, clientIP string) {
	if a == nil {
		return
	}
	event := a.event(ctx, EventAccessDenied, action, targetID, clientIP, "warning")
	event.Details = map[string]string{"reason": reason}
	a.write(zapcore.WarnLevel, "Access denied", event)
}

// AdminAction records a privileged change at INFO.
func (a *SecurityAuditor) AdminAction(ctx context.Context, action, targetID string, details any, clientIP string) {
	if a == nil {
		return
	}
	event := a.event(ctx, EventAdminAction, action, targetID, clientIP, "info")
	event.Details = details
	a.write(zapcore.InfoLevel, "Admin action", event)
}

func (a *SecurityAuditor) event(ctx context.Context, t EventType, action, targetID, clientIP, severity string) Event {
	event := Event{
		Timestamp: a.now(),
		EventType: t,
		Action:    action,
		TargetID:  targetID,
		ClientIP:  clientIP,
		Severity:  severity,
	}
	if caller, ok := auth.GetCaller(ctx); ok {
		event.ActorID = caller.ID.String()
		event.ActorRole = string(caller.Role)
	}
	return event
}

func (a *SecurityAuditor) write(level zapcore.Level, msg string, event Event) {
	// Marshaling a struct of strings and maps cannot fail.
	eventJSON, _ := json.Marshal(event)
	a.logger.Log(level, msg,
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("action", event.Action),
		zap.String("actor_id", event.ActorID),
		zap.String("target_id", event.TargetID),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
}
