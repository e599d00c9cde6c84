package audit

import (
	"time"

	"github.com/google/uuid"
)

const TopicDecided = "assignment.decided"

// DecidedEvent is published once an audit row is durable.
type DecidedEvent struct {
	EventID        uuid.UUID      `json:"event_id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	AuditID        int64          `json:"audit_id"`
	RecordType     RecordType     `json:"record_type"`
	RecordID       string         `json:"record_id"`
	AssignedUserID *uint          `json:"assigned_user_id"`
	RuleID         *int64         `json:"rule_id,omitempty"`
	AssignmentType AssignmentType `json:"assignment_type"`
	Context        map[string]any `json:"context,omitempty"`
	DecidedAt      time.Time      `json:"decided_at"`
}

func NewDecidedEvent(a *Audit) *DecidedEvent {
	return &DecidedEvent{
		EventID:        uuid.New(),
		TenantID:       a.TenantID,
		AuditID:        a.ID,
		RecordType:     a.RecordType,
		RecordID:       a.RecordID,
		AssignedUserID: a.AssignedUserID,
		RuleID:         a.RuleID,
		AssignmentType: a.AssignmentType,
		Context:        a.Context,
		DecidedAt:      a.CreatedAt,
	}
}
