package domain

import "time"

// ChangeEventType captures what a history entry records.
type ChangeEventType string

const (
	ChangeEventStatus           ChangeEventType = "STATUS_CHANGE"
	ChangeEventApprovalDecision ChangeEventType = "APPROVAL_DECISION"
	ChangeEventRevision         ChangeEventType = "REVISION"
	ChangeEventUnroutedBypass   ChangeEventType = "UNROUTED_BYPASS"
)

// ChangeHistory is an immutable audit trail entry.
type ChangeHistory struct {
	ID            string
	ChangeID      string
	ChangedByType SubjectType
	ChangedByID   *string
	EventType     ChangeEventType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
