package events

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventChangeSubmitted          EventType = "change_submitted"
	EventChangeStatusChanged      EventType = "change_status_changed"
	EventApprovalDecisionRecorded EventType = "approval_decision_recorded"
	EventApprovalLevelActivated   EventType = "approval_level_activated"
	EventChangeResubmitted        EventType = "change_resubmitted"
	EventChangeOverdue            EventType = "change_overdue"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ChangeID  string      `json:"change_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ChangeSubmittedPayload payload.
type ChangeSubmittedPayload struct {
	ProductID   string              `json:"product_id"`
	RiskLevel   domain.RiskLevel    `json:"risk_level"`
	ChangeType  domain.ChangeType   `json:"change_type"`
	Status      domain.ChangeStatus `json:"status"`
	Title       string              `json:"title"`
	LevelCount  int                 `json:"level_count"`
	AutoBypass  bool                `json:"auto_bypass"`
	Resubmitted bool                `json:"resubmitted"`
}

// ChangeStatusChangedPayload payload.
type ChangeStatusChangedPayload struct {
	OldStatus domain.ChangeStatus `json:"old_status"`
	NewStatus domain.ChangeStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// ApprovalDecisionRecordedPayload payload.
type ApprovalDecisionRecordedPayload struct {
	InstanceID    string                `json:"instance_id"`
	ApproverID    string                `json:"approver_id"`
	Level         int                   `json:"level"`
	Action        domain.ApprovalAction `json:"action"`
	LevelComplete bool                  `json:"level_complete"`
	Completed     bool                  `json:"completed"`
	Approved      bool                  `json:"approved"`
	NextLevel     int                   `json:"next_level,omitempty"`
}

// ApprovalLevelActivatedPayload is emitted when a level opens and its
// approvers should be told their action is required.
type ApprovalLevelActivatedPayload struct {
	Level       int      `json:"level"`
	ApproverIDs []string `json:"approver_ids"`
}

// ChangeOverduePayload payload from the sweep worker.
type ChangeOverduePayload struct {
	Status     domain.ChangeStatus `json:"status"`
	PlannedEnd time.Time           `json:"planned_end"`
}
