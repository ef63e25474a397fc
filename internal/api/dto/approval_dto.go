package dto

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// DecisionRequest payload.
type DecisionRequest struct {
	Action   domain.ApprovalAction `json:"action"`
	Comments *string               `json:"comments"`
}

// ApprovalInstanceResponse represents one approval row.
type ApprovalInstanceResponse struct {
	ID         string                `json:"id"`
	ChangeID   string                `json:"change_id"`
	ApproverID string                `json:"approver_id"`
	Level      int                   `json:"level"`
	RequireAll bool                  `json:"require_all"`
	Status     domain.ApprovalStatus `json:"status"`
	Comments   *string               `json:"comments"`
	Round      int                   `json:"round"`
	Superseded bool                  `json:"superseded"`
	DecidedAt  *time.Time            `json:"decided_at"`
	CreatedAt  time.Time             `json:"created_at"`
}

// DecisionResponse reports the workflow effect of a recorded decision.
type DecisionResponse struct {
	Instance  ApprovalInstanceResponse `json:"instance"`
	Completed bool                     `json:"completed"`
	Approved  bool                     `json:"approved"`
	NextLevel int                      `json:"next_level,omitempty"`
}

// PendingApprovalResponse pairs a change with the approver's actionable
// instances.
type PendingApprovalResponse struct {
	Change    ChangeSummary              `json:"change"`
	Instances []ApprovalInstanceResponse `json:"instances"`
}

// ToApprovalInstanceResponse maps domain to DTO.
func ToApprovalInstanceResponse(instance domain.ApprovalInstance) ApprovalInstanceResponse {
	return ApprovalInstanceResponse{
		ID:         instance.ID,
		ChangeID:   instance.ChangeID,
		ApproverID: instance.ApproverID,
		Level:      instance.Level,
		RequireAll: instance.RequireAll,
		Status:     instance.Status,
		Comments:   instance.Comments,
		Round:      instance.Round,
		Superseded: instance.Superseded,
		DecidedAt:  instance.DecidedAt,
		CreatedAt:  instance.CreatedAt,
	}
}

// ToApprovalInstanceResponses maps a slice.
func ToApprovalInstanceResponses(instances []domain.ApprovalInstance) []ApprovalInstanceResponse {
	out := make([]ApprovalInstanceResponse, 0, len(instances))
	for _, instance := range instances {
		out = append(out, ToApprovalInstanceResponse(instance))
	}
	return out
}
