package dto

import (
	"time"

	"github.com/spec-kit/change-service/internal/approval"
	"github.com/spec-kit/change-service/internal/domain"
)

// CreateChangeRequest payload.
type CreateChangeRequest struct {
	ProductID    string            `json:"product_id"`
	RiskLevel    domain.RiskLevel  `json:"risk_level"`
	ChangeType   domain.ChangeType `json:"change_type"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	RollbackPlan string            `json:"rollback_plan"`
	PlannedStart *time.Time        `json:"planned_start"`
	PlannedEnd   *time.Time        `json:"planned_end"`
}

// ReviseChangeRequest payload for resubmitting a rejected change. Omitted
// fields keep their previous values.
type ReviseChangeRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	RollbackPlan *string    `json:"rollback_plan"`
	PlannedStart *time.Time `json:"planned_start"`
	PlannedEnd   *time.Time `json:"planned_end"`
}

// TransitionChangeRequest payload.
type TransitionChangeRequest struct {
	Status  domain.ChangeStatus `json:"status"`
	Comment string              `json:"comment"`
}

// ChangeListQuery captures query filters.
type ChangeListQuery struct {
	Statuses    []domain.ChangeStatus
	RiskLevels  []domain.RiskLevel
	ChangeTypes []domain.ChangeType
	ProductID   *string
	Search      *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
}

// ChangeSummary response.
type ChangeSummary struct {
	ID           string              `json:"id"`
	ExternalKey  string              `json:"external_key"`
	ProductID    string              `json:"product_id"`
	Title        string              `json:"title"`
	Status       domain.ChangeStatus `json:"status"`
	RiskLevel    domain.RiskLevel    `json:"risk_level"`
	ChangeType   domain.ChangeType   `json:"change_type"`
	PlannedStart *time.Time          `json:"planned_start"`
	PlannedEnd   *time.Time          `json:"planned_end"`
	SubmittedAt  time.Time           `json:"submitted_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ChangeDetailResponse provides full change info plus the derived approval
// workflow state.
type ChangeDetailResponse struct {
	ID            string                 `json:"id"`
	ExternalKey   string                 `json:"external_key"`
	RequesterID   string                 `json:"requester_id"`
	ProductID     string                 `json:"product_id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	RollbackPlan  string                 `json:"rollback_plan"`
	Status        domain.ChangeStatus    `json:"status"`
	RiskLevel     domain.RiskLevel       `json:"risk_level"`
	ChangeType    domain.ChangeType      `json:"change_type"`
	PlannedStart  *time.Time             `json:"planned_start"`
	PlannedEnd    *time.Time             `json:"planned_end"`
	ApprovalRound int                    `json:"approval_round"`
	Approval      *WorkflowStateResponse `json:"approval,omitempty"`
	SubmittedAt   time.Time              `json:"submitted_at"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	ClosedAt      *time.Time             `json:"closed_at"`
}

// WorkflowStateResponse reports the derived approval state.
type WorkflowStateResponse struct {
	Phase       approval.Phase `json:"phase"`
	ActiveLevel int            `json:"active_level,omitempty"`
	TotalLevels int            `json:"total_levels"`
}

// ChangeHistoryResponse represents one audit entry.
type ChangeHistoryResponse struct {
	ID            string                 `json:"id"`
	EventType     domain.ChangeEventType `json:"event_type"`
	ChangedByType domain.SubjectType     `json:"changed_by_type"`
	ChangedByID   *string                `json:"changed_by_id"`
	OldValue      map[string]any         `json:"old_value,omitempty"`
	NewValue      map[string]any         `json:"new_value,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ToChangeSummary maps domain to DTO.
func ToChangeSummary(change domain.Change) ChangeSummary {
	return ChangeSummary{
		ID:           change.ID,
		ExternalKey:  change.ExternalKey,
		ProductID:    change.ProductID,
		Title:        change.Title,
		Status:       change.Status,
		RiskLevel:    change.RiskLevel,
		ChangeType:   change.ChangeType,
		PlannedStart: change.PlannedStart,
		PlannedEnd:   change.PlannedEnd,
		SubmittedAt:  change.SubmittedAt,
		UpdatedAt:    change.UpdatedAt,
	}
}

// ToChangeDetail maps domain to DTO.
func ToChangeDetail(change domain.Change, state *approval.State) ChangeDetailResponse {
	detail := ChangeDetailResponse{
		ID:            change.ID,
		ExternalKey:   change.ExternalKey,
		RequesterID:   change.RequesterID,
		ProductID:     change.ProductID,
		Title:         change.Title,
		Description:   change.Description,
		RollbackPlan:  change.RollbackPlan,
		Status:        change.Status,
		RiskLevel:     change.RiskLevel,
		ChangeType:    change.ChangeType,
		PlannedStart:  change.PlannedStart,
		PlannedEnd:    change.PlannedEnd,
		ApprovalRound: change.ApprovalRound,
		SubmittedAt:   change.SubmittedAt,
		CreatedAt:     change.CreatedAt,
		UpdatedAt:     change.UpdatedAt,
		ClosedAt:      change.ClosedAt,
	}
	if state != nil {
		detail.Approval = &WorkflowStateResponse{
			Phase:       state.Phase,
			ActiveLevel: state.ActiveLevel,
			TotalLevels: state.TotalLevels,
		}
	}
	return detail
}

// ToChangeHistoryResponse maps domain to DTO.
func ToChangeHistoryResponse(entry domain.ChangeHistory) ChangeHistoryResponse {
	return ChangeHistoryResponse{
		ID:            entry.ID,
		EventType:     entry.EventType,
		ChangedByType: entry.ChangedByType,
		ChangedByID:   entry.ChangedByID,
		OldValue:      entry.OldValue,
		NewValue:      entry.NewValue,
		CreatedAt:     entry.CreatedAt,
	}
}
