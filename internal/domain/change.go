package domain

import "time"

// ChangeStatus enumerates lifecycle states for change requests.
type ChangeStatus string

const (
	ChangeStatusSubmitted  ChangeStatus = "SUBMITTED"
	ChangeStatusPending    ChangeStatus = "PENDING"
	ChangeStatusApproved   ChangeStatus = "APPROVED"
	ChangeStatusRejected   ChangeStatus = "REJECTED"
	ChangeStatusInProgress ChangeStatus = "IN_PROGRESS"
	ChangeStatusTesting    ChangeStatus = "TESTING"
	ChangeStatusCompleted  ChangeStatus = "COMPLETED"
	ChangeStatusFailed     ChangeStatus = "FAILED"
	ChangeStatusRollback   ChangeStatus = "ROLLBACK"
	ChangeStatusClosed     ChangeStatus = "CLOSED"
)

// RiskLevel classifies the blast radius of a change.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// KnownRiskLevel reports whether the value is one of the three levels.
func KnownRiskLevel(level RiskLevel) bool {
	switch level {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

// ChangeType determines how a change enters the approval workflow.
// STANDARD changes are pre-authorized and skip approval entirely.
type ChangeType string

const (
	ChangeTypeStandard  ChangeType = "STANDARD"
	ChangeTypeNormal    ChangeType = "NORMAL"
	ChangeTypeEmergency ChangeType = "EMERGENCY"
)

// KnownChangeType reports whether the value is a supported change type.
func KnownChangeType(changeType ChangeType) bool {
	switch changeType {
	case ChangeTypeStandard, ChangeTypeNormal, ChangeTypeEmergency:
		return true
	}
	return false
}

// Change is the aggregate for change requests.
type Change struct {
	ID            string
	ExternalKey   string
	RequesterID   string
	ProductID     string
	Status        ChangeStatus
	RiskLevel     RiskLevel
	ChangeType    ChangeType
	Title         string
	Description   string
	RollbackPlan  string
	PlannedStart  *time.Time
	PlannedEnd    *time.Time
	ApprovalRound int
	SubmittedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}
