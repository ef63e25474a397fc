package domain

import "time"

// ApprovalStatus enumerates the decision state of one approval instance.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// ApprovalInstance is one approver's vote at one level for one change.
// Instances are created in bulk when a change is submitted and are never
// deleted; resubmission after rejection starts a new round and marks the
// prior round's instances superseded.
type ApprovalInstance struct {
	ID         string
	ChangeID   string
	ApproverID string
	Level      int
	RequireAll bool
	Status     ApprovalStatus
	Comments   *string
	Round      int
	Superseded bool
	DecidedAt  *time.Time
	CreatedAt  time.Time
}

// Decided reports whether the instance has reached a terminal state.
func (a ApprovalInstance) Decided() bool {
	return a.Status != ApprovalStatusPending
}

// ApprovalAction is an approver's submitted verdict.
type ApprovalAction string

const (
	ApprovalActionApproved ApprovalAction = "APPROVED"
	ApprovalActionRejected ApprovalAction = "REJECTED"
)

// KnownApprovalAction reports whether the action is a supported verdict.
func KnownApprovalAction(action ApprovalAction) bool {
	return action == ApprovalActionApproved || action == ApprovalActionRejected
}
