package approval

import (
	"github.com/spec-kit/change-service/internal/domain"
)

// allowedTransitions is the outer change state machine. COMPLETED and CLOSED
// are terminal.
var allowedTransitions = map[domain.ChangeStatus][]domain.ChangeStatus{
	domain.ChangeStatusSubmitted:  {domain.ChangeStatusPending, domain.ChangeStatusApproved, domain.ChangeStatusRejected},
	domain.ChangeStatusPending:    {domain.ChangeStatusApproved, domain.ChangeStatusRejected},
	domain.ChangeStatusApproved:   {domain.ChangeStatusInProgress},
	domain.ChangeStatusRejected:   {domain.ChangeStatusPending, domain.ChangeStatusClosed},
	domain.ChangeStatusInProgress: {domain.ChangeStatusTesting},
	domain.ChangeStatusTesting:    {domain.ChangeStatusCompleted, domain.ChangeStatusFailed},
	domain.ChangeStatusFailed:     {domain.ChangeStatusRollback},
	domain.ChangeStatusRollback:   {domain.ChangeStatusClosed},
	domain.ChangeStatusCompleted:  {},
	domain.ChangeStatusClosed:     {},
}

// CanTransition reports whether the outer state machine permits the move.
func CanTransition(current, next domain.ChangeStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Actor identifies who is requesting a lifecycle transition.
type Actor struct {
	Type domain.SubjectType
	ID   string
	Role domain.StaffRole // set when Type is STAFF
}

// AllowedActor enforces the role gates on manual lifecycle transitions.
// APPROVED and PENDING are never reachable manually: only the approval
// engine finalizes a workflow as approved, and only submission or revision
// puts a change into PENDING, since both must create the round's instances.
func AllowedActor(actor Actor, change *domain.Change, next domain.ChangeStatus) bool {
	if next == domain.ChangeStatusApproved || next == domain.ChangeStatusPending {
		return false
	}

	staff := actor.Type == domain.SubjectTypeStaff
	switch next {
	case domain.ChangeStatusRejected:
		// Escape hatch: managers and admins may reject outright without
		// walking the per-level workflow.
		return staff && (actor.Role == domain.StaffRoleManager || actor.Role == domain.StaffRoleAdmin)
	case domain.ChangeStatusInProgress, domain.ChangeStatusTesting,
		domain.ChangeStatusCompleted, domain.ChangeStatusFailed:
		return staff
	case domain.ChangeStatusRollback:
		return staff && (actor.Role == domain.StaffRoleAgent || actor.Role == domain.StaffRoleAdmin)
	case domain.ChangeStatusClosed:
		if staff && actor.Role == domain.StaffRoleAdmin {
			return true
		}
		// Requesters may close out their own rejected change.
		return change.Status == domain.ChangeStatusRejected &&
			actor.Type == domain.SubjectTypeUser && actor.ID == change.RequesterID
	}
	return false
}
