package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/change-service/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.ChangeStatus
		allowed  bool
	}{
		{domain.ChangeStatusSubmitted, domain.ChangeStatusPending, true},
		{domain.ChangeStatusPending, domain.ChangeStatusApproved, true},
		{domain.ChangeStatusPending, domain.ChangeStatusRejected, true},
		{domain.ChangeStatusApproved, domain.ChangeStatusInProgress, true},
		{domain.ChangeStatusRejected, domain.ChangeStatusPending, true},
		{domain.ChangeStatusRejected, domain.ChangeStatusClosed, true},
		{domain.ChangeStatusInProgress, domain.ChangeStatusTesting, true},
		{domain.ChangeStatusTesting, domain.ChangeStatusCompleted, true},
		{domain.ChangeStatusTesting, domain.ChangeStatusFailed, true},
		{domain.ChangeStatusFailed, domain.ChangeStatusRollback, true},
		{domain.ChangeStatusRollback, domain.ChangeStatusClosed, true},
		{domain.ChangeStatusCompleted, domain.ChangeStatusInProgress, false},
		{domain.ChangeStatusClosed, domain.ChangeStatusPending, false},
		{domain.ChangeStatusPending, domain.ChangeStatusInProgress, false},
		{domain.ChangeStatusApproved, domain.ChangeStatusRejected, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAllowedActorApprovalNeverManual(t *testing.T) {
	change := &domain.Change{Status: domain.ChangeStatusPending}
	admin := Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAdmin}
	assert.False(t, AllowedActor(admin, change, domain.ChangeStatusApproved))
}

func TestAllowedActorRejectIsManagerOrAdmin(t *testing.T) {
	change := &domain.Change{Status: domain.ChangeStatusPending}
	manager := Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleManager}
	agent := Actor{Type: domain.SubjectTypeStaff, ID: "s2", Role: domain.StaffRoleAgent}
	requester := Actor{Type: domain.SubjectTypeUser, ID: "u1"}

	assert.True(t, AllowedActor(manager, change, domain.ChangeStatusRejected))
	assert.False(t, AllowedActor(agent, change, domain.ChangeStatusRejected))
	assert.False(t, AllowedActor(requester, change, domain.ChangeStatusRejected))
}

func TestAllowedActorPendingNeverManual(t *testing.T) {
	// Pending is entered only by submission or revision, both of which
	// create the round's instances. A bare status flip is refused for
	// everyone, the requester included.
	change := &domain.Change{Status: domain.ChangeStatusRejected, RequesterID: "u1"}
	requester := Actor{Type: domain.SubjectTypeUser, ID: "u1"}
	admin := Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAdmin}

	assert.False(t, AllowedActor(requester, change, domain.ChangeStatusPending))
	assert.False(t, AllowedActor(admin, change, domain.ChangeStatusPending))
}

func TestAllowedActorImplementationStatesRequireStaff(t *testing.T) {
	change := &domain.Change{Status: domain.ChangeStatusApproved, RequesterID: "u1"}
	agent := Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAgent}
	requester := Actor{Type: domain.SubjectTypeUser, ID: "u1"}

	assert.True(t, AllowedActor(agent, change, domain.ChangeStatusInProgress))
	assert.False(t, AllowedActor(requester, change, domain.ChangeStatusInProgress))
}

func TestAllowedActorRollbackIsAgentOrAdmin(t *testing.T) {
	change := &domain.Change{Status: domain.ChangeStatusFailed}
	agent := Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAgent}
	manager := Actor{Type: domain.SubjectTypeStaff, ID: "s2", Role: domain.StaffRoleManager}

	assert.True(t, AllowedActor(agent, change, domain.ChangeStatusRollback))
	assert.False(t, AllowedActor(manager, change, domain.ChangeStatusRollback))
}

func TestAllowedActorClose(t *testing.T) {
	rejected := &domain.Change{Status: domain.ChangeStatusRejected, RequesterID: "u1"}
	admin := Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAdmin}
	requester := Actor{Type: domain.SubjectTypeUser, ID: "u1"}
	other := Actor{Type: domain.SubjectTypeUser, ID: "u2"}

	assert.True(t, AllowedActor(admin, rejected, domain.ChangeStatusClosed))
	assert.True(t, AllowedActor(requester, rejected, domain.ChangeStatusClosed))
	assert.False(t, AllowedActor(other, rejected, domain.ChangeStatusClosed))
}
