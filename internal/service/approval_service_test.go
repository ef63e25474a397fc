package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/approval"
	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
)

func TestSubmitDecisionApprovesThroughLevels(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.addRule(2, "cab", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	result, err := f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, 2, result.NextLevel)

	// Change stays pending until the final level.
	current, err := f.changes.GetByID(context.Background(), change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusPending, current.Status)

	result, err = f.approvals.SubmitDecision(context.Background(), "cab", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.True(t, result.Approved)

	current, err = f.changes.GetByID(context.Background(), change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusApproved, current.Status)
	assert.Contains(t, f.history.eventTypes(), domain.ChangeEventApprovalDecision)
}

func TestSubmitDecisionRejectionFinalizesChange(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.addRule(2, "cab", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	comment := "no maintenance window booked"
	result, err := f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{
		Action:   domain.ApprovalActionRejected,
		Comments: &comment,
	})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.False(t, result.Approved)

	current, err := f.changes.GetByID(context.Background(), change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusRejected, current.Status)

	// Level 2 never activates after a rejection.
	_, err = f.approvals.SubmitDecision(context.Background(), "cab", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	assert.Error(t, err)
}

func TestSubmitDecisionOutOfOrderLevel(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.addRule(2, "cab", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "cab", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.Error(t, err)
}

func TestSubmitDecisionReplayConflicts(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.addRule(2, "cab", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.NoError(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.Error(t, err)
}

func TestSubmitDecisionUnknownApproverAndChange(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "stranger", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	assert.Error(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", "missing", DecisionInput{Action: domain.ApprovalActionApproved})
	assert.Error(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: "MAYBE"})
	assert.Error(t, err)
}

func TestSubmitDecisionAnyGateSupersedesSiblings(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "alice", false)
	f.addRule(1, "bob", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	result, err := f.approvals.SubmitDecision(context.Background(), "alice", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.NoError(t, err)
	assert.True(t, result.Completed)

	// Bob's instance was sidelined, not decided.
	instances, err := f.instances.ListByChange(context.Background(), change.ID)
	require.NoError(t, err)
	for _, inst := range instances {
		if inst.ApproverID == "bob" {
			assert.True(t, inst.Superseded)
			assert.Equal(t, domain.ApprovalStatusPending, inst.Status)
		}
	}
}

func TestListPendingForApprover(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.addRule(2, "cab", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	// Level 2 is not actionable until level 1 resolves.
	pending, err := f.approvals.ListPendingForApprover(context.Background(), "cab")
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = f.approvals.ListPendingForApprover(context.Background(), "lead")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, change.ID, pending[0].Change.ID)
	require.Len(t, pending[0].Instances, 1)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.NoError(t, err)

	pending, err = f.approvals.ListPendingForApprover(context.Background(), "cab")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	pending, err = f.approvals.ListPendingForApprover(context.Background(), "lead")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorkflowStateEndpointStates(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})

	// No rules: auto approval, no workflow.
	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	state, err := f.approvals.WorkflowState(context.Background(), change.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.PhaseNoApprovalRequired, state.Phase)

	f.addRule(1, "lead", false)
	routed, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	state, err = f.approvals.WorkflowState(context.Background(), routed.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.PhaseAwaitingLevel, state.Phase)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", routed.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.NoError(t, err)

	state, err = f.approvals.WorkflowState(context.Background(), routed.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.PhaseFullyApproved, state.Phase)
}

func TestSubmitDecisionEventCarriesPriorStatus(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})

	// A change still in SUBMITTED can be decided; the status-changed event
	// must report that state, not whatever the change usually sits in.
	change := domain.Change{
		ID:            "chg-intake",
		ExternalKey:   "CHG-INTAKE",
		RequesterID:   "u1",
		ProductID:     f.productID,
		Status:        domain.ChangeStatusSubmitted,
		ApprovalRound: 1,
	}
	f.changes.changes[change.ID] = change
	f.instances.addInstances([]domain.ApprovalInstance{{
		ChangeID:   change.ID,
		ApproverID: "lead",
		Level:      1,
		Round:      1,
		Status:     domain.ApprovalStatusPending,
	}})

	var payload events.ChangeStatusChangedPayload
	f.dispatcher.Subscribe(events.EventChangeStatusChanged, func(_ context.Context, event events.Event) error {
		payload = event.Payload.(events.ChangeStatusChangedPayload)
		return nil
	})

	_, err := f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionApproved})
	require.NoError(t, err)

	assert.Equal(t, domain.ChangeStatusSubmitted, payload.OldStatus)
	assert.Equal(t, domain.ChangeStatusApproved, payload.NewStatus)
}
