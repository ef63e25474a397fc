package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/domain"
)

func pendingInstance(id, approverID string, level int, requireAll bool) domain.ApprovalInstance {
	return domain.ApprovalInstance{
		ID:         id,
		ChangeID:   "chg-1",
		ApproverID: approverID,
		Level:      level,
		RequireAll: requireAll,
		Status:     domain.ApprovalStatusPending,
		Round:      1,
	}
}

func approved(inst domain.ApprovalInstance) domain.ApprovalInstance {
	now := time.Now()
	inst.Status = domain.ApprovalStatusApproved
	inst.DecidedAt = &now
	return inst
}

func TestDeriveStateEmpty(t *testing.T) {
	state := DeriveState(nil)
	assert.Equal(t, PhaseNoApprovalRequired, state.Phase)
	assert.True(t, state.Terminal())
}

func TestDeriveStateAwaitsLowestIncompleteLevel(t *testing.T) {
	instances := []domain.ApprovalInstance{
		approved(pendingInstance("i1", "lead", 1, false)),
		pendingInstance("i2", "manager", 2, false),
		pendingInstance("i3", "cab", 3, false),
	}
	state := DeriveState(instances)
	assert.Equal(t, PhaseAwaitingLevel, state.Phase)
	assert.Equal(t, 2, state.ActiveLevel)
	assert.Equal(t, 3, state.TotalLevels)
	assert.False(t, state.Terminal())
}

func TestDeriveStateRejectionWins(t *testing.T) {
	rejected := pendingInstance("i2", "manager", 2, false)
	rejected.Status = domain.ApprovalStatusRejected
	instances := []domain.ApprovalInstance{
		approved(pendingInstance("i1", "lead", 1, false)),
		rejected,
		pendingInstance("i3", "cab", 3, false),
	}
	state := DeriveState(instances)
	assert.Equal(t, PhaseRejected, state.Phase)
	assert.True(t, state.Terminal())
}

func TestDeriveStateIgnoresSuperseded(t *testing.T) {
	stale := pendingInstance("i1", "lead", 1, false)
	stale.Superseded = true
	state := DeriveState([]domain.ApprovalInstance{stale})
	assert.Equal(t, PhaseNoApprovalRequired, state.Phase)
}

func TestEvaluateDecisionSingleLevelApproval(t *testing.T) {
	instances := []domain.ApprovalInstance{pendingInstance("i1", "lead", 1, false)}

	outcome, err := EvaluateDecision(instances, "lead", domain.ApprovalActionApproved, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, outcome.Instance.Status)
	assert.NotNil(t, outcome.Instance.DecidedAt)
	assert.True(t, outcome.Completed)
	assert.True(t, outcome.Approved)
	assert.Equal(t, PhaseFullyApproved, outcome.State.Phase)
}

func TestEvaluateDecisionRejectionHaltsImmediately(t *testing.T) {
	instances := []domain.ApprovalInstance{
		pendingInstance("i1", "lead", 1, false),
		pendingInstance("i2", "manager", 2, false),
	}
	comment := "rollback plan insufficient"

	outcome, err := EvaluateDecision(instances, "lead", domain.ApprovalActionRejected, &comment, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusRejected, outcome.Instance.Status)
	assert.True(t, outcome.Completed)
	assert.False(t, outcome.Approved)
	assert.Equal(t, PhaseRejected, outcome.State.Phase)
	require.NotNil(t, outcome.Instance.Comments)
	assert.Equal(t, comment, *outcome.Instance.Comments)
}

func TestEvaluateDecisionAdvancesToNextLevel(t *testing.T) {
	instances := []domain.ApprovalInstance{
		pendingInstance("i1", "lead", 1, false),
		pendingInstance("i2", "manager", 2, false),
	}

	outcome, err := EvaluateDecision(instances, "lead", domain.ApprovalActionApproved, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, outcome.LevelComplete)
	assert.False(t, outcome.Completed)
	assert.Equal(t, 2, outcome.NextLevel)
	assert.Equal(t, PhaseAwaitingLevel, outcome.State.Phase)
	assert.Equal(t, 2, outcome.State.ActiveLevel)
}

func TestEvaluateDecisionAnyGateSupersedesSiblings(t *testing.T) {
	instances := []domain.ApprovalInstance{
		pendingInstance("i1", "alice", 1, false),
		pendingInstance("i2", "bob", 1, false),
		pendingInstance("i3", "cab", 2, false),
	}

	outcome, err := EvaluateDecision(instances, "alice", domain.ApprovalActionApproved, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, outcome.LevelComplete)
	assert.Equal(t, 2, outcome.NextLevel)
	assert.Equal(t, []string{"i2"}, outcome.SupersededIDs)
}

func TestEvaluateDecisionAllGateWaitsForEverySibling(t *testing.T) {
	instances := []domain.ApprovalInstance{
		pendingInstance("i1", "alice", 1, true),
		pendingInstance("i2", "bob", 1, true),
	}

	outcome, err := EvaluateDecision(instances, "alice", domain.ApprovalActionApproved, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, outcome.LevelComplete)
	assert.False(t, outcome.Completed)
	assert.Empty(t, outcome.SupersededIDs)
	assert.Equal(t, 1, outcome.State.ActiveLevel)

	// Second sibling completes the gate.
	instances[0] = approved(instances[0])
	outcome, err = EvaluateDecision(instances, "bob", domain.ApprovalActionApproved, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.True(t, outcome.Approved)
}

func TestEvaluateDecisionLevelOrderingEnforced(t *testing.T) {
	instances := []domain.ApprovalInstance{
		pendingInstance("i1", "lead", 1, false),
		pendingInstance("i2", "cab", 2, false),
	}

	_, err := EvaluateDecision(instances, "cab", domain.ApprovalActionApproved, nil, time.Now())
	assert.ErrorIs(t, err, ErrLevelNotActive)
}

func TestEvaluateDecisionUnknownApprover(t *testing.T) {
	instances := []domain.ApprovalInstance{pendingInstance("i1", "lead", 1, false)}

	_, err := EvaluateDecision(instances, "stranger", domain.ApprovalActionApproved, nil, time.Now())
	assert.ErrorIs(t, err, ErrNotAuthorizedApprover)
}

func TestEvaluateDecisionReplayFails(t *testing.T) {
	instances := []domain.ApprovalInstance{
		approved(pendingInstance("i1", "lead", 1, false)),
		pendingInstance("i2", "cab", 2, false),
	}

	_, err := EvaluateDecision(instances, "lead", domain.ApprovalActionApproved, nil, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestEvaluateDecisionSupersededApproverCannotAct(t *testing.T) {
	stale := pendingInstance("i2", "bob", 1, false)
	stale.Superseded = true
	instances := []domain.ApprovalInstance{
		approved(pendingInstance("i1", "alice", 1, false)),
		stale,
		pendingInstance("i3", "cab", 2, false),
	}

	_, err := EvaluateDecision(instances, "bob", domain.ApprovalActionApproved, nil, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestEvaluateDecisionFinalizedWorkflowRefusesDecisions(t *testing.T) {
	rejected := pendingInstance("i1", "lead", 1, false)
	rejected.Status = domain.ApprovalStatusRejected
	instances := []domain.ApprovalInstance{rejected, pendingInstance("i2", "cab", 2, false)}

	_, err := EvaluateDecision(instances, "cab", domain.ApprovalActionApproved, nil, time.Now())
	assert.ErrorIs(t, err, ErrWorkflowFinalized)
}

func TestEvaluateDecisionApproverAtMultipleLevels(t *testing.T) {
	instances := []domain.ApprovalInstance{
		pendingInstance("i1", "lead", 1, false),
		pendingInstance("i2", "lead", 2, false),
	}

	// Only the level-1 instance is decidable first.
	outcome, err := EvaluateDecision(instances, "lead", domain.ApprovalActionApproved, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "i1", outcome.Instance.ID)
	assert.Equal(t, 2, outcome.NextLevel)
}

// Mirrors a three-level escalation: team lead, then either of two managers,
// then the full board.
func TestEvaluateDecisionFullScenario(t *testing.T) {
	now := time.Now()
	instances := []domain.ApprovalInstance{
		pendingInstance("lead", "u-lead", 1, false),
		pendingInstance("mgr-a", "u-mgr-a", 2, false),
		pendingInstance("mgr-b", "u-mgr-b", 2, false),
		pendingInstance("board-1", "u-board-1", 3, true),
		pendingInstance("board-2", "u-board-2", 3, true),
	}

	outcome, err := EvaluateDecision(instances, "u-lead", domain.ApprovalActionApproved, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.NextLevel)
	instances = applyOutcome(instances, outcome)

	outcome, err = EvaluateDecision(instances, "u-mgr-b", domain.ApprovalActionApproved, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.NextLevel)
	assert.Equal(t, []string{"mgr-a"}, outcome.SupersededIDs)
	instances = applyOutcome(instances, outcome)

	// The sidelined manager can no longer act.
	_, err = EvaluateDecision(instances, "u-mgr-a", domain.ApprovalActionApproved, nil, now)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	outcome, err = EvaluateDecision(instances, "u-board-1", domain.ApprovalActionApproved, nil, now)
	require.NoError(t, err)
	assert.False(t, outcome.Completed)
	instances = applyOutcome(instances, outcome)

	outcome, err = EvaluateDecision(instances, "u-board-2", domain.ApprovalActionApproved, nil, now)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.True(t, outcome.Approved)
	assert.Equal(t, PhaseFullyApproved, outcome.State.Phase)
}

func TestPendingForReturnsOnlyActiveLevel(t *testing.T) {
	instances := []domain.ApprovalInstance{
		approved(pendingInstance("i1", "lead", 1, false)),
		pendingInstance("i2", "cab", 2, false),
		pendingInstance("i3", "board", 3, false),
	}

	pending := PendingFor(instances, "cab")
	require.Len(t, pending, 1)
	assert.Equal(t, "i2", pending[0].ID)

	assert.Empty(t, PendingFor(instances, "board"))
}

func TestPendingForTerminalWorkflow(t *testing.T) {
	rejected := pendingInstance("i1", "lead", 1, false)
	rejected.Status = domain.ApprovalStatusRejected
	assert.Empty(t, PendingFor([]domain.ApprovalInstance{rejected}, "lead"))
}

func applyOutcome(instances []domain.ApprovalInstance, outcome Outcome) []domain.ApprovalInstance {
	out := make([]domain.ApprovalInstance, len(instances))
	copy(out, instances)
	for i := range out {
		if out[i].ID == outcome.Instance.ID {
			out[i] = outcome.Instance
		}
		for _, superseded := range outcome.SupersededIDs {
			if out[i].ID == superseded {
				out[i].Superseded = true
			}
		}
	}
	return out
}
