package approval

import (
	"errors"
	"sort"
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// Engine errors surfaced to callers of EvaluateDecision.
var (
	// ErrNotAuthorizedApprover means the caller holds no approval instance
	// for the change in the current round.
	ErrNotAuthorizedApprover = errors.New("caller is not a pending approver for this change")
	// ErrAlreadyDecided means the caller's instance already reached a
	// terminal state. Replays must fail, not overwrite.
	ErrAlreadyDecided = errors.New("approval instance already decided")
	// ErrLevelNotActive means the caller's instance is not at the level
	// currently awaiting decisions.
	ErrLevelNotActive = errors.New("approval level is not active")
	// ErrWorkflowFinalized means the workflow already reached a terminal
	// state and accepts no further decisions.
	ErrWorkflowFinalized = errors.New("approval workflow already finalized")
)

// Phase identifies the derived workflow state.
type Phase string

const (
	PhaseNoApprovalRequired Phase = "NO_APPROVAL_REQUIRED"
	PhaseAwaitingLevel      Phase = "AWAITING_LEVEL"
	PhaseFullyApproved      Phase = "FULLY_APPROVED"
	PhaseRejected           Phase = "REJECTED"
)

// State is the workflow state derived from persisted instances. It is a pure
// projection: no state machine object survives between requests, so stale
// in-memory state cannot leak across concurrent callers.
type State struct {
	Phase       Phase
	ActiveLevel int // meaningful only in PhaseAwaitingLevel
	TotalLevels int
}

// Terminal reports whether the workflow accepts further decisions.
func (s State) Terminal() bool {
	return s.Phase == PhaseFullyApproved || s.Phase == PhaseRejected || s.Phase == PhaseNoApprovalRequired
}

// DeriveState recomputes the workflow state from the given instances.
// Superseded rows and rows from prior rounds must already be filtered out by
// the caller. A single rejection anywhere finalizes the workflow as rejected;
// otherwise levels are walked in ascending order and the first level whose
// gate predicate is unsatisfied is the active one.
func DeriveState(instances []domain.ApprovalInstance) State {
	live := liveInstances(instances)
	if len(live) == 0 {
		return State{Phase: PhaseNoApprovalRequired}
	}

	levels := groupByLevel(live)
	state := State{TotalLevels: len(levels)}

	for _, siblings := range levels {
		for _, inst := range siblings {
			if inst.Status == domain.ApprovalStatusRejected {
				state.Phase = PhaseRejected
				return state
			}
		}
	}

	for _, siblings := range levels {
		if !levelComplete(siblings) {
			state.Phase = PhaseAwaitingLevel
			state.ActiveLevel = siblings[0].Level
			return state
		}
	}

	state.Phase = PhaseFullyApproved
	return state
}

// Outcome describes the effect of one submitted decision.
type Outcome struct {
	Instance      domain.ApprovalInstance // the decided instance, updated
	State         State                   // workflow state after the decision
	LevelComplete bool
	Completed     bool // workflow reached a terminal state
	Approved      bool // meaningful when Completed
	NextLevel     int  // 0 unless the decision advanced to a further level
	// SupersededIDs lists sibling instances left pending when an "any" gate
	// completed; they must be excluded from pending listings from now on.
	SupersededIDs []string
}

// EvaluateDecision applies one approver's verdict against the current
// instance set and returns the updated instance plus the resulting workflow
// state. The function is pure; the caller persists the outcome inside a
// per-change serialized transaction.
func EvaluateDecision(instances []domain.ApprovalInstance, approverID string, action domain.ApprovalAction, comments *string, now time.Time) (Outcome, error) {
	live := liveInstances(instances)

	state := DeriveState(instances)
	if state.Phase == PhaseRejected || state.Phase == PhaseFullyApproved {
		return Outcome{}, ErrWorkflowFinalized
	}
	if state.Phase == PhaseNoApprovalRequired {
		return Outcome{}, ErrNotAuthorizedApprover
	}

	// An approver may hold instances at several levels; only the one at the
	// active level is decidable.
	var target domain.ApprovalInstance
	var foundActive, foundPending, foundDecided bool
	for _, inst := range live {
		if inst.ApproverID != approverID {
			continue
		}
		if inst.Status == domain.ApprovalStatusPending {
			foundPending = true
			if inst.Level == state.ActiveLevel {
				target = inst
				foundActive = true
			}
		} else {
			foundDecided = true
		}
	}
	if !foundActive {
		switch {
		case foundPending:
			return Outcome{}, ErrLevelNotActive
		case foundDecided || hasSupersededFor(instances, approverID):
			return Outcome{}, ErrAlreadyDecided
		default:
			return Outcome{}, ErrNotAuthorizedApprover
		}
	}

	decidedAt := now
	target.DecidedAt = &decidedAt
	target.Comments = comments

	if action == domain.ApprovalActionRejected {
		// A single rejection halts the workflow regardless of the level gate.
		target.Status = domain.ApprovalStatusRejected
		return Outcome{
			Instance:  target,
			State:     State{Phase: PhaseRejected, TotalLevels: state.TotalLevels},
			Completed: true,
			Approved:  false,
		}, nil
	}

	target.Status = domain.ApprovalStatusApproved
	updated := replaceInstance(live, target)
	next := DeriveState(updated)

	outcome := Outcome{Instance: target, State: next}
	switch next.Phase {
	case PhaseFullyApproved:
		outcome.LevelComplete = true
		outcome.Completed = true
		outcome.Approved = true
	case PhaseAwaitingLevel:
		if next.ActiveLevel != state.ActiveLevel {
			outcome.LevelComplete = true
			outcome.NextLevel = next.ActiveLevel
		}
	}

	if outcome.LevelComplete && !target.RequireAll {
		for _, inst := range updated {
			if inst.Level == target.Level && inst.Status == domain.ApprovalStatusPending {
				outcome.SupersededIDs = append(outcome.SupersededIDs, inst.ID)
			}
		}
	}
	return outcome, nil
}

// PendingFor returns the instances awaiting a decision that are actionable
// right now: pending, not superseded, and at the active level. This is the
// same predicate the engine evaluates, so listings agree with decisions.
func PendingFor(instances []domain.ApprovalInstance, approverID string) []domain.ApprovalInstance {
	state := DeriveState(instances)
	if state.Phase != PhaseAwaitingLevel {
		return nil
	}
	var pending []domain.ApprovalInstance
	for _, inst := range liveInstances(instances) {
		if inst.Status != domain.ApprovalStatusPending || inst.Level != state.ActiveLevel {
			continue
		}
		if approverID == "" || inst.ApproverID == approverID {
			pending = append(pending, inst)
		}
	}
	return pending
}

func liveInstances(instances []domain.ApprovalInstance) []domain.ApprovalInstance {
	live := make([]domain.ApprovalInstance, 0, len(instances))
	for _, inst := range instances {
		if inst.Superseded {
			continue
		}
		live = append(live, inst)
	}
	return live
}

// groupByLevel returns sibling slices ordered by ascending level.
func groupByLevel(instances []domain.ApprovalInstance) [][]domain.ApprovalInstance {
	byLevel := make(map[int][]domain.ApprovalInstance)
	for _, inst := range instances {
		byLevel[inst.Level] = append(byLevel[inst.Level], inst)
	}
	levels := make([]int, 0, len(byLevel))
	for level := range byLevel {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	grouped := make([][]domain.ApprovalInstance, 0, len(levels))
	for _, level := range levels {
		grouped = append(grouped, byLevel[level])
	}
	return grouped
}

// levelComplete evaluates the level gate: "all" requires every sibling
// approved, "any" is satisfied by a single approval.
func levelComplete(siblings []domain.ApprovalInstance) bool {
	requireAll := false
	for _, inst := range siblings {
		if inst.RequireAll {
			requireAll = true
			break
		}
	}

	if requireAll {
		for _, inst := range siblings {
			if inst.Status != domain.ApprovalStatusApproved {
				return false
			}
		}
		return true
	}
	for _, inst := range siblings {
		if inst.Status == domain.ApprovalStatusApproved {
			return true
		}
	}
	return false
}

func hasSupersededFor(instances []domain.ApprovalInstance, approverID string) bool {
	for _, inst := range instances {
		if inst.ApproverID == approverID && inst.Superseded {
			return true
		}
	}
	return false
}

func replaceInstance(instances []domain.ApprovalInstance, updated domain.ApprovalInstance) []domain.ApprovalInstance {
	out := make([]domain.ApprovalInstance, len(instances))
	copy(out, instances)
	for i := range out {
		if out[i].ApproverID == updated.ApproverID && out[i].Level == updated.Level {
			out[i] = updated
		}
	}
	return out
}
