package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/approval"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/repository"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// ApprovalService records approver decisions and exposes pending work.
type ApprovalService struct {
	approvals  repository.ApprovalRepository
	changes    repository.ChangeRepository
	history    repository.ChangeHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(
	approvals repository.ApprovalRepository,
	changes repository.ChangeRepository,
	history repository.ChangeHistoryRepository,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		approvals:  approvals,
		changes:    changes,
		history:    history,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// DecisionInput carries one approver verdict.
type DecisionInput struct {
	Action   domain.ApprovalAction
	Comments *string
}

// DecisionResult reports the workflow effect of a recorded decision.
type DecisionResult struct {
	Instance  domain.ApprovalInstance
	Completed bool
	Approved  bool
	NextLevel int
}

// PendingApproval pairs a change with the approver's actionable instances.
type PendingApproval struct {
	Change    domain.Change
	Instances []domain.ApprovalInstance
}

// SubmitDecision records an approve/reject verdict. The change row is locked
// for the duration so concurrent decisions on the same change serialize; a
// lost race on the instance row surfaces as an already-decided conflict.
func (s *ApprovalService) SubmitDecision(ctx context.Context, approverID, changeID string, input DecisionInput) (*DecisionResult, error) {
	if !domain.KnownApprovalAction(input.Action) {
		return nil, apperrors.NewValidationError("unknown approval action", map[string]any{"action": input.Action})
	}

	var result DecisionResult
	var outcome approval.Outcome
	var decided *domain.Change
	var priorStatus domain.ChangeStatus

	err := s.approvals.InChangeTx(ctx, changeID, func(tx repository.DecisionTx) error {
		change := tx.Change()
		if change.Status != domain.ChangeStatusPending && change.Status != domain.ChangeStatusSubmitted {
			return apperrors.NewWorkflowFinalized()
		}
		priorStatus = change.Status
		if change.ApprovalRound == 0 {
			return apperrors.NewNotAuthorizedApprover()
		}

		instances, err := tx.Instances(ctx, change.ApprovalRound)
		if err != nil {
			return err
		}

		now := time.Now()
		outcome, err = approval.EvaluateDecision(instances, approverID, input.Action, input.Comments, now)
		if err != nil {
			return mapEngineError(err)
		}

		ok, err := tx.Decide(ctx, outcome.Instance.ID, outcome.Instance.Status, input.Comments, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewAlreadyDecided()
		}
		if len(outcome.SupersededIDs) > 0 {
			if err := tx.Supersede(ctx, outcome.SupersededIDs); err != nil {
				return err
			}
		}

		if outcome.Completed {
			if outcome.Approved {
				change.Status = domain.ChangeStatusApproved
			} else {
				change.Status = domain.ChangeStatusRejected
			}
			if err := tx.UpdateChange(ctx, change); err != nil {
				return err
			}
		}

		decided = change
		result = DecisionResult{
			Instance:  outcome.Instance,
			Completed: outcome.Completed,
			Approved:  outcome.Approved,
			NextLevel: outcome.NextLevel,
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("change", map[string]any{"change_id": changeID})
		}
		return nil, err
	}

	s.recordDecision(ctx, decided, outcome, approverID, input)
	s.publishDecision(ctx, decided, result, input.Action, approverID, priorStatus)
	return &result, nil
}

// ListPendingForApprover returns changes on which the approver can act right
// now: only instances at the active level of a still-pending workflow count.
func (s *ApprovalService) ListPendingForApprover(ctx context.Context, approverID string) ([]PendingApproval, error) {
	changeIDs, err := s.approvals.ListPendingChangeIDs(ctx, approverID)
	if err != nil {
		return nil, err
	}

	pending := make([]PendingApproval, 0, len(changeIDs))
	for _, changeID := range changeIDs {
		change, err := s.changes.GetByID(ctx, changeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		if change.Status != domain.ChangeStatusPending && change.Status != domain.ChangeStatusSubmitted {
			continue
		}
		instances, err := s.approvals.ListRound(ctx, changeID, change.ApprovalRound)
		if err != nil {
			return nil, err
		}
		actionable := approval.PendingFor(instances, approverID)
		if len(actionable) == 0 {
			continue
		}
		pending = append(pending, PendingApproval{Change: *change, Instances: actionable})
	}
	return pending, nil
}

// WorkflowState reports the derived approval state for a change.
func (s *ApprovalService) WorkflowState(ctx context.Context, changeID string) (approval.State, error) {
	change, err := s.changes.GetByID(ctx, changeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return approval.State{}, apperrors.NewNotFound("change", map[string]any{"change_id": changeID})
		}
		return approval.State{}, err
	}
	if change.ApprovalRound == 0 {
		return approval.State{Phase: approval.PhaseNoApprovalRequired}, nil
	}
	instances, err := s.approvals.ListRound(ctx, changeID, change.ApprovalRound)
	if err != nil {
		return approval.State{}, err
	}
	return approval.DeriveState(instances), nil
}

func (s *ApprovalService) recordDecision(ctx context.Context, change *domain.Change, outcome approval.Outcome, approverID string, input DecisionInput) {
	if s.history == nil {
		return
	}
	entry := &domain.ChangeHistory{
		ChangeID:      change.ID,
		ChangedByType: domain.SubjectTypeStaff,
		ChangedByID:   &approverID,
		EventType:     domain.ChangeEventApprovalDecision,
		NewValue: map[string]any{
			"instance_id": outcome.Instance.ID,
			"level":       outcome.Instance.Level,
			"action":      input.Action,
			"status":      change.Status,
		},
	}
	if input.Comments != nil {
		entry.NewValue["comments"] = *input.Comments
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record approval history", zap.Error(err), zap.String("change_id", change.ID))
	}
}

func (s *ApprovalService) publishDecision(ctx context.Context, change *domain.Change, result DecisionResult, action domain.ApprovalAction, approverID string, priorStatus domain.ChangeStatus) {
	publish(ctx, s.dispatcher, events.Event{
		Type:     events.EventApprovalDecisionRecorded,
		ChangeID: change.ID,
		Actor:    staffActor(approverID),
		Payload: events.ApprovalDecisionRecordedPayload{
			InstanceID:    result.Instance.ID,
			ApproverID:    approverID,
			Level:         result.Instance.Level,
			Action:        action,
			LevelComplete: result.NextLevel > 0 || result.Completed,
			Completed:     result.Completed,
			Approved:      result.Approved,
			NextLevel:     result.NextLevel,
		},
	})
	if result.Completed {
		publish(ctx, s.dispatcher, events.Event{
			Type:     events.EventChangeStatusChanged,
			ChangeID: change.ID,
			Actor:    staffActor(approverID),
			Payload: events.ChangeStatusChangedPayload{
				OldStatus: priorStatus,
				NewStatus: change.Status,
			},
		})
	}
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, approval.ErrNotAuthorizedApprover):
		return apperrors.NewNotAuthorizedApprover()
	case errors.Is(err, approval.ErrAlreadyDecided):
		return apperrors.NewAlreadyDecided()
	case errors.Is(err, approval.ErrLevelNotActive):
		return apperrors.NewLevelNotActive()
	case errors.Is(err, approval.ErrWorkflowFinalized):
		return apperrors.NewWorkflowFinalized()
	default:
		return err
	}
}
