package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/approval"
	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/repository"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// ChangeService coordinates change intake, revision and lifecycle moves.
type ChangeService struct {
	changes    repository.ChangeRepository
	approvals  repository.ApprovalRepository
	products   repository.ProductRepository
	history    repository.ChangeHistoryRepository
	routing    *RoutingService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.ApprovalConfig
}

// ChangeDependencies bundles repositories for the change service.
type ChangeDependencies struct {
	ChangeRepo   repository.ChangeRepository
	ApprovalRepo repository.ApprovalRepository
	ProductRepo  repository.ProductRepository
	HistoryRepo  repository.ChangeHistoryRepository
	Routing      *RoutingService
	Dispatcher   events.Dispatcher
}

// ChangeCreateInput describes change creation payload.
type ChangeCreateInput struct {
	ProductID    string
	RiskLevel    domain.RiskLevel
	ChangeType   domain.ChangeType
	Title        string
	Description  string
	RollbackPlan string
	PlannedStart *time.Time
	PlannedEnd   *time.Time
}

// ChangeReviseInput describes the fields a requester may edit before
// resubmitting a rejected change.
type ChangeReviseInput struct {
	Title        *string
	Description  *string
	RollbackPlan *string
	PlannedStart *time.Time
	PlannedEnd   *time.Time
}

// ChangeListFilter describes listing filters.
type ChangeListFilter struct {
	Statuses    []domain.ChangeStatus
	RiskLevels  []domain.RiskLevel
	ChangeTypes []domain.ChangeType
	ProductID   *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewChangeService constructs the service.
func NewChangeService(cfg config.ApprovalConfig, deps ChangeDependencies, logger *zap.Logger) *ChangeService {
	return &ChangeService{
		changes:    deps.ChangeRepo,
		approvals:  deps.ApprovalRepo,
		products:   deps.ProductRepo,
		history:    deps.HistoryRepo,
		routing:    deps.Routing,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// CreateChange registers a change request and, unless the change type or the
// routing configuration bypasses approval, instantiates the approval workflow
// for every resolved level up front.
func (s *ChangeService) CreateChange(ctx context.Context, userID string, input ChangeCreateInput) (*domain.Change, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewValidationError("product not found", map[string]any{"product_id": input.ProductID})
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, apperrors.NewValidationError("product inactive", map[string]any{"product_id": product.ID})
	}

	now := time.Now()
	if input.ChangeType == domain.ChangeTypeNormal {
		lead := s.cfg.MinLeadTime()
		if input.PlannedStart == nil || input.PlannedStart.Sub(now) < lead {
			return nil, apperrors.NewValidationError("normal changes require lead time before planned start",
				map[string]any{"min_lead_time": lead.String()})
		}
	}

	change := &domain.Change{
		ExternalKey:  generateChangeKey(),
		RequesterID:  userID,
		ProductID:    product.ID,
		Status:       domain.ChangeStatusSubmitted,
		RiskLevel:    input.RiskLevel,
		ChangeType:   input.ChangeType,
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		RollbackPlan: strings.TrimSpace(input.RollbackPlan),
		PlannedStart: input.PlannedStart,
		PlannedEnd:   input.PlannedEnd,
		SubmittedAt:  now,
	}

	var plan approval.Plan
	bypass := false
	if input.ChangeType == domain.ChangeTypeStandard {
		// Pre-authorized change types skip the workflow entirely.
		change.Status = domain.ChangeStatusApproved
		change.ApprovalRound = 0
	} else {
		plan, err = s.routing.ResolvePlan(ctx, product, input.RiskLevel)
		if err != nil {
			return nil, err
		}
		if plan.Empty() {
			if !s.cfg.AllowUnrouted {
				return nil, apperrors.NewNoMatchingRoute(map[string]any{
					"product_id": product.ID,
					"risk_level": input.RiskLevel,
				})
			}
			bypass = true
			change.Status = domain.ChangeStatusApproved
			change.ApprovalRound = 0
		} else {
			change.Status = domain.ChangeStatusPending
			change.ApprovalRound = 1
		}
	}

	var instances []domain.ApprovalInstance
	if change.ApprovalRound > 0 {
		// The repository stamps ChangeID once the row exists.
		instances = plan.Instances("", change.ApprovalRound)
	}
	if err := s.changes.CreateWithInstances(ctx, change, instances); err != nil {
		return nil, err
	}

	s.recordHistory(ctx, &domain.ChangeHistory{
		ChangeID:      change.ID,
		ChangedByType: domain.SubjectTypeUser,
		ChangedByID:   &userID,
		EventType:     domain.ChangeEventStatus,
		OldValue:      map[string]any{"status": domain.ChangeStatusSubmitted},
		NewValue: map[string]any{
			"status": change.Status,
			"round":  change.ApprovalRound,
		},
	})

	if bypass {
		s.logger.Warn("no routing rules matched; change auto-approved",
			zap.String("change_id", change.ID),
			zap.String("product_id", product.ID),
			zap.String("risk_level", string(change.RiskLevel)))
		s.recordHistory(ctx, &domain.ChangeHistory{
			ChangeID:      change.ID,
			ChangedByType: domain.SubjectTypeUser,
			ChangedByID:   &userID,
			EventType:     domain.ChangeEventUnroutedBypass,
			NewValue: map[string]any{
				"status":     change.Status,
				"risk_level": change.RiskLevel,
			},
		})
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventChangeSubmitted,
		ChangeID: change.ID,
		Actor:    userActor(userID),
		Payload: events.ChangeSubmittedPayload{
			ProductID:  change.ProductID,
			RiskLevel:  change.RiskLevel,
			ChangeType: change.ChangeType,
			Status:     change.Status,
			Title:      change.Title,
			LevelCount: len(plan.Levels),
			AutoBypass: bypass,
		},
	})
	if len(plan.Levels) > 0 {
		s.publishLevelActivated(ctx, change.ID, userActor(userID), plan.Levels[0])
	}
	return change, nil
}

// GetChange fetches a change by ID or by its human-facing external key,
// enforcing requester ownership for end-users.
func (s *ChangeService) GetChange(ctx context.Context, actor approval.Actor, changeID string) (*domain.Change, error) {
	var change *domain.Change
	var err error
	if strings.HasPrefix(changeID, "CHG-") {
		change, err = s.changes.GetByExternalKey(ctx, changeID)
	} else {
		change, err = s.changes.GetByID(ctx, changeID)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("change", map[string]any{"change_id": changeID})
		}
		return nil, err
	}
	if actor.Type == domain.SubjectTypeUser && change.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return change, nil
}

// ListChanges returns changes visible to the actor. End-users are scoped to
// their own submissions; staff see everything.
func (s *ChangeService) ListChanges(ctx context.Context, actor approval.Actor, filter ChangeListFilter) ([]domain.Change, error) {
	repoFilter := repository.ChangeFilter{
		ProductID:   filter.ProductID,
		Statuses:    filter.Statuses,
		RiskLevels:  filter.RiskLevels,
		ChangeTypes: filter.ChangeTypes,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if actor.Type == domain.SubjectTypeUser {
		requester := actor.ID
		repoFilter.RequesterID = &requester
	}
	return s.changes.ListWithFilter(ctx, repoFilter)
}

// ListApprovals returns every approval instance for a change, all rounds,
// ordered by level. The audit trail is never pruned.
func (s *ChangeService) ListApprovals(ctx context.Context, actor approval.Actor, changeID string) ([]domain.ApprovalInstance, error) {
	change, err := s.GetChange(ctx, actor, changeID)
	if err != nil {
		return nil, err
	}
	return s.approvals.ListByChange(ctx, change.ID)
}

// WorkflowState derives the approval state for a change from its current
// round of instances. Handlers and listings reuse this single predicate so
// displayed state always agrees with engine decisions.
func (s *ChangeService) WorkflowState(ctx context.Context, change *domain.Change) (approval.State, error) {
	if change.ApprovalRound == 0 {
		return approval.State{Phase: approval.PhaseNoApprovalRequired}, nil
	}
	instances, err := s.approvals.ListRound(ctx, change.ID, change.ApprovalRound)
	if err != nil {
		return approval.State{}, err
	}
	return approval.DeriveState(instances), nil
}

// ListHistory returns audit entries for a change.
func (s *ChangeService) ListHistory(ctx context.Context, actor approval.Actor, changeID string, limit, offset int) ([]domain.ChangeHistory, error) {
	change, err := s.GetChange(ctx, actor, changeID)
	if err != nil {
		return nil, err
	}
	return s.history.ListByChange(ctx, change.ID, limit, offset)
}

// ReviseAndResubmit lets the requester edit a rejected change and restart the
// approval workflow from level 1. Prior instances stay untouched for audit
// and are flagged superseded so pending views skip them.
func (s *ChangeService) ReviseAndResubmit(ctx context.Context, userID, changeID string, input ChangeReviseInput) (*domain.Change, error) {
	var revised *domain.Change
	var plan approval.Plan
	var bypass bool

	err := s.approvals.InChangeTx(ctx, changeID, func(tx repository.DecisionTx) error {
		change := tx.Change()
		if change.RequesterID != userID {
			return apperrors.NewForbidden("only the requester may resubmit a change")
		}
		if change.Status != domain.ChangeStatusRejected {
			return apperrors.NewConflict("only rejected changes can be resubmitted",
				map[string]any{"status": change.Status})
		}

		if input.Title != nil {
			change.Title = strings.TrimSpace(*input.Title)
		}
		if input.Description != nil {
			change.Description = strings.TrimSpace(*input.Description)
		}
		if input.RollbackPlan != nil {
			change.RollbackPlan = strings.TrimSpace(*input.RollbackPlan)
		}
		if input.PlannedStart != nil {
			change.PlannedStart = input.PlannedStart
		}
		if input.PlannedEnd != nil {
			change.PlannedEnd = input.PlannedEnd
		}
		if change.Title == "" || change.Description == "" {
			return apperrors.NewValidationError("title and description required", nil)
		}

		product, err := s.products.GetByID(ctx, change.ProductID)
		if err != nil {
			return err
		}
		// Routing rules may have changed since the original submission;
		// the new round is resolved against the current configuration.
		plan, err = s.routing.ResolvePlan(ctx, product, change.RiskLevel)
		if err != nil {
			return err
		}

		if err := tx.SupersedeRound(ctx, change.ID, change.ApprovalRound); err != nil {
			return err
		}

		change.SubmittedAt = time.Now()
		if plan.Empty() {
			if !s.cfg.AllowUnrouted {
				return apperrors.NewNoMatchingRoute(map[string]any{
					"product_id": change.ProductID,
					"risk_level": change.RiskLevel,
				})
			}
			bypass = true
			change.Status = domain.ChangeStatusApproved
			change.ApprovalRound = 0
		} else {
			change.Status = domain.ChangeStatusPending
			change.ApprovalRound++
			if err := tx.CreateInstances(ctx, plan.Instances(change.ID, change.ApprovalRound)); err != nil {
				return err
			}
		}

		if err := tx.UpdateChange(ctx, change); err != nil {
			return err
		}
		revised = change
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("change", map[string]any{"change_id": changeID})
		}
		return nil, err
	}

	s.recordHistory(ctx, &domain.ChangeHistory{
		ChangeID:      revised.ID,
		ChangedByType: domain.SubjectTypeUser,
		ChangedByID:   &userID,
		EventType:     domain.ChangeEventRevision,
		OldValue:      map[string]any{"status": domain.ChangeStatusRejected},
		NewValue: map[string]any{
			"status": revised.Status,
			"round":  revised.ApprovalRound,
		},
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventChangeResubmitted,
		ChangeID: revised.ID,
		Actor:    userActor(userID),
		Payload: events.ChangeSubmittedPayload{
			ProductID:   revised.ProductID,
			RiskLevel:   revised.RiskLevel,
			ChangeType:  revised.ChangeType,
			Status:      revised.Status,
			Title:       revised.Title,
			LevelCount:  len(plan.Levels),
			AutoBypass:  bypass,
			Resubmitted: true,
		},
	})
	if len(plan.Levels) > 0 {
		s.publishLevelActivated(ctx, revised.ID, userActor(userID), plan.Levels[0])
	}
	return revised, nil
}

// TransitionStatus performs a manual lifecycle move. Transitions into
// APPROVED and PENDING are refused here unconditionally: approval flows only
// through the engine, and pending only through submission or revision.
func (s *ChangeService) TransitionStatus(ctx context.Context, actor approval.Actor, changeID string, next domain.ChangeStatus, comment string) (*domain.Change, error) {
	change, err := s.changes.GetByID(ctx, changeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("change", map[string]any{"change_id": changeID})
		}
		return nil, err
	}
	if next == domain.ChangeStatusApproved {
		return nil, apperrors.NewForbidden("approval must flow through the approval workflow")
	}
	if next == domain.ChangeStatusPending {
		// A bare status flip would leave the old round terminally rejected
		// with no new instances; revision is the only way back to pending.
		return nil, apperrors.NewConflict("rejected changes re-enter review through revision",
			map[string]any{"change_id": change.ID})
	}
	if !approval.CanTransition(change.Status, next) {
		return nil, apperrors.NewConflict("invalid status transition",
			map[string]any{"from": change.Status, "to": next})
	}
	if !approval.AllowedActor(actor, change, next) {
		return nil, apperrors.NewForbidden("role not permitted for this transition")
	}

	oldStatus := change.Status
	change.Status = next
	if next == domain.ChangeStatusClosed || next == domain.ChangeStatusCompleted {
		now := time.Now()
		change.ClosedAt = &now
	}
	if err := s.changes.Update(ctx, change); err != nil {
		return nil, err
	}

	actorID := actor.ID
	s.recordHistory(ctx, &domain.ChangeHistory{
		ChangeID:      change.ID,
		ChangedByType: actor.Type,
		ChangedByID:   &actorID,
		EventType:     domain.ChangeEventStatus,
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      map[string]any{"status": next, "comment": comment},
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventChangeStatusChanged,
		ChangeID: change.ID,
		Actor:    actorFor(actor),
		Payload: events.ChangeStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: next,
			Comment:   comment,
		},
	})
	return change, nil
}

func validateCreateInput(input ChangeCreateInput) error {
	if input.ProductID == "" || strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Description) == "" {
		return apperrors.NewValidationError("product_id, title, description required", nil)
	}
	if !domain.KnownRiskLevel(input.RiskLevel) {
		return apperrors.NewValidationError("unknown risk level", map[string]any{"risk_level": input.RiskLevel})
	}
	if !domain.KnownChangeType(input.ChangeType) {
		return apperrors.NewValidationError("unknown change type", map[string]any{"change_type": input.ChangeType})
	}
	if strings.TrimSpace(input.RollbackPlan) == "" && input.ChangeType != domain.ChangeTypeStandard {
		return apperrors.NewValidationError("rollback_plan required", nil)
	}
	if input.PlannedStart != nil && input.PlannedEnd != nil && input.PlannedEnd.Before(*input.PlannedStart) {
		return apperrors.NewValidationError("planned_end before planned_start", nil)
	}
	return nil
}

func generateChangeKey() string {
	return "CHG-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *ChangeService) recordHistory(ctx context.Context, entry *domain.ChangeHistory) {
	if s.history == nil {
		return
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record change history", zap.Error(err), zap.String("change_id", entry.ChangeID))
	}
}

func (s *ChangeService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, event)
}

func (s *ChangeService) publishLevelActivated(ctx context.Context, changeID string, actor events.Actor, level approval.PlanLevel) {
	approverIDs := make([]string, 0, len(level.Entries))
	for _, entry := range level.Entries {
		approverIDs = append(approverIDs, entry.ApproverID)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventApprovalLevelActivated,
		ChangeID: changeID,
		Actor:    actor,
		Payload: events.ApprovalLevelActivatedPayload{
			Level:       level.Level,
			ApproverIDs: approverIDs,
		},
	})
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func userActor(userID string) events.Actor {
	return events.Actor{
		Type:   domain.SubjectTypeUser,
		UserID: &userID,
	}
}

func staffActor(staffID string) events.Actor {
	return events.Actor{
		Type:    domain.SubjectTypeStaff,
		StaffID: &staffID,
	}
}

func actorFor(actor approval.Actor) events.Actor {
	switch actor.Type {
	case domain.SubjectTypeStaff:
		return staffActor(actor.ID)
	default:
		return userActor(actor.ID)
	}
}
