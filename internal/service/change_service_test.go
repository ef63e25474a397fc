package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/approval"
	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
)

type changeServiceFixture struct {
	service    *ChangeService
	approvals  *ApprovalService
	changes    *fakeChangeRepo
	instances  *fakeApprovalRepo
	products   *fakeProductRepo
	rules      *fakeRuleRepo
	history    *fakeHistoryRepo
	dispatcher events.Dispatcher
	productID  string
}

func newChangeServiceFixture(t *testing.T, cfg config.ApprovalConfig) *changeServiceFixture {
	t.Helper()

	changes := newFakeChangeRepo()
	instances := newFakeApprovalRepo(changes)
	changes.approvals = instances
	products := newFakeProductRepo()
	rules := newFakeRuleRepo()
	staff := newFakeStaffRepo()
	history := &fakeHistoryRepo{}
	dispatcher := events.NewInMemoryDispatcher()
	logger := zap.NewNop()

	product := &domain.Product{Name: "billing-api", IsActive: true}
	require.NoError(t, products.Create(context.Background(), product))

	routing := NewRoutingService(cfg, RoutingDependencies{
		RuleRepo:    rules,
		ProductRepo: products,
		StaffRepo:   staff,
	}, logger)
	changeService := NewChangeService(cfg, ChangeDependencies{
		ChangeRepo:   changes,
		ApprovalRepo: instances,
		ProductRepo:  products,
		HistoryRepo:  history,
		Routing:      routing,
		Dispatcher:   dispatcher,
	}, logger)
	approvalService := NewApprovalService(instances, changes, history, dispatcher, logger)

	return &changeServiceFixture{
		service:    changeService,
		approvals:  approvalService,
		changes:    changes,
		instances:  instances,
		products:   products,
		rules:      rules,
		history:    history,
		dispatcher: dispatcher,
		productID:  product.ID,
	}
}

func (f *changeServiceFixture) addRule(level int, approverID string, requireAll bool) {
	productID := f.productID
	_ = f.rules.Create(context.Background(), &domain.RoutingRule{
		ProductID:  &productID,
		RiskLevel:  domain.RiskLevelHigh,
		Level:      level,
		ApproverID: approverID,
		RequireAll: requireAll,
		IsActive:   true,
	})
}

func (f *changeServiceFixture) createInput() ChangeCreateInput {
	return ChangeCreateInput{
		ProductID:    f.productID,
		RiskLevel:    domain.RiskLevelHigh,
		ChangeType:   domain.ChangeTypeEmergency,
		Title:        "rotate database credentials",
		Description:  "expired service account credentials",
		RollbackPlan: "restore previous secret version",
	}
}

func TestCreateChangeInstantiatesWorkflow(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.addRule(2, "cab", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusPending, change.Status)
	assert.Equal(t, 1, change.ApprovalRound)
	assert.Contains(t, change.ExternalKey, "CHG-")

	instances, err := f.instances.ListByChange(context.Background(), change.ID)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, 1, instances[0].Round)
}

func TestCreateChangeStandardBypassesApproval(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: false})
	f.addRule(1, "lead", false)

	input := f.createInput()
	input.ChangeType = domain.ChangeTypeStandard
	input.RollbackPlan = ""

	change, err := f.service.CreateChange(context.Background(), "u1", input)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusApproved, change.Status)
	assert.Equal(t, 0, change.ApprovalRound)

	instances, err := f.instances.ListByChange(context.Background(), change.ID)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestCreateChangeUnroutedFallbackAutoApproves(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusApproved, change.Status)
	assert.Contains(t, f.history.eventTypes(), domain.ChangeEventUnroutedBypass)
}

func TestCreateChangeUnroutedRefusedWhenDisallowed(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: false})

	_, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.Error(t, err)
}

func TestCreateChangeNormalRequiresLeadTime(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true, MinLeadTimeHours: 24})
	f.addRule(1, "lead", false)

	input := f.createInput()
	input.ChangeType = domain.ChangeTypeNormal
	soon := time.Now().Add(2 * time.Hour)
	input.PlannedStart = &soon

	_, err := f.service.CreateChange(context.Background(), "u1", input)
	require.Error(t, err)

	later := time.Now().Add(48 * time.Hour)
	input.PlannedStart = &later
	change, err := f.service.CreateChange(context.Background(), "u1", input)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusPending, change.Status)
}

func TestGetChangeScopesEndUsers(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	owner := approval.Actor{Type: domain.SubjectTypeUser, ID: "u1"}
	stranger := approval.Actor{Type: domain.SubjectTypeUser, ID: "u2"}
	staff := approval.Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAgent}

	_, err = f.service.GetChange(context.Background(), owner, change.ID)
	assert.NoError(t, err)
	_, err = f.service.GetChange(context.Background(), stranger, change.ID)
	assert.Error(t, err)
	_, err = f.service.GetChange(context.Background(), staff, change.ID)
	assert.NoError(t, err)
}

func TestReviseAndResubmitRestartsWorkflow(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionRejected})
	require.NoError(t, err)

	title := "rotate database credentials with maintenance window"
	revised, err := f.service.ReviseAndResubmit(context.Background(), "u1", change.ID, ChangeReviseInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusPending, revised.Status)
	assert.Equal(t, 2, revised.ApprovalRound)
	assert.Equal(t, title, revised.Title)

	// The old round stays on record but is superseded; the new round is
	// freshly pending.
	all, err := f.instances.ListByChange(context.Background(), change.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, inst := range all {
		if inst.Round == 1 {
			assert.True(t, inst.Superseded)
		} else {
			assert.Equal(t, domain.ApprovalStatusPending, inst.Status)
			assert.False(t, inst.Superseded)
		}
	}
	assert.Contains(t, f.history.eventTypes(), domain.ChangeEventRevision)
}

func TestReviseAndResubmitOnlyForRejected(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	_, err = f.service.ReviseAndResubmit(context.Background(), "u1", change.ID, ChangeReviseInput{})
	assert.Error(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionRejected})
	require.NoError(t, err)

	_, err = f.service.ReviseAndResubmit(context.Background(), "u2", change.ID, ChangeReviseInput{})
	assert.Error(t, err, "only the requester may resubmit")
}

func TestTransitionStatusGuards(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})

	// Auto-approved change, no workflow.
	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)
	require.Equal(t, domain.ChangeStatusApproved, change.Status)

	agent := approval.Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAgent}
	requester := approval.Actor{Type: domain.SubjectTypeUser, ID: "u1"}

	// Manual moves into APPROVED are always refused.
	_, err = f.service.TransitionStatus(context.Background(), agent, change.ID, domain.ChangeStatusApproved, "")
	assert.Error(t, err)

	// Requester cannot start implementation.
	_, err = f.service.TransitionStatus(context.Background(), requester, change.ID, domain.ChangeStatusInProgress, "")
	assert.Error(t, err)

	updated, err := f.service.TransitionStatus(context.Background(), agent, change.ID, domain.ChangeStatusInProgress, "starting rollout")
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusInProgress, updated.Status)

	updated, err = f.service.TransitionStatus(context.Background(), agent, change.ID, domain.ChangeStatusTesting, "")
	require.NoError(t, err)

	updated, err = f.service.TransitionStatus(context.Background(), agent, change.ID, domain.ChangeStatusCompleted, "")
	require.NoError(t, err)
	assert.NotNil(t, updated.ClosedAt)

	// Completed is terminal.
	_, err = f.service.TransitionStatus(context.Background(), agent, change.ID, domain.ChangeStatusInProgress, "")
	assert.Error(t, err)
}

func TestTransitionStatusRejectedNeedsRevision(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	_, err = f.approvals.SubmitDecision(context.Background(), "lead", change.ID, DecisionInput{Action: domain.ApprovalActionRejected})
	require.NoError(t, err)

	// A bare status flip back to pending would leave the rejected round as
	// the active one, so no decision could ever land. Refused for everyone.
	requester := approval.Actor{Type: domain.SubjectTypeUser, ID: "u1"}
	admin := approval.Actor{Type: domain.SubjectTypeStaff, ID: "s1", Role: domain.StaffRoleAdmin}
	_, err = f.service.TransitionStatus(context.Background(), requester, change.ID, domain.ChangeStatusPending, "")
	assert.Error(t, err)
	_, err = f.service.TransitionStatus(context.Background(), admin, change.ID, domain.ChangeStatusPending, "")
	assert.Error(t, err)

	current, err := f.changes.GetByID(context.Background(), change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusRejected, current.Status)

	// Revision remains the way back into review.
	revised, err := f.service.ReviseAndResubmit(context.Background(), "u1", change.ID, ChangeReviseInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeStatusPending, revised.Status)
	assert.Equal(t, 2, revised.ApprovalRound)
}

func TestCreateChangeRecordsIntakeHistory(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	entries, err := f.history.ListByChange(context.Background(), change.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Intake passes through SUBMITTED before routing settles the status.
	first := entries[0]
	assert.Equal(t, domain.ChangeEventStatus, first.EventType)
	assert.Equal(t, domain.ChangeStatusSubmitted, first.OldValue["status"])
	assert.Equal(t, domain.ChangeStatusPending, first.NewValue["status"])
}

func TestCreateChangeRollsBackWithInstances(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.changes.instancesErr = errors.New("instance insert failed")

	_, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.Error(t, err)

	// The change and its instances land together or not at all.
	assert.Empty(t, f.changes.changes)
	assert.Empty(t, f.instances.instances)
	assert.Empty(t, f.history.entries)
}

func TestWorkflowStateForChange(t *testing.T) {
	f := newChangeServiceFixture(t, config.ApprovalConfig{AllowUnrouted: true})
	f.addRule(1, "lead", false)
	f.addRule(2, "cab", false)

	change, err := f.service.CreateChange(context.Background(), "u1", f.createInput())
	require.NoError(t, err)

	state, err := f.service.WorkflowState(context.Background(), change)
	require.NoError(t, err)
	assert.Equal(t, approval.PhaseAwaitingLevel, state.Phase)
	assert.Equal(t, 1, state.ActiveLevel)
	assert.Equal(t, 2, state.TotalLevels)
}
