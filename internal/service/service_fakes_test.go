package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
)

type fakeChangeRepo struct {
	changes   map[string]domain.Change
	approvals *fakeApprovalRepo
	nextID    int

	instancesErr error
}

func newFakeChangeRepo() *fakeChangeRepo {
	return &fakeChangeRepo{changes: make(map[string]domain.Change)}
}

func (f *fakeChangeRepo) CreateWithInstances(_ context.Context, change *domain.Change, instances []domain.ApprovalInstance) error {
	if f.instancesErr != nil && len(instances) > 0 {
		return f.instancesErr
	}
	f.nextID++
	change.ID = fmt.Sprintf("chg-%d", f.nextID)
	change.CreatedAt = time.Now()
	change.UpdatedAt = change.CreatedAt
	f.changes[change.ID] = *change
	for i := range instances {
		instances[i].ChangeID = change.ID
	}
	f.approvals.addInstances(instances)
	return nil
}

func (f *fakeChangeRepo) Update(_ context.Context, change *domain.Change) error {
	if _, ok := f.changes[change.ID]; !ok {
		return pgx.ErrNoRows
	}
	change.UpdatedAt = time.Now()
	f.changes[change.ID] = *change
	return nil
}

func (f *fakeChangeRepo) GetByID(_ context.Context, id string) (*domain.Change, error) {
	change, ok := f.changes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &change, nil
}

func (f *fakeChangeRepo) GetByExternalKey(_ context.Context, key string) (*domain.Change, error) {
	for _, change := range f.changes {
		if change.ExternalKey == key {
			return &change, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeChangeRepo) ListWithFilter(_ context.Context, filter repository.ChangeFilter) ([]domain.Change, error) {
	var out []domain.Change
	for _, change := range f.changes {
		if filter.RequesterID != nil && change.RequesterID != *filter.RequesterID {
			continue
		}
		out = append(out, change)
	}
	return out, nil
}

func (f *fakeChangeRepo) ListOverdue(_ context.Context, cutoff time.Time, _ int) ([]domain.Change, error) {
	var out []domain.Change
	for _, change := range f.changes {
		if change.PlannedEnd != nil && change.PlannedEnd.Before(cutoff) &&
			change.Status != domain.ChangeStatusCompleted && change.Status != domain.ChangeStatusClosed {
			out = append(out, change)
		}
	}
	return out, nil
}

type fakeApprovalRepo struct {
	changes   *fakeChangeRepo
	instances []domain.ApprovalInstance
	nextID    int
}

func newFakeApprovalRepo(changes *fakeChangeRepo) *fakeApprovalRepo {
	return &fakeApprovalRepo{changes: changes}
}

func (f *fakeApprovalRepo) addInstances(instances []domain.ApprovalInstance) {
	for i := range instances {
		f.nextID++
		instances[i].ID = fmt.Sprintf("apr-%d", f.nextID)
		instances[i].CreatedAt = time.Now()
		f.instances = append(f.instances, instances[i])
	}
}

func (f *fakeApprovalRepo) ListByChange(_ context.Context, changeID string) ([]domain.ApprovalInstance, error) {
	var out []domain.ApprovalInstance
	for _, inst := range f.instances {
		if inst.ChangeID == changeID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeApprovalRepo) ListRound(_ context.Context, changeID string, round int) ([]domain.ApprovalInstance, error) {
	var out []domain.ApprovalInstance
	for _, inst := range f.instances {
		if inst.ChangeID == changeID && inst.Round == round {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeApprovalRepo) ListPendingChangeIDs(_ context.Context, approverID string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, inst := range f.instances {
		if inst.ApproverID == approverID && inst.Status == domain.ApprovalStatusPending && !inst.Superseded && !seen[inst.ChangeID] {
			seen[inst.ChangeID] = true
			out = append(out, inst.ChangeID)
		}
	}
	return out, nil
}

func (f *fakeApprovalRepo) InChangeTx(ctx context.Context, changeID string, fn func(repository.DecisionTx) error) error {
	change, err := f.changes.GetByID(ctx, changeID)
	if err != nil {
		return err
	}
	return fn(&fakeDecisionTx{repo: f, change: change})
}

type fakeDecisionTx struct {
	repo   *fakeApprovalRepo
	change *domain.Change
}

func (t *fakeDecisionTx) Change() *domain.Change { return t.change }

func (t *fakeDecisionTx) Instances(ctx context.Context, round int) ([]domain.ApprovalInstance, error) {
	return t.repo.ListRound(ctx, t.change.ID, round)
}

func (t *fakeDecisionTx) Decide(_ context.Context, instanceID string, status domain.ApprovalStatus, comments *string, decidedAt time.Time) (bool, error) {
	for i := range t.repo.instances {
		inst := &t.repo.instances[i]
		if inst.ID == instanceID && inst.Status == domain.ApprovalStatusPending && !inst.Superseded {
			inst.Status = status
			inst.Comments = comments
			inst.DecidedAt = &decidedAt
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeDecisionTx) Supersede(_ context.Context, instanceIDs []string) error {
	for _, id := range instanceIDs {
		for i := range t.repo.instances {
			if t.repo.instances[i].ID == id {
				t.repo.instances[i].Superseded = true
			}
		}
	}
	return nil
}

func (t *fakeDecisionTx) SupersedeRound(_ context.Context, changeID string, round int) error {
	for i := range t.repo.instances {
		inst := &t.repo.instances[i]
		if inst.ChangeID == changeID && inst.Round == round && !inst.Superseded {
			inst.Superseded = true
		}
	}
	return nil
}

func (t *fakeDecisionTx) CreateInstances(_ context.Context, instances []domain.ApprovalInstance) error {
	t.repo.addInstances(instances)
	return nil
}

func (t *fakeDecisionTx) UpdateChange(ctx context.Context, change *domain.Change) error {
	return t.repo.changes.Update(ctx, change)
}

type fakeProductRepo struct {
	products map[string]domain.Product
	groups   map[string]domain.ProductGroup
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products: make(map[string]domain.Product),
		groups:   make(map[string]domain.ProductGroup),
	}
}

func (f *fakeProductRepo) Create(_ context.Context, product *domain.Product) error {
	if product.ID == "" {
		product.ID = fmt.Sprintf("prd-%d", len(f.products)+1)
	}
	f.products[product.ID] = *product
	return nil
}

func (f *fakeProductRepo) Update(_ context.Context, product *domain.Product) error {
	f.products[product.ID] = *product
	return nil
}

func (f *fakeProductRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &product, nil
}

func (f *fakeProductRepo) ListActive(_ context.Context) ([]domain.Product, error) {
	var out []domain.Product
	for _, product := range f.products {
		if product.IsActive {
			out = append(out, product)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) CreateGroup(_ context.Context, group *domain.ProductGroup) error {
	if group.ID == "" {
		group.ID = fmt.Sprintf("grp-%d", len(f.groups)+1)
	}
	f.groups[group.ID] = *group
	return nil
}

func (f *fakeProductRepo) GetGroupByID(_ context.Context, id string) (*domain.ProductGroup, error) {
	group, ok := f.groups[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &group, nil
}

func (f *fakeProductRepo) ListGroups(_ context.Context) ([]domain.ProductGroup, error) {
	var out []domain.ProductGroup
	for _, group := range f.groups {
		out = append(out, group)
	}
	return out, nil
}

type fakeRuleRepo struct {
	rules  map[string]domain.RoutingRule
	nextID int
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rules: make(map[string]domain.RoutingRule)}
}

func (f *fakeRuleRepo) Create(_ context.Context, rule *domain.RoutingRule) error {
	f.nextID++
	rule.ID = fmt.Sprintf("rule-%d", f.nextID)
	f.rules[rule.ID] = *rule
	return nil
}

func (f *fakeRuleRepo) Update(_ context.Context, rule *domain.RoutingRule) error {
	if _, ok := f.rules[rule.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.rules[rule.ID] = *rule
	return nil
}

func (f *fakeRuleRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.rules[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeRuleRepo) GetByID(_ context.Context, id string) (*domain.RoutingRule, error) {
	rule, ok := f.rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &rule, nil
}

func (f *fakeRuleRepo) List(_ context.Context) ([]domain.RoutingRule, error) {
	var out []domain.RoutingRule
	for _, rule := range f.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (f *fakeRuleRepo) Match(_ context.Context, productID string, groupID *string, riskLevel domain.RiskLevel) ([]domain.RoutingRule, error) {
	var out []domain.RoutingRule
	for _, rule := range f.rules {
		if rule.RiskLevel != riskLevel || !rule.IsActive {
			continue
		}
		if rule.ProductID != nil && *rule.ProductID == productID {
			out = append(out, rule)
			continue
		}
		if rule.GroupID != nil && groupID != nil && *rule.GroupID == *groupID {
			out = append(out, rule)
		}
	}
	return out, nil
}

type fakeStaffRepo struct {
	members map[string]domain.StaffMember
}

func newFakeStaffRepo() *fakeStaffRepo {
	return &fakeStaffRepo{members: make(map[string]domain.StaffMember)}
}

func (f *fakeStaffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	if staff.ID == "" {
		staff.ID = fmt.Sprintf("stf-%d", len(f.members)+1)
	}
	f.members[staff.ID] = *staff
	return nil
}

func (f *fakeStaffRepo) Update(_ context.Context, staff *domain.StaffMember) error {
	f.members[staff.ID] = *staff
	return nil
}

func (f *fakeStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	member, ok := f.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &member, nil
}

func (f *fakeStaffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	for _, member := range f.members {
		if member.Email == email {
			return &member, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStaffRepo) List(_ context.Context, _ repository.StaffFilter) ([]domain.StaffMember, error) {
	var out []domain.StaffMember
	for _, member := range f.members {
		out = append(out, member)
	}
	return out, nil
}

type fakeHistoryRepo struct {
	entries []domain.ChangeHistory
}

func (f *fakeHistoryRepo) Create(_ context.Context, entry *domain.ChangeHistory) error {
	entry.ID = fmt.Sprintf("his-%d", len(f.entries)+1)
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistoryRepo) ListByChange(_ context.Context, changeID string, _, _ int) ([]domain.ChangeHistory, error) {
	var out []domain.ChangeHistory
	for _, entry := range f.entries {
		if entry.ChangeID == changeID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) eventTypes() []domain.ChangeEventType {
	out := make([]domain.ChangeEventType, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, entry.EventType)
	}
	return out
}
