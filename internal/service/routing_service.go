package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/approval"
	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/persistence"
	"github.com/spec-kit/change-service/internal/repository"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

const routingVersionKey = "routing:version"

// RoutingService administers routing rules and resolves approval plans.
// Resolved plans are cached in Redis; any rule write bumps a version counter
// so stale plans age out immediately.
type RoutingService struct {
	rules    repository.RoutingRuleRepository
	products repository.ProductRepository
	staff    repository.StaffRepository
	cache    *persistence.Redis
	logger   *zap.Logger
	cfg      config.ApprovalConfig
}

// RoutingDependencies bundles repositories for the routing service.
type RoutingDependencies struct {
	RuleRepo    repository.RoutingRuleRepository
	ProductRepo repository.ProductRepository
	StaffRepo   repository.StaffRepository
	Cache       *persistence.Redis
}

// RoutingRuleInput describes rule creation/update payload.
type RoutingRuleInput struct {
	ProductID  *string
	GroupID    *string
	RiskLevel  domain.RiskLevel
	Level      int
	ApproverID string
	RequireAll bool
	IsActive   bool
}

// NewRoutingService constructs the service.
func NewRoutingService(cfg config.ApprovalConfig, deps RoutingDependencies, logger *zap.Logger) *RoutingService {
	return &RoutingService{
		rules:    deps.RuleRepo,
		products: deps.ProductRepo,
		staff:    deps.StaffRepo,
		cache:    deps.Cache,
		logger:   logger,
		cfg:      cfg,
	}
}

// ResolvePlan returns the leveled approval plan for a product at a risk
// level. Pure read; resolution happens against the rules active right now.
func (s *RoutingService) ResolvePlan(ctx context.Context, product *domain.Product, riskLevel domain.RiskLevel) (approval.Plan, error) {
	if !domain.KnownRiskLevel(riskLevel) {
		return approval.Plan{}, apperrors.NewValidationError("unknown risk level", map[string]any{"risk_level": riskLevel})
	}

	if plan, ok := s.cachedPlan(ctx, product, riskLevel); ok {
		return plan, nil
	}

	rules, err := s.rules.Match(ctx, product.ID, product.GroupID, riskLevel)
	if err != nil {
		return approval.Plan{}, err
	}
	plan := approval.BuildPlan(rules)
	s.storePlan(ctx, product, riskLevel, plan)
	return plan, nil
}

// CreateRule validates and persists a routing rule.
func (s *RoutingService) CreateRule(ctx context.Context, input RoutingRuleInput) (*domain.RoutingRule, error) {
	if err := s.validateRule(ctx, input); err != nil {
		return nil, err
	}
	rule := &domain.RoutingRule{
		ProductID:  input.ProductID,
		GroupID:    input.GroupID,
		RiskLevel:  input.RiskLevel,
		Level:      input.Level,
		ApproverID: input.ApproverID,
		RequireAll: input.RequireAll,
		IsActive:   input.IsActive,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.bumpVersion(ctx)
	return rule, nil
}

// UpdateRule applies changes to an existing rule.
func (s *RoutingService) UpdateRule(ctx context.Context, id string, input RoutingRuleInput) (*domain.RoutingRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("routing rule", map[string]any{"rule_id": id})
		}
		return nil, err
	}
	if err := s.validateRule(ctx, input); err != nil {
		return nil, err
	}
	rule.ProductID = input.ProductID
	rule.GroupID = input.GroupID
	rule.RiskLevel = input.RiskLevel
	rule.Level = input.Level
	rule.ApproverID = input.ApproverID
	rule.RequireAll = input.RequireAll
	rule.IsActive = input.IsActive
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.bumpVersion(ctx)
	return rule, nil
}

// DeleteRule removes a rule. Existing approval instances are unaffected:
// rules are consulted only at submission time.
func (s *RoutingService) DeleteRule(ctx context.Context, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("routing rule", map[string]any{"rule_id": id})
		}
		return err
	}
	s.bumpVersion(ctx)
	return nil
}

// ListRules returns all configured rules.
func (s *RoutingService) ListRules(ctx context.Context) ([]domain.RoutingRule, error) {
	return s.rules.List(ctx)
}

func (s *RoutingService) validateRule(ctx context.Context, input RoutingRuleInput) error {
	if (input.ProductID == nil) == (input.GroupID == nil) {
		return apperrors.NewValidationError("exactly one of product_id or group_id must be set", nil)
	}
	if !domain.KnownRiskLevel(input.RiskLevel) {
		return apperrors.NewValidationError("unknown risk level", map[string]any{"risk_level": input.RiskLevel})
	}
	if input.Level < 1 {
		return apperrors.NewValidationError("approval level must be a positive integer", map[string]any{"level": input.Level})
	}
	if input.ProductID != nil {
		if _, err := s.products.GetByID(ctx, *input.ProductID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewValidationError("product not found", map[string]any{"product_id": *input.ProductID})
			}
			return err
		}
	}
	if input.GroupID != nil {
		if _, err := s.products.GetGroupByID(ctx, *input.GroupID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewValidationError("product group not found", map[string]any{"group_id": *input.GroupID})
			}
			return err
		}
	}
	approver, err := s.staff.GetByID(ctx, input.ApproverID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("approver not found", map[string]any{"approver_id": input.ApproverID})
		}
		return err
	}
	if !approver.Active {
		return apperrors.NewValidationError("approver is not active", map[string]any{"approver_id": input.ApproverID})
	}
	return nil
}

func (s *RoutingService) cachedPlan(ctx context.Context, product *domain.Product, riskLevel domain.RiskLevel) (approval.Plan, bool) {
	client := s.cacheClient()
	if client == nil {
		return approval.Plan{}, false
	}
	raw, err := client.Get(ctx, s.planKey(ctx, product, riskLevel)).Bytes()
	if err != nil {
		return approval.Plan{}, false
	}
	var plan approval.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return approval.Plan{}, false
	}
	return plan, true
}

func (s *RoutingService) storePlan(ctx context.Context, product *domain.Product, riskLevel domain.RiskLevel, plan approval.Plan) {
	client := s.cacheClient()
	if client == nil {
		return
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return
	}
	if err := client.Set(ctx, s.planKey(ctx, product, riskLevel), raw, s.cfg.PlanCacheTTL()).Err(); err != nil {
		s.logger.Debug("plan cache store failed", zap.Error(err))
	}
}

func (s *RoutingService) bumpVersion(ctx context.Context) {
	client := s.cacheClient()
	if client == nil {
		return
	}
	if err := client.Incr(ctx, routingVersionKey).Err(); err != nil {
		s.logger.Debug("routing version bump failed", zap.Error(err))
	}
}

// planKey includes the product's group so that reassigning a product to a
// different group changes the key immediately; a stale entry for the old
// group is never read again and simply ages out with the TTL.
func (s *RoutingService) planKey(ctx context.Context, product *domain.Product, riskLevel domain.RiskLevel) string {
	version := int64(0)
	if client := s.cacheClient(); client != nil {
		if v, err := client.Get(ctx, routingVersionKey).Int64(); err == nil {
			version = v
		}
	}
	group := ""
	if product.GroupID != nil {
		group = *product.GroupID
	}
	return fmt.Sprintf("routing:plan:%d:%s:%s:%s", version, product.ID, group, riskLevel)
}

func (s *RoutingService) cacheClient() *redis.Client {
	if s.cache == nil {
		return nil
	}
	return s.cache.Client
}
