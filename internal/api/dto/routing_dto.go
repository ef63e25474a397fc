package dto

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// RoutingRuleRequest payload for creating or updating a rule. Exactly one of
// product_id and group_id must be set.
type RoutingRuleRequest struct {
	ProductID  *string          `json:"product_id"`
	GroupID    *string          `json:"group_id"`
	RiskLevel  domain.RiskLevel `json:"risk_level"`
	Level      int              `json:"level"`
	ApproverID string           `json:"approver_id"`
	RequireAll bool             `json:"require_all"`
	IsActive   *bool            `json:"is_active"`
}

// RoutingRuleResponse represents one rule.
type RoutingRuleResponse struct {
	ID         string           `json:"id"`
	ProductID  *string          `json:"product_id"`
	GroupID    *string          `json:"group_id"`
	RiskLevel  domain.RiskLevel `json:"risk_level"`
	Level      int              `json:"level"`
	ApproverID string           `json:"approver_id"`
	RequireAll bool             `json:"require_all"`
	IsActive   bool             `json:"is_active"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ToRoutingRuleResponse maps domain to DTO.
func ToRoutingRuleResponse(rule domain.RoutingRule) RoutingRuleResponse {
	return RoutingRuleResponse{
		ID:         rule.ID,
		ProductID:  rule.ProductID,
		GroupID:    rule.GroupID,
		RiskLevel:  rule.RiskLevel,
		Level:      rule.Level,
		ApproverID: rule.ApproverID,
		RequireAll: rule.RequireAll,
		IsActive:   rule.IsActive,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}

// ToRoutingRuleResponses maps a slice.
func ToRoutingRuleResponses(rules []domain.RoutingRule) []RoutingRuleResponse {
	out := make([]RoutingRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ToRoutingRuleResponse(rule))
	}
	return out
}
