package domain

import "time"

// RoutingRule maps (product or group, risk level, approval level) to one
// required approver. Exactly one of ProductID/GroupID is set per rule.
type RoutingRule struct {
	ID         string
	ProductID  *string
	GroupID    *string
	RiskLevel  RiskLevel
	Level      int
	ApproverID string
	RequireAll bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
