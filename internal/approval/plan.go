package approval

import (
	"sort"

	"github.com/spec-kit/change-service/internal/domain"
)

// PlanEntry is one required approver within a level.
type PlanEntry struct {
	ApproverID string
	RequireAll bool
}

// PlanLevel groups the approvers gated together at one approval level.
// RequireAll is the level gate: true means every entry must approve,
// false means a single approval completes the level.
type PlanLevel struct {
	Level      int
	RequireAll bool
	Entries    []PlanEntry
}

// Plan is the ordered approval sequence resolved for one change.
type Plan struct {
	Levels []PlanLevel
}

// BuildPlan groups active routing rules into ordered levels. The rule set is
// expected to be dense starting at level 1, but gaps are tolerated: levels are
// processed in ascending numeric order regardless. A level's gate is "all"
// when any rule at that level requires all approvals.
func BuildPlan(rules []domain.RoutingRule) Plan {
	byLevel := make(map[int][]PlanEntry)
	gates := make(map[int]bool)
	for _, rule := range rules {
		if !rule.IsActive || rule.Level < 1 {
			continue
		}
		byLevel[rule.Level] = append(byLevel[rule.Level], PlanEntry{
			ApproverID: rule.ApproverID,
			RequireAll: rule.RequireAll,
		})
		if rule.RequireAll {
			gates[rule.Level] = true
		}
	}

	levels := make([]int, 0, len(byLevel))
	for level := range byLevel {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	plan := Plan{Levels: make([]PlanLevel, 0, len(levels))}
	for _, level := range levels {
		plan.Levels = append(plan.Levels, PlanLevel{
			Level:      level,
			RequireAll: gates[level],
			Entries:    byLevel[level],
		})
	}
	return plan
}

// Empty reports whether the plan requires no approvals at all.
func (p Plan) Empty() bool {
	return len(p.Levels) == 0
}

// Instances expands the plan into pending approval instances for one
// submission round. All levels are created up front; the engine enforces
// level ordering when decisions arrive.
func (p Plan) Instances(changeID string, round int) []domain.ApprovalInstance {
	var instances []domain.ApprovalInstance
	for _, level := range p.Levels {
		for _, entry := range level.Entries {
			instances = append(instances, domain.ApprovalInstance{
				ChangeID:   changeID,
				ApproverID: entry.ApproverID,
				Level:      level.Level,
				RequireAll: level.RequireAll,
				Status:     domain.ApprovalStatusPending,
				Round:      round,
			})
		}
	}
	return instances
}
