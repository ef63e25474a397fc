package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

const routingRuleColumns = `id, product_id, group_id, risk_level, approval_level,
               approver_staff_id, require_all, is_active, created_at, updated_at`

// RoutingRuleRepository manages approval routing configuration.
type RoutingRuleRepository interface {
	Create(ctx context.Context, rule *domain.RoutingRule) error
	Update(ctx context.Context, rule *domain.RoutingRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.RoutingRule, error)
	List(ctx context.Context) ([]domain.RoutingRule, error)
	// Match returns the active rules governing a product at a risk level:
	// rules keyed on the product itself plus rules keyed on its group.
	Match(ctx context.Context, productID string, groupID *string, riskLevel domain.RiskLevel) ([]domain.RoutingRule, error)
}

type routingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingRuleRepository builds the repository.
func NewRoutingRuleRepository(pool *pgxpool.Pool) RoutingRuleRepository {
	return &routingRuleRepository{pool: pool}
}

func (r *routingRuleRepository) Create(ctx context.Context, rule *domain.RoutingRule) error {
	const query = `
        INSERT INTO routing_rules (product_id, group_id, risk_level, approval_level, approver_staff_id, require_all, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.ProductID,
		rule.GroupID,
		rule.RiskLevel,
		rule.Level,
		rule.ApproverID,
		rule.RequireAll,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *routingRuleRepository) Update(ctx context.Context, rule *domain.RoutingRule) error {
	const query = `
        UPDATE routing_rules SET product_id=$1, group_id=$2, risk_level=$3, approval_level=$4,
            approver_staff_id=$5, require_all=$6, is_active=$7, updated_at=NOW()
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		rule.ProductID,
		rule.GroupID,
		rule.RiskLevel,
		rule.Level,
		rule.ApproverID,
		rule.RequireAll,
		rule.IsActive,
		rule.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *routingRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM routing_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *routingRuleRepository) GetByID(ctx context.Context, id string) (*domain.RoutingRule, error) {
	const query = `
        SELECT ` + routingRuleColumns + `
        FROM routing_rules WHERE id=$1`
	var rule domain.RoutingRule
	if err := scanRoutingRule(r.pool.QueryRow(ctx, query, id), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *routingRuleRepository) List(ctx context.Context) ([]domain.RoutingRule, error) {
	const query = `
        SELECT ` + routingRuleColumns + `
        FROM routing_rules
        ORDER BY risk_level ASC, approval_level ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutingRules(rows)
}

func (r *routingRuleRepository) Match(ctx context.Context, productID string, groupID *string, riskLevel domain.RiskLevel) ([]domain.RoutingRule, error) {
	const query = `
        SELECT ` + routingRuleColumns + `
        FROM routing_rules
        WHERE is_active = TRUE AND risk_level = $1
          AND (product_id = $2 OR ($3::uuid IS NOT NULL AND group_id = $3))
        ORDER BY approval_level ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, riskLevel, productID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutingRules(rows)
}

func scanRoutingRule(row rowScanner, rule *domain.RoutingRule) error {
	return row.Scan(
		&rule.ID,
		&rule.ProductID,
		&rule.GroupID,
		&rule.RiskLevel,
		&rule.Level,
		&rule.ApproverID,
		&rule.RequireAll,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
}

func scanRoutingRules(rows pgx.Rows) ([]domain.RoutingRule, error) {
	var result []domain.RoutingRule
	for rows.Next() {
		var rule domain.RoutingRule
		if err := scanRoutingRule(rows, &rule); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}
