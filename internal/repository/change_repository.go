package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

const changeColumns = `id, external_key, requester_user_id, product_id, status, risk_level, change_type,
               title, description, rollback_plan, planned_start, planned_end, approval_round,
               submitted_at, created_at, updated_at, closed_at`

// ChangeFilter captures search parameters for change listings.
type ChangeFilter struct {
	RequesterID  *string
	ProductID    *string
	Statuses     []domain.ChangeStatus
	RiskLevels   []domain.RiskLevel
	ChangeTypes  []domain.ChangeType
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	PlannedUntil *time.Time
	Limit        int
	Offset       int
}

// ChangeRepository encapsulates change persistence.
type ChangeRepository interface {
	// CreateWithInstances inserts the change and its first-round approval
	// instances in one transaction, so a failed instance insert cannot
	// leave a pending change with no workflow. ChangeID on the instances
	// is stamped from the inserted row.
	CreateWithInstances(ctx context.Context, change *domain.Change, instances []domain.ApprovalInstance) error
	Update(ctx context.Context, change *domain.Change) error
	GetByID(ctx context.Context, id string) (*domain.Change, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Change, error)
	ListWithFilter(ctx context.Context, filter ChangeFilter) ([]domain.Change, error)
	// ListOverdue returns non-terminal changes whose planned end passed
	// before the cutoff. Used by the sweep worker; read only.
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Change, error)
}

type changeRepository struct {
	pool *pgxpool.Pool
}

// NewChangeRepository instantiates repository.
func NewChangeRepository(pool *pgxpool.Pool) ChangeRepository {
	return &changeRepository{pool: pool}
}

func (r *changeRepository) CreateWithInstances(ctx context.Context, change *domain.Change, instances []domain.ApprovalInstance) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := insertChange(ctx, tx, change); err != nil {
		return err
	}
	for i := range instances {
		instances[i].ChangeID = change.ID
	}
	if err := createInstances(ctx, tx, instances); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertChange(ctx context.Context, q querier, change *domain.Change) error {
	const query = `
        INSERT INTO changes (external_key, requester_user_id, product_id, status, risk_level, change_type,
                             title, description, rollback_plan, planned_start, planned_end, approval_round, submitted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return q.QueryRow(ctx, query,
		change.ExternalKey,
		change.RequesterID,
		change.ProductID,
		change.Status,
		change.RiskLevel,
		change.ChangeType,
		change.Title,
		change.Description,
		change.RollbackPlan,
		change.PlannedStart,
		change.PlannedEnd,
		change.ApprovalRound,
		change.SubmittedAt,
	).Scan(&change.ID, &change.CreatedAt, &change.UpdatedAt)
}

func (r *changeRepository) Update(ctx context.Context, change *domain.Change) error {
	const query = `
        UPDATE changes SET status=$1, risk_level=$2, title=$3, description=$4, rollback_plan=$5,
            planned_start=$6, planned_end=$7, approval_round=$8, submitted_at=$9, closed_at=$10, updated_at=NOW()
        WHERE id=$11`
	cmd, err := r.pool.Exec(ctx, query,
		change.Status,
		change.RiskLevel,
		change.Title,
		change.Description,
		change.RollbackPlan,
		change.PlannedStart,
		change.PlannedEnd,
		change.ApprovalRound,
		change.SubmittedAt,
		change.ClosedAt,
		change.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *changeRepository) GetByID(ctx context.Context, id string) (*domain.Change, error) {
	query := fmt.Sprintf(`SELECT %s FROM changes WHERE id=$1`, changeColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *changeRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Change, error) {
	query := fmt.Sprintf(`SELECT %s FROM changes WHERE external_key=$1`, changeColumns)
	return r.fetchSingle(ctx, query, key)
}

func (r *changeRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Change, error) {
	var change domain.Change
	if err := scanChange(r.pool.QueryRow(ctx, query, arg), &change); err != nil {
		return nil, err
	}
	return &change, nil
}

func (r *changeRepository) ListWithFilter(ctx context.Context, filter ChangeFilter) ([]domain.Change, error) {
	base := fmt.Sprintf(`SELECT %s FROM changes`, changeColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_user_id=$%d", len(args)))
	}
	if filter.ProductID != nil {
		args = append(args, *filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("product_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.RiskLevels) > 0 {
		placeholders := make([]string, len(filter.RiskLevels))
		for i, level := range filter.RiskLevels {
			args = append(args, level)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("risk_level IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.ChangeTypes) > 0 {
		placeholders := make([]string, len(filter.ChangeTypes))
		for i, ct := range filter.ChangeTypes {
			args = append(args, ct)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("change_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.PlannedUntil != nil {
		args = append(args, *filter.PlannedUntil)
		clauses = append(clauses, fmt.Sprintf("planned_end <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

func (r *changeRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Change, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
        SELECT %s FROM changes
        WHERE planned_end IS NOT NULL AND planned_end < $1
          AND status NOT IN ($2,$3,$4,$5)
        ORDER BY planned_end ASC LIMIT %d`, changeColumns, limit)
	rows, err := r.pool.Query(ctx, query, cutoff,
		domain.ChangeStatusCompleted,
		domain.ChangeStatusClosed,
		domain.ChangeStatusRejected,
		domain.ChangeStatusRollback,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner, change *domain.Change) error {
	return row.Scan(
		&change.ID,
		&change.ExternalKey,
		&change.RequesterID,
		&change.ProductID,
		&change.Status,
		&change.RiskLevel,
		&change.ChangeType,
		&change.Title,
		&change.Description,
		&change.RollbackPlan,
		&change.PlannedStart,
		&change.PlannedEnd,
		&change.ApprovalRound,
		&change.SubmittedAt,
		&change.CreatedAt,
		&change.UpdatedAt,
		&change.ClosedAt,
	)
}

func scanChanges(rows pgx.Rows) ([]domain.Change, error) {
	var result []domain.Change
	for rows.Next() {
		var change domain.Change
		if err := scanChange(rows, &change); err != nil {
			return nil, err
		}
		result = append(result, change)
	}
	return result, rows.Err()
}
