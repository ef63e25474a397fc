package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

const approvalColumns = `id, change_id, approver_staff_id, approval_level, require_all,
               status, comments, round, superseded, decided_at, created_at`

// DecisionTx exposes the writes permitted while one change's workflow state
// is locked. Obtained through ApprovalRepository.InChangeTx, which holds a
// row lock on the change for the duration of the callback, serializing
// decision processing per change.
type DecisionTx interface {
	// Change returns the locked change row as read at lock acquisition.
	Change() *domain.Change
	// Instances lists the change's approval rows for the given round,
	// ordered by level then creation time.
	Instances(ctx context.Context, round int) ([]domain.ApprovalInstance, error)
	// Decide moves a pending instance to a terminal status. Returns false
	// when the row was no longer pending, which callers must surface as an
	// already-decided conflict rather than overwrite.
	Decide(ctx context.Context, instanceID string, status domain.ApprovalStatus, comments *string, decidedAt time.Time) (bool, error)
	// Supersede flags instances as no longer actionable. Rows are kept for
	// audit and only excluded from pending views.
	Supersede(ctx context.Context, instanceIDs []string) error
	// SupersedeRound flags every live instance of a round, used when a
	// rejected change is revised and resubmitted.
	SupersedeRound(ctx context.Context, changeID string, round int) error
	// CreateInstances bulk-inserts pending instances for a new round.
	CreateInstances(ctx context.Context, instances []domain.ApprovalInstance) error
	// UpdateChange persists workflow-driven mutations of the change row.
	UpdateChange(ctx context.Context, change *domain.Change) error
}

// ApprovalRepository encapsulates approval instance persistence. First-round
// instances are inserted with their change through
// ChangeRepository.CreateWithInstances; later rounds through DecisionTx.
type ApprovalRepository interface {
	ListByChange(ctx context.Context, changeID string) ([]domain.ApprovalInstance, error)
	ListRound(ctx context.Context, changeID string, round int) ([]domain.ApprovalInstance, error)
	// ListPendingChangeIDs returns IDs of changes still pending approval on
	// which the approver holds a live pending instance. The caller narrows
	// the result to the active level with the engine predicate.
	ListPendingChangeIDs(ctx context.Context, approverID string) ([]string, error)
	InChangeTx(ctx context.Context, changeID string, fn func(DecisionTx) error) error
}

type approvalRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRepository instantiates repository.
func NewApprovalRepository(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepository{pool: pool}
}

func (r *approvalRepository) ListByChange(ctx context.Context, changeID string) ([]domain.ApprovalInstance, error) {
	const query = `
        SELECT ` + approvalColumns + `
        FROM approval_instances WHERE change_id=$1
        ORDER BY round ASC, approval_level ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, changeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

func (r *approvalRepository) ListRound(ctx context.Context, changeID string, round int) ([]domain.ApprovalInstance, error) {
	return listRound(ctx, r.pool, changeID, round)
}

func (r *approvalRepository) ListPendingChangeIDs(ctx context.Context, approverID string) ([]string, error) {
	const query = `
        SELECT DISTINCT ai.change_id
        FROM approval_instances ai
        JOIN changes c ON c.id = ai.change_id
        WHERE ai.approver_staff_id=$1
          AND ai.status=$2
          AND ai.superseded=FALSE
          AND ai.round=c.approval_round
          AND c.status=$3`
	rows, err := r.pool.Query(ctx, query, approverID, domain.ApprovalStatusPending, domain.ChangeStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *approvalRepository) InChangeTx(ctx context.Context, changeID string, fn func(DecisionTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const lockQuery = `
        SELECT ` + changeColumns + `
        FROM changes WHERE id=$1 FOR UPDATE`
	var change domain.Change
	if err := scanChange(tx.QueryRow(ctx, lockQuery, changeID), &change); err != nil {
		return err
	}

	dtx := &decisionTx{tx: tx, change: &change}
	if err := fn(dtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type decisionTx struct {
	tx     pgx.Tx
	change *domain.Change
}

func (d *decisionTx) Change() *domain.Change {
	return d.change
}

func (d *decisionTx) Instances(ctx context.Context, round int) ([]domain.ApprovalInstance, error) {
	return listRound(ctx, d.tx, d.change.ID, round)
}

func (d *decisionTx) Decide(ctx context.Context, instanceID string, status domain.ApprovalStatus, comments *string, decidedAt time.Time) (bool, error) {
	const query = `
        UPDATE approval_instances SET status=$1, comments=$2, decided_at=$3
        WHERE id=$4 AND status=$5`
	cmd, err := d.tx.Exec(ctx, query, status, comments, decidedAt, instanceID, domain.ApprovalStatusPending)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (d *decisionTx) Supersede(ctx context.Context, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	const query = `
        UPDATE approval_instances SET superseded=TRUE
        WHERE id = ANY($1)`
	_, err := d.tx.Exec(ctx, query, instanceIDs)
	return err
}

func (d *decisionTx) SupersedeRound(ctx context.Context, changeID string, round int) error {
	const query = `
        UPDATE approval_instances SET superseded=TRUE
        WHERE change_id=$1 AND round=$2 AND superseded=FALSE`
	_, err := d.tx.Exec(ctx, query, changeID, round)
	return err
}

func (d *decisionTx) CreateInstances(ctx context.Context, instances []domain.ApprovalInstance) error {
	return createInstances(ctx, d.tx, instances)
}

func (d *decisionTx) UpdateChange(ctx context.Context, change *domain.Change) error {
	const query = `
        UPDATE changes SET status=$1, title=$2, description=$3, rollback_plan=$4,
            planned_start=$5, planned_end=$6, approval_round=$7, submitted_at=$8, closed_at=$9, updated_at=NOW()
        WHERE id=$10`
	cmd, err := d.tx.Exec(ctx, query,
		change.Status,
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

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listRound(ctx context.Context, q querier, changeID string, round int) ([]domain.ApprovalInstance, error) {
	const query = `
        SELECT ` + approvalColumns + `
        FROM approval_instances WHERE change_id=$1 AND round=$2
        ORDER BY approval_level ASC, created_at ASC`
	rows, err := q.Query(ctx, query, changeID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

func createInstances(ctx context.Context, q querier, instances []domain.ApprovalInstance) error {
	const query = `
        INSERT INTO approval_instances (change_id, approver_staff_id, approval_level, require_all, status, round)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	for i := range instances {
		inst := &instances[i]
		if err := q.QueryRow(ctx, query,
			inst.ChangeID,
			inst.ApproverID,
			inst.Level,
			inst.RequireAll,
			inst.Status,
			inst.Round,
		).Scan(&inst.ID, &inst.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func scanInstances(rows pgx.Rows) ([]domain.ApprovalInstance, error) {
	var result []domain.ApprovalInstance
	for rows.Next() {
		var inst domain.ApprovalInstance
		if err := rows.Scan(
			&inst.ID,
			&inst.ChangeID,
			&inst.ApproverID,
			&inst.Level,
			&inst.RequireAll,
			&inst.Status,
			&inst.Comments,
			&inst.Round,
			&inst.Superseded,
			&inst.DecidedAt,
			&inst.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}
