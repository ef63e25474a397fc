package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

// ChangeHistoryRepository stores audit entries.
type ChangeHistoryRepository interface {
	Create(ctx context.Context, history *domain.ChangeHistory) error
	ListByChange(ctx context.Context, changeID string, limit, offset int) ([]domain.ChangeHistory, error)
}

type changeHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewChangeHistoryRepository builds repository.
func NewChangeHistoryRepository(pool *pgxpool.Pool) ChangeHistoryRepository {
	return &changeHistoryRepository{pool: pool}
}

func (r *changeHistoryRepository) Create(ctx context.Context, history *domain.ChangeHistory) error {
	const query = `
        INSERT INTO change_history (change_id, changed_by_type, changed_by_id, event_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.ChangeID,
		history.ChangedByType,
		history.ChangedByID,
		history.EventType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *changeHistoryRepository) ListByChange(ctx context.Context, changeID string, limit, offset int) ([]domain.ChangeHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, change_id, changed_by_type, changed_by_id, event_type, old_value, new_value, created_at
        FROM change_history WHERE change_id=$1 ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, changeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChangeHistory
	for rows.Next() {
		var history domain.ChangeHistory
		if err := rows.Scan(
			&history.ID,
			&history.ChangeID,
			&history.ChangedByType,
			&history.ChangedByID,
			&history.EventType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
