package postgres

import (
	"context"
	"fmt"
	"time"

	"marketplace-wallet/internal/core/domain"

	"github.com/google/uuid"
)

const releaseTaskColumns = `id, order_ref, product_id, due_at, status, attempts, last_error, created_at, updated_at`

// ReleaseTaskRepo implements ports.ReleaseTaskRepository.
type ReleaseTaskRepo struct {
	pool Pool
}

// NewReleaseTaskRepo creates a new ReleaseTaskRepo.
func NewReleaseTaskRepo(pool Pool) *ReleaseTaskRepo {
	return &ReleaseTaskRepo{pool: pool}
}

// Schedule upserts a task on (order_ref, product_id), keeping the earlier due time.
func (r *ReleaseTaskRepo) Schedule(ctx context.Context, t *domain.ReleaseTask) error {
	query := `INSERT INTO release_tasks (` + releaseTaskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_ref, product_id) DO UPDATE
		SET due_at = LEAST(release_tasks.due_at, EXCLUDED.due_at), updated_at = EXCLUDED.updated_at
		WHERE release_tasks.status = 'scheduled'`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.OrderRef, t.ProductID, t.DueAt, t.Status, t.Attempts, t.LastError, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("schedule release task: %w", err)
	}
	return nil
}

// ListDue returns scheduled tasks whose due time has passed, oldest first.
func (r *ReleaseTaskRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ReleaseTask, error) {
	query := `SELECT ` + releaseTaskColumns + ` FROM release_tasks
		WHERE status = 'scheduled' AND due_at <= $1
		ORDER BY due_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due release tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ReleaseTask
	for rows.Next() {
		var t domain.ReleaseTask
		if err := rows.Scan(
			&t.ID, &t.OrderRef, &t.ProductID, &t.DueAt, &t.Status, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan release task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate release task rows: %w", err)
	}
	return tasks, nil
}

// RecordAttempt bumps the attempt counter and stores the outcome.
func (r *ReleaseTaskRepo) RecordAttempt(ctx context.Context, id uuid.UUID, status domain.ReleaseTaskStatus, lastErr *string, at time.Time) error {
	query := `UPDATE release_tasks SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, status, lastErr, at, id)
	if err != nil {
		return fmt.Errorf("record release attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release task not found: %s", id)
	}
	return nil
}
