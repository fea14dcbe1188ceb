package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"marketplace-wallet/internal/core/domain"

	"github.com/google/uuid"
)

// ReleaseTaskRepo implements ports.ReleaseTaskRepository.
type ReleaseTaskRepo struct {
	store *Store
}

// NewReleaseTaskRepo creates a new ReleaseTaskRepo.
func NewReleaseTaskRepo(store *Store) *ReleaseTaskRepo {
	return &ReleaseTaskRepo{store: store}
}

// Schedule keeps one task per order item; a scheduled task keeps the earlier due time.
func (r *ReleaseTaskRepo) Schedule(ctx context.Context, t *domain.ReleaseTask) error {
	return r.store.autocommit(ctx, func(st *state) error {
		for id, cur := range st.releaseTasks {
			if cur.OrderRef != t.OrderRef || cur.ProductID != t.ProductID {
				continue
			}
			if cur.Status == domain.ReleaseTaskScheduled && t.DueAt.Before(cur.DueAt) {
				cur.DueAt = t.DueAt
				cur.UpdatedAt = t.UpdatedAt
				st.releaseTasks[id] = cur
			}
			return nil
		}
		st.releaseTasks[t.ID] = *t
		return nil
	})
}

func (r *ReleaseTaskRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ReleaseTask, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	var due []domain.ReleaseTask
	for _, t := range st.releaseTasks {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *ReleaseTaskRepo) RecordAttempt(ctx context.Context, id uuid.UUID, status domain.ReleaseTaskStatus, lastErr *string, at time.Time) error {
	return r.store.autocommit(ctx, func(st *state) error {
		t, ok := st.releaseTasks[id]
		if !ok {
			return fmt.Errorf("release task not found: %s", id)
		}
		t.Status = status
		t.Attempts++
		t.LastError = lastErr
		t.UpdatedAt = at
		st.releaseTasks[id] = t
		return nil
	})
}

// Get returns a task by ID, or nil.
func (r *ReleaseTaskRepo) Get(ctx context.Context, id uuid.UUID) (*domain.ReleaseTask, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	t, ok := st.releaseTasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}
