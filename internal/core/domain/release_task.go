package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReleaseTaskStatus is the state of a scheduled auto-confirmation.
type ReleaseTaskStatus string

const (
	ReleaseTaskScheduled ReleaseTaskStatus = "scheduled"
	ReleaseTaskDone      ReleaseTaskStatus = "done"
	ReleaseTaskFailed    ReleaseTaskStatus = "failed"
)

// ReleaseTask is a persisted "confirm receipt automatically at DueAt" job.
// The sweeper re-reads due tasks on every run, so a restart loses nothing.
type ReleaseTask struct {
	ID        uuid.UUID         `json:"id"`
	OrderRef  string            `json:"order_ref"`
	ProductID string            `json:"product_id"`
	DueAt     time.Time         `json:"due_at"`
	Status    ReleaseTaskStatus `json:"status"`
	Attempts  int               `json:"attempts"`
	LastError *string           `json:"last_error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsDue reports whether the task should run at now.
func (t *ReleaseTask) IsDue(now time.Time) bool {
	return t.Status == ReleaseTaskScheduled && !t.DueAt.After(now)
}
