// Package jobs runs the engine's scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"marketplace-wallet/internal/core/ports"

	"github.com/rs/zerolog"
)

// ReleaseJobs runs the auto-confirm sweep. Every run re-reads due tasks from
// storage, so a missed or crashed run is picked up by the next one.
type ReleaseJobs struct {
	settlement ports.SettlementService
	timeout    time.Duration
	log        zerolog.Logger
}

// NewReleaseJobs creates the job set. timeout bounds one sweep.
func NewReleaseJobs(settlement ports.SettlementService, timeout time.Duration, log zerolog.Logger) *ReleaseJobs {
	return &ReleaseJobs{settlement: settlement, timeout: timeout, log: log}
}

// SweepAutoConfirm releases pending earnings of items whose confirmation
// window has passed.
func (j *ReleaseJobs) SweepAutoConfirm() {
	j.runWithRecovery("sweep_auto_confirm", func(ctx context.Context) error {
		done, err := j.settlement.SweepDue(ctx)
		if done > 0 {
			j.log.Info().Int("released", done).Msg("auto-confirm sweep released items")
		}
		return err
	})
}

// runWithRecovery wraps job execution with a deadline and panic recovery.
func (j *ReleaseJobs) runWithRecovery(name string, fn func(ctx context.Context) error) {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			j.log.Error().Str("job", name).Str("panic", fmt.Sprint(r)).Msg("job panicked")
		}
	}()

	j.log.Debug().Str("job", name).Msg("job started")
	if err := fn(ctx); err != nil {
		j.log.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	j.log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("job completed")
}
