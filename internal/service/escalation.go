package service

import (
	"context"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/internal/metrics"
	"marketplace-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// escalator turns a failed compensation into a RollbackFailed error that an
// operator has to act on. It never retries the compensation itself.
type escalator struct {
	alerts ports.AlertNotifier
	log    zerolog.Logger
	now    func() time.Time
}

func (e *escalator) escalate(ctx context.Context, orderRef, operation string, cause error, failedSteps []string) error {
	e.log.Error().
		Err(cause).
		Bool("manual_intervention", true).
		Str("order_ref", orderRef).
		Str("operation", operation).
		Strs("failed_steps", failedSteps).
		Msg("compensating rollback failed, ledger and collaborators may disagree")

	metrics.RollbackFailuresTotal.WithLabelValues(operation).Inc()

	if e.alerts != nil {
		alert := domain.RollbackAlert{
			OrderRef:    orderRef,
			Operation:   operation,
			Cause:       cause.Error(),
			FailedSteps: failedSteps,
			OccurredAt:  e.now(),
		}
		if err := e.alerts.NotifyRollbackFailed(context.WithoutCancel(ctx), alert); err != nil {
			e.log.Error().Err(err).Str("order_ref", orderRef).Msg("failed to enqueue rollback alert")
		}
	}

	return apperror.ErrRollbackFailed(cause)
}
