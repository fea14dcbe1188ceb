package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/internal/metrics"
	"marketplace-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// A task that keeps failing is parked after this many sweeps.
const maxReleaseAttempts = 5

// No-op reasons reported by ReleaseForItem.
const (
	ReasonAwaitingOtherItems = "awaiting_other_items"
	ReasonNothingOutstanding = "nothing_outstanding"
)

// SettlementOptions configures auto-confirmation.
type SettlementOptions struct {
	AutoConfirmAfter time.Duration
	BatchSize        int
}

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	transactor ports.DBTransactor
	ledger     *Ledger
	tasks      ports.ReleaseTaskRepository
	requests   ports.CancelRequestRepository
	orders     ports.OrderService
	sellers    ports.SellerDirectory
	opts       SettlementOptions
	log        zerolog.Logger
	now        func() time.Time
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(deps Deps, tasks ports.ReleaseTaskRepository, requests ports.CancelRequestRepository, opts SettlementOptions) *SettlementServiceImpl {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &SettlementServiceImpl{
		transactor: deps.Transactor,
		ledger:     deps.Ledger,
		tasks:      tasks,
		requests:   requests,
		orders:     deps.Orders,
		sellers:    deps.Sellers,
		opts:       opts,
		log:        deps.Log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ReleaseForItem moves a seller's pending earnings for an order to available
// once every line that seller sold in the order has been received. Lines
// cancelled and refunded earlier do not count. Calling it again after a
// release changes nothing.
func (s *SettlementServiceImpl) ReleaseForItem(ctx context.Context, orderRef string, productID string) (*ports.ReleaseResult, error) {
	order, err := s.orders.GetOrder(ctx, orderRef)
	if err != nil {
		return nil, collaboratorErr("order service", err)
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	line := order.FindLine(productID)
	if line == nil {
		return nil, apperror.ErrInvalidOrder(fmt.Sprintf("order %s has no product %s", orderRef, productID))
	}

	prior, err := s.requests.ListProcessedByOrder(ctx, nil, orderRef)
	if err != nil {
		return nil, storageErr("list processed cancel requests", err)
	}
	cancelled := domain.CancelledProducts(prior)

	result := &ports.ReleaseResult{OrderRef: orderRef, SellerRef: line.SellerRef}
	for _, l := range order.LinesForSeller(line.SellerRef) {
		if cancelled[l.ProductID] || l.Status == domain.ItemStatusCancelled {
			continue
		}
		if l.Status != domain.ItemStatusReceived {
			result.Reason = ReasonAwaitingOtherItems
			metrics.ReleasesTotal.WithLabelValues("noop").Inc()
			return result, nil
		}
	}

	account := line.SellerAccountID
	if account == "" {
		if account, err = resolveSettlementAccount(ctx, s.sellers, line.SellerRef); err != nil {
			return nil, err
		}
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	wallet, err := s.ledger.Lock(ctx, tx, account)
	if err != nil {
		return nil, err
	}
	var outstanding int64
	var legs []domain.LedgerEntry
	if wallet != nil {
		if outstanding, legs, err = s.ledger.Outstanding(ctx, tx, orderRef, account); err != nil {
			return nil, err
		}
	}
	if outstanding <= 0 {
		result.Reason = ReasonNothingOutstanding
		metrics.ReleasesTotal.WithLabelValues("noop").Inc()
		return result, nil
	}

	entry, err := s.ledger.Post(ctx, tx, Posting{
		AccountID:   account,
		Kind:        domain.EntryKindReceiveConfirmed,
		Op:          OpReleasePending,
		Amount:      outstanding,
		Description: fmt.Sprintf("order %s earnings released", orderRef),
		OrderRef:    &orderRef,
	})
	if err != nil {
		return nil, err
	}
	if err := s.ledger.consume(ctx, tx, legs, entry.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	metrics.ReleasesTotal.WithLabelValues("released").Inc()
	s.log.Info().
		Str("order_ref", orderRef).
		Str("seller_ref", line.SellerRef).
		Str("account_id", account).
		Int64("amount", outstanding).
		Msg("pending earnings released")

	result.Released = true
	result.Amount = outstanding
	result.Entry = entry
	return result, nil
}

// ScheduleAutoConfirm persists a task confirming receipt of the item once
// the auto-confirm window after delivery has passed.
func (s *SettlementServiceImpl) ScheduleAutoConfirm(ctx context.Context, orderRef string, productID string, deliveredAt time.Time) (*domain.ReleaseTask, error) {
	if orderRef == "" || productID == "" {
		return nil, apperror.Validation("order_ref and product_id are required")
	}
	now := s.now()
	task := &domain.ReleaseTask{
		ID:        uuid.New(),
		OrderRef:  orderRef,
		ProductID: productID,
		DueAt:     deliveredAt.UTC().Add(s.opts.AutoConfirmAfter),
		Status:    domain.ReleaseTaskScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tasks.Schedule(ctx, task); err != nil {
		return nil, storageErr("schedule release task", err)
	}

	s.log.Info().
		Str("order_ref", orderRef).
		Str("product_id", productID).
		Time("due_at", task.DueAt).
		Msg("auto-confirm scheduled")
	return task, nil
}

// SweepDue runs every due task once and returns how many completed.
func (s *SettlementServiceImpl) SweepDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.tasks.ListDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		return 0, storageErr("list due release tasks", err)
	}

	done := 0
	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return done, apperror.ErrOperationTimeout(err)
		}

		status := domain.ReleaseTaskDone
		var lastErr *string
		if err := s.runTask(ctx, task); err != nil {
			msg := err.Error()
			lastErr = &msg
			status = domain.ReleaseTaskScheduled
			if task.Attempts+1 >= maxReleaseAttempts {
				status = domain.ReleaseTaskFailed
			}
			s.log.Warn().Err(err).
				Str("order_ref", task.OrderRef).
				Str("product_id", task.ProductID).
				Int("attempt", task.Attempts+1).
				Msg("auto-confirm failed")
		} else {
			done++
		}

		if err := s.tasks.RecordAttempt(ctx, task.ID, status, lastErr, s.now()); err != nil {
			return done, storageErr("record release attempt", err)
		}
	}
	return done, nil
}

func (s *SettlementServiceImpl) runTask(ctx context.Context, task domain.ReleaseTask) error {
	if err := s.orders.MarkItemReceived(ctx, task.OrderRef, task.ProductID); err != nil {
		return collaboratorErr("order service", err)
	}
	_, err := s.ReleaseForItem(ctx, task.OrderRef, task.ProductID)
	return err
}
