package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/internal/metrics"
	"marketplace-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ReversalServiceImpl implements ports.ReversalService.
type ReversalServiceImpl struct {
	transactor ports.DBTransactor
	entries    ports.LedgerRepository
	ledger     *Ledger
	idempCache ports.IdempotencyCache
	log        zerolog.Logger
	now        func() time.Time
}

// NewReversalService creates a new ReversalServiceImpl.
func NewReversalService(deps Deps, idempCache ports.IdempotencyCache) *ReversalServiceImpl {
	return &ReversalServiceImpl{
		transactor: deps.Transactor,
		entries:    deps.Entries,
		ledger:     deps.Ledger,
		idempCache: idempCache,
		log:        deps.Log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reverse posts the inverse of a completed entry and marks it reversed.
// A payment reversal also reverses the order's unsettled seller credits, so
// the returned slice holds every reversal entry written.
func (s *ReversalServiceImpl) Reverse(ctx context.Context, entryID uuid.UUID, reason string, actorRef string) ([]domain.LedgerEntry, error) {
	if reason == "" {
		return nil, apperror.Validation("reason is required")
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	orig, err := s.entries.GetByIDForUpdate(ctx, tx, entryID)
	if err != nil {
		return nil, storageErr("lock ledger entry", err)
	}
	if err := checkReversible(orig); err != nil {
		return nil, err
	}

	targets := []domain.LedgerEntry{*orig}
	switch orig.Kind {
	case domain.EntryKindReceivePending:
		if err := s.checkLegUnsettled(ctx, tx, orig); err != nil {
			return nil, err
		}
	case domain.EntryKindPayment:
		if orig.IsConsumed() {
			return nil, apperror.ErrEntryConsumed()
		}
		legs, err := s.paymentLegs(ctx, tx, orig)
		if err != nil {
			return nil, err
		}
		targets = append(targets, legs...)
	}

	accounts := make([]string, 0, len(targets))
	for _, e := range targets {
		accounts = append(accounts, e.AccountID)
	}
	if _, err := s.ledger.LockWallets(ctx, tx, accounts, false); err != nil {
		return nil, err
	}

	out := make([]domain.LedgerEntry, 0, len(targets))
	for i := range targets {
		rev, err := s.reverseOne(ctx, tx, &targets[i], reason, actorRef)
		if err != nil {
			return nil, err
		}
		out = append(out, *rev)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	if orig.Kind == domain.EntryKindPayment && orig.OrderRef != nil {
		if err := s.idempCache.Delete(ctx, transferKey(*orig.OrderRef)); err != nil {
			s.log.Warn().Err(err).Str("order_ref", *orig.OrderRef).Msg("failed to drop cached transfer")
		}
	}

	metrics.ReversalsTotal.WithLabelValues(string(orig.Kind)).Inc()
	s.log.Warn().
		Str("entry_id", orig.ID.String()).
		Str("account_id", orig.AccountID).
		Str("kind", string(orig.Kind)).
		Str("actor_ref", actorRef).
		Int("entries", len(out)).
		Msg("ledger entry reversed")

	return out, nil
}

func checkReversible(e *domain.LedgerEntry) error {
	switch {
	case e == nil:
		return apperror.ErrEntryNotFound()
	case e.IsReversed:
		return apperror.ErrAlreadyReversed()
	case e.IsReversal():
		return apperror.ErrAlreadyReversed().WithDetail("reversal_of_ref", e.ReversalOfRef.String())
	case e.Status != domain.EntryStatusCompleted:
		return apperror.ErrNotCompleted()
	}
	return nil
}

// checkLegUnsettled fails unless the seller still holds the leg's full
// amount as pending earnings for the order.
func (s *ReversalServiceImpl) checkLegUnsettled(ctx context.Context, tx pgx.Tx, leg *domain.LedgerEntry) error {
	if leg.IsConsumed() {
		return apperror.ErrEntryConsumed()
	}
	if leg.OrderRef == nil {
		return nil
	}
	outstanding, _, err := s.ledger.Outstanding(ctx, tx, *leg.OrderRef, leg.AccountID)
	if err != nil {
		return err
	}
	if outstanding < leg.Amount {
		return apperror.ErrEntryConsumed().
			WithDetail("outstanding", outstanding).
			WithDetail("amount", leg.Amount)
	}
	return nil
}

// paymentLegs returns the live seller credits paid for by payment.
func (s *ReversalServiceImpl) paymentLegs(ctx context.Context, tx pgx.Tx, payment *domain.LedgerEntry) ([]domain.LedgerEntry, error) {
	if payment.OrderRef == nil {
		return nil, nil
	}
	entries, err := s.entries.ListByOrder(ctx, tx, *payment.OrderRef, "")
	if err != nil {
		return nil, storageErr("list order entries", err)
	}

	var legs []domain.LedgerEntry
	for _, e := range entries {
		if e.Kind != domain.EntryKindReceivePending || !e.CountsTowardOutstanding() {
			continue
		}
		if e.CounterpartyRef == nil || *e.CounterpartyRef != payment.AccountID {
			continue
		}
		if err := s.checkLegUnsettled(ctx, tx, &e); err != nil {
			return nil, err
		}
		legs = append(legs, e)
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].AccountID < legs[j].AccountID })
	return legs, nil
}

func (s *ReversalServiceImpl) reverseOne(ctx context.Context, tx pgx.Tx, orig *domain.LedgerEntry, reason, actorRef string) (*domain.LedgerEntry, error) {
	amount := orig.Amount
	if amount < 0 {
		amount = -amount
	}
	origID := orig.ID
	rev, err := s.ledger.Post(ctx, tx, Posting{
		AccountID:       orig.AccountID,
		Kind:            orig.Kind,
		Op:              opForEntry(orig).inverse(),
		Amount:          amount,
		Description:     fmt.Sprintf("reversal of %s: %s", orig.ID, reason),
		OrderRef:        orig.OrderRef,
		CounterpartyRef: orig.CounterpartyRef,
		AdminRef:        strPtr(actorRef),
		ReversalOfRef:   &origID,
	})
	if err != nil {
		return nil, err
	}

	ok, err := s.entries.MarkReversed(ctx, tx, orig.ID, rev.ID, s.now())
	if err != nil {
		return nil, storageErr("mark entry reversed", err)
	}
	if !ok {
		return nil, apperror.ErrAlreadyReversed()
	}
	return rev, nil
}
