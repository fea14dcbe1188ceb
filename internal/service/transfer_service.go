package service

import (
	"context"
	"encoding/json"
	"errors"
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

// TransferOptions bounds the atomic transfer unit.
type TransferOptions struct {
	Timeout        time.Duration // Whole unit
	LegTimeout     time.Duration // Each seller credit
	IdempotencyTTL time.Duration
}

// Dependencies shared by the money-moving services.
type Deps struct {
	Transactor ports.DBTransactor
	Wallets    ports.WalletRepository
	Entries    ports.LedgerRepository
	Ledger     *Ledger
	Sellers    ports.SellerDirectory
	Orders     ports.OrderService
	Inventory  ports.Inventory
	Alerts     ports.AlertNotifier
	Log        zerolog.Logger
}

var (
	errAlreadyPaid = errors.New("order already has a live payment")
	errOrderPaid   = errors.New("order service reports the order as paid")
)

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	Deps
	hash       ports.HashService
	idempCache ports.IdempotencyCache
	opts       TransferOptions
	esc        *escalator
	now        func() time.Time
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(deps Deps, hash ports.HashService, idempCache ports.IdempotencyCache, opts TransferOptions) *TransferServiceImpl {
	now := func() time.Time { return time.Now().UTC() }
	return &TransferServiceImpl{
		Deps:       deps,
		hash:       hash,
		idempCache: idempCache,
		opts:       opts,
		esc:        &escalator{alerts: deps.Alerts, log: deps.Log, now: now},
		now:        now,
	}
}

func transferKey(orderRef string) string {
	return "transfer:" + orderRef
}

// ExecuteTransfer debits the buyer by the final total and credits each
// seller's pending balance with its prorated share, all in one transaction.
func (s *TransferServiceImpl) ExecuteTransfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	start := time.Now()
	if err := validateTransfer(req); err != nil {
		metrics.TransfersTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	log := s.Log.With().Str("order_ref", req.OrderRef).Str("account_id", req.BuyerAccountID).Logger()

	if prior, err := s.replay(ctx, req); err != nil || prior != nil {
		if prior != nil {
			metrics.TransfersTotal.WithLabelValues("replayed").Inc()
		}
		return prior, err
	}

	req, err := s.orderTransfer(ctx, req)
	if errors.Is(err, errOrderPaid) {
		// A concurrent checkout of the same order committed after the replay lookup.
		if prior, rerr := s.replay(ctx, req); rerr != nil || prior != nil {
			return prior, rerr
		}
		err = apperror.ErrInvalidOrder("order is already paid")
	}
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err := s.authorize(ctx, req); err != nil {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	legs, skipped, err := s.planLegs(ctx, req)
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	for _, ref := range skipped {
		log.Warn().Str("seller_ref", ref).Msg("self-purchase leg skipped")
	}

	tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	result, err := s.commitTransfer(tctx, req, legs)
	cancel()
	metrics.TransferDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, errAlreadyPaid) {
		metrics.TransfersTotal.WithLabelValues("replayed").Inc()
		return s.replayFromLedger(ctx, req.OrderRef)
	}
	if err != nil {
		outcome := "failed"
		if apperror.IsCode(err, apperror.CodeOperationTimeout) {
			outcome = "timeout"
		}
		metrics.TransfersTotal.WithLabelValues(outcome).Inc()
		log.Warn().Err(err).Msg("transfer rolled back")
		return nil, err
	}
	result.SkippedSellers = skipped

	if err := s.Orders.MarkPaid(ctx, req.OrderRef); err != nil {
		log.Error().Err(err).Msg("mark paid failed after commit, compensating")
		if cerr := s.compensate(ctx, result); cerr != nil {
			metrics.TransfersTotal.WithLabelValues("rollback_failed").Inc()
			return nil, cerr
		}
		metrics.TransfersTotal.WithLabelValues("compensated").Inc()
		return nil, collaboratorErr("order service", err)
	}

	if err := s.Inventory.Decrement(ctx, stockChanges(req.Lines)); err != nil {
		log.Warn().Err(err).Msg("stock decrement failed")
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.idempCache.Set(ctx, transferKey(req.OrderRef), payload, s.opts.IdempotencyTTL); err != nil {
			log.Warn().Err(err).Msg("failed to cache transfer result in redis")
		}
	}

	metrics.TransfersTotal.WithLabelValues("completed").Inc()
	log.Info().
		Int64("amount", result.Debited).
		Int("legs", len(result.Legs)).
		Msg("transfer completed")

	return result, nil
}

// validateTransfer checks the request shape. Lines and totals are optional;
// when present they must be a well-formed snapshot of the order.
func validateTransfer(req ports.TransferRequest) error {
	if req.OrderRef == "" || req.BuyerAccountID == "" {
		return apperror.ErrInvalidOrder("order_ref and buyer_account_id are required")
	}
	if len(req.Lines) == 0 && req.PreDiscountTotal == 0 && req.FinalTotal == 0 {
		return nil
	}
	return validateSnapshot(req)
}

func validateSnapshot(req ports.TransferRequest) error {
	if len(req.Lines) == 0 {
		return apperror.ErrInvalidOrder("order has no lines")
	}
	if req.PreDiscountTotal <= 0 || req.FinalTotal <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if req.FinalTotal > req.PreDiscountTotal {
		return apperror.ErrInvalidOrder("final total exceeds pre-discount total")
	}
	var sum int64
	for _, l := range req.Lines {
		if l.ProductID == "" || l.SellerRef == "" {
			return apperror.ErrInvalidOrder("every line needs product_id and seller_ref")
		}
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return apperror.ErrInvalidOrder(fmt.Sprintf("line %s has an invalid quantity or price", l.ProductID))
		}
		sum += l.Subtotal()
	}
	if sum != req.PreDiscountTotal {
		return apperror.ErrInvalidOrder("line subtotals do not add up to the pre-discount total")
	}
	return nil
}

// replay returns the result of an earlier transfer of the same order, from
// Redis first and the ledger second, or nil if the order was never paid.
func (s *TransferServiceImpl) replay(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	cached, err := s.idempCache.Get(ctx, transferKey(req.OrderRef))
	if err != nil {
		s.Log.Warn().Err(err).Str("order_ref", req.OrderRef).Msg("redis idempotency check failed, falling through to DB")
	}
	var result *ports.TransferResult
	if cached != nil {
		result = &ports.TransferResult{}
		if err := json.Unmarshal(cached, result); err != nil {
			s.Log.Warn().Err(err).Str("order_ref", req.OrderRef).Msg("discarding unreadable cached transfer")
			result = nil
		}
	}
	if result == nil {
		if result, err = s.replayFromLedger(ctx, req.OrderRef); err != nil || result == nil {
			return nil, err
		}
	}
	if result.BuyerAccountID != req.BuyerAccountID {
		return nil, apperror.ErrInvalidOrder("order was already paid by another account")
	}
	result.Replayed = true
	return result, nil
}

func (s *TransferServiceImpl) replayFromLedger(ctx context.Context, orderRef string) (*ports.TransferResult, error) {
	payment, err := s.Entries.FindPayment(ctx, orderRef)
	if err != nil {
		return nil, storageErr("find payment", err)
	}
	if payment == nil {
		return nil, nil
	}
	entries, err := s.Entries.ListByOrder(ctx, nil, orderRef, "")
	if err != nil {
		return nil, storageErr("list order entries", err)
	}

	result := &ports.TransferResult{
		OrderRef:       orderRef,
		BuyerAccountID: payment.AccountID,
		PaymentEntryID: payment.ID,
		Debited:        -payment.Amount,
		Replayed:       true,
		CompletedAt:    payment.CreatedAt,
	}
	for _, e := range entries {
		if e.Kind != domain.EntryKindReceivePending || e.IsReversal() {
			continue
		}
		result.Legs = append(result.Legs, ports.TransferLeg{
			SellerAccountID: e.AccountID,
			Amount:          e.Amount,
			EntryID:         e.ID,
		})
	}
	return result, nil
}

// orderTransfer loads the order from the order service and returns the
// request priced from it. A snapshot sent by the caller must match the order
// exactly; the caller's prices are never used.
func (s *TransferServiceImpl) orderTransfer(ctx context.Context, req ports.TransferRequest) (ports.TransferRequest, error) {
	order, err := s.Orders.GetOrder(ctx, req.OrderRef)
	if err != nil {
		return req, collaboratorErr("order service", err)
	}
	if order == nil {
		return req, apperror.ErrOrderNotFound()
	}
	if order.BuyerAccountID != req.BuyerAccountID {
		return req, apperror.ErrForbidden()
	}
	switch {
	case order.IsPaid():
		return req, errOrderPaid
	case order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusRefunded:
		return req, apperror.ErrInvalidOrder("order is " + order.Status)
	}
	if len(req.Lines) > 0 && !matchesOrder(req, order) {
		return req, apperror.ErrInvalidOrder(fmt.Sprintf("checkout does not match order %s", order.Ref))
	}

	priced := ports.TransferRequest{
		OrderRef:         order.Ref,
		BuyerAccountID:   order.BuyerAccountID,
		Lines:            order.Lines,
		PreDiscountTotal: order.PreDiscountTotal,
		FinalTotal:       order.FinalTotal,
		Pin:              req.Pin,
	}
	if err := validateSnapshot(priced); err != nil {
		return req, err
	}
	return priced, nil
}

// matchesOrder compares the caller's snapshot with the order line by line.
func matchesOrder(req ports.TransferRequest, order *domain.Order) bool {
	if req.PreDiscountTotal != order.PreDiscountTotal || req.FinalTotal != order.FinalTotal {
		return false
	}
	if len(req.Lines) != len(order.Lines) {
		return false
	}
	for _, l := range req.Lines {
		o := order.FindLine(l.ProductID)
		if o == nil || o.SellerRef != l.SellerRef || o.Quantity != l.Quantity || o.UnitPrice != l.UnitPrice {
			return false
		}
	}
	return true
}

// authorize checks the buyer wallet exists, is active and, when a PIN is
// set, that req.Pin matches it.
func (s *TransferServiceImpl) authorize(ctx context.Context, req ports.TransferRequest) error {
	wallet, err := s.Wallets.GetByAccountID(ctx, req.BuyerAccountID, true)
	if err != nil {
		return storageErr("get buyer wallet", err)
	}
	if wallet == nil {
		return apperror.ErrWalletNotFound()
	}
	if !wallet.IsActive {
		return apperror.ErrWalletInactive()
	}
	if !wallet.HasPin() {
		return nil
	}
	ok, err := s.hash.Verify(req.Pin, *wallet.SecurityPinHash)
	if err != nil || !ok {
		return apperror.ErrInvalidPin()
	}
	return nil
}

// planLegs resolves every seller's settlement account once and splits the
// final total. Sellers paying themselves are skipped.
func (s *TransferServiceImpl) planLegs(ctx context.Context, req ports.TransferRequest) ([]ports.TransferLeg, []string, error) {
	shares := splitOrder(req.Lines, req.FinalTotal)

	var legs []ports.TransferLeg
	var skipped []string
	for _, share := range shares {
		account := share.AccountID
		if account == "" {
			resolved, err := s.resolveSeller(ctx, share.SellerRef)
			if err != nil {
				return nil, nil, err
			}
			account = resolved
		}
		if account == req.BuyerAccountID {
			skipped = append(skipped, share.SellerRef)
			continue
		}
		if share.Amount == 0 {
			continue
		}
		legs = append(legs, ports.TransferLeg{
			SellerRef:       share.SellerRef,
			SellerAccountID: account,
			Amount:          share.Amount,
		})
	}
	if len(legs) == 0 {
		return nil, nil, apperror.ErrInvalidOrder("order has no payable seller")
	}
	return legs, skipped, nil
}

func (s *TransferServiceImpl) resolveSeller(ctx context.Context, sellerRef string) (string, error) {
	return resolveSettlementAccount(ctx, s.Sellers, sellerRef)
}

// commitTransfer runs the debit and every seller credit in one transaction.
// Any failure rolls the whole unit back; a failing rollback is escalated.
func (s *TransferServiceImpl) commitTransfer(ctx context.Context, req ports.TransferRequest, legs []ports.TransferLeg) (*ports.TransferResult, error) {
	tx, err := s.Transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}

	result, err := s.writeTransfer(ctx, tx, req, legs)
	if err == nil {
		if cerr := tx.Commit(ctx); cerr != nil {
			err = storageErr("commit tx", cerr)
		}
	}
	if err != nil {
		if rerr := rollback(ctx, tx); rerr != nil {
			return nil, s.esc.escalate(ctx, req.OrderRef, "transfer_rollback",
				fmt.Errorf("%v; rollback: %w", err, rerr), []string{"rollback"})
		}
		return nil, err
	}
	return result, nil
}

func (s *TransferServiceImpl) writeTransfer(ctx context.Context, tx pgx.Tx, req ports.TransferRequest, legs []ports.TransferLeg) (*ports.TransferResult, error) {
	accounts := []string{req.BuyerAccountID}
	var debit int64
	for _, leg := range legs {
		accounts = append(accounts, leg.SellerAccountID)
		debit += leg.Amount
	}
	if _, err := s.Ledger.LockWallets(ctx, tx, accounts, true); err != nil {
		return nil, err
	}

	// Re-check under the buyer lock: a concurrent checkout of the same
	// order may have committed since the replay lookup.
	existing, err := s.Entries.ListByOrder(ctx, tx, req.OrderRef, req.BuyerAccountID)
	if err != nil {
		return nil, storageErr("list order entries", err)
	}
	for _, e := range existing {
		if e.Kind == domain.EntryKindPayment && e.CountsTowardOutstanding() && !e.IsConsumed() {
			return nil, errAlreadyPaid
		}
	}

	orderRef := req.OrderRef
	payment, err := s.Ledger.Post(ctx, tx, Posting{
		AccountID:   req.BuyerAccountID,
		Kind:        domain.EntryKindPayment,
		Op:          OpDebit,
		Amount:      debit,
		Description: fmt.Sprintf("order %s payment", orderRef),
		OrderRef:    &orderRef,
	})
	if err != nil {
		return nil, err
	}

	result := &ports.TransferResult{
		OrderRef:       orderRef,
		BuyerAccountID: req.BuyerAccountID,
		PaymentEntryID: payment.ID,
		Debited:        debit,
	}
	buyer := req.BuyerAccountID
	for _, leg := range legs {
		entry, err := s.creditLeg(ctx, tx, orderRef, buyer, leg)
		if err != nil {
			return nil, err
		}
		leg.EntryID = entry.ID
		result.Legs = append(result.Legs, leg)
	}

	if err := ctx.Err(); err != nil {
		return nil, apperror.ErrOperationTimeout(err)
	}
	result.CompletedAt = s.now()
	return result, nil
}

func (s *TransferServiceImpl) creditLeg(ctx context.Context, tx pgx.Tx, orderRef, buyer string, leg ports.TransferLeg) (*domain.LedgerEntry, error) {
	lctx, cancel := context.WithTimeout(ctx, s.opts.LegTimeout)
	defer cancel()

	entry, err := s.Ledger.Post(lctx, tx, Posting{
		AccountID:       leg.SellerAccountID,
		Kind:            domain.EntryKindReceivePending,
		Op:              OpCreditPending,
		Amount:          leg.Amount,
		Description:     fmt.Sprintf("order %s earnings", orderRef),
		OrderRef:        &orderRef,
		CounterpartyRef: &buyer,
		CreateWallet:    true,
	})
	if err != nil {
		if lctx.Err() != nil && !apperror.IsCode(err, apperror.CodeOperationTimeout) {
			return nil, apperror.ErrOperationTimeout(fmt.Errorf("seller %s leg: %w", leg.SellerRef, err))
		}
		return nil, err
	}
	if lctx.Err() != nil {
		return nil, apperror.ErrOperationTimeout(fmt.Errorf("seller %s leg: %w", leg.SellerRef, lctx.Err()))
	}
	return entry, nil
}

// compensate undoes a committed transfer: refund the buyer first, then cancel
// every seller's pending credit. It runs as one unit; if it fails the drift
// is escalated for manual intervention.
func (s *TransferServiceImpl) compensate(ctx context.Context, res *ports.TransferResult) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	failed := []string{"refund_buyer"}
	err := func() error {
		tx, err := s.Transactor.Begin(cctx)
		if err != nil {
			return storageErr("begin tx", err)
		}
		defer rollback(cctx, tx) //nolint:errcheck

		orderRef, buyer := res.OrderRef, res.BuyerAccountID
		refund, err := s.Ledger.Post(cctx, tx, Posting{
			AccountID:   buyer,
			Kind:        domain.EntryKindRefund,
			Op:          OpCredit,
			Amount:      res.Debited,
			Description: fmt.Sprintf("order %s payment compensated", orderRef),
			OrderRef:    &orderRef,
		})
		if err != nil {
			return err
		}
		if _, err := s.Entries.MarkConsumed(cctx, tx, []uuid.UUID{res.PaymentEntryID}, refund.ID, s.now()); err != nil {
			return storageErr("mark payment consumed", err)
		}

		failed = []string{"cancel_pending"}
		for _, leg := range res.Legs {
			if _, err := s.Ledger.CancelPending(cctx, tx, orderRef, leg.SellerAccountID, leg.Amount, &buyer); err != nil {
				failed = append(failed, leg.SellerAccountID)
				return err
			}
		}

		failed = []string{"commit"}
		if err := tx.Commit(cctx); err != nil {
			return storageErr("commit tx", err)
		}
		return nil
	}()
	if err != nil {
		return s.esc.escalate(ctx, res.OrderRef, "transfer_compensation", err, failed)
	}

	s.Log.Warn().Str("order_ref", res.OrderRef).Int64("amount", res.Debited).Msg("transfer compensated")
	return nil
}

// Refund credits accountID's available balance for orderRef.
func (s *TransferServiceImpl) Refund(ctx context.Context, accountID string, amount int64, orderRef string) (*domain.LedgerEntry, error) {
	tx, err := s.Transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	entry, err := s.Ledger.Post(ctx, tx, Posting{
		AccountID:   accountID,
		Kind:        domain.EntryKindRefund,
		Op:          OpCredit,
		Amount:      amount,
		Description: fmt.Sprintf("order %s refund", orderRef),
		OrderRef:    strPtr(orderRef),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	s.Log.Info().Str("order_ref", orderRef).Str("account_id", accountID).Int64("amount", amount).Msg("refund posted")
	return entry, nil
}

// CancelPendingForOrder removes sellers' pending earnings for orderRef. With
// no items every seller's full outstanding amount is cancelled; otherwise
// each seller loses the paid amount of its listed items.
func (s *TransferServiceImpl) CancelPendingForOrder(ctx context.Context, orderRef string, items []domain.CancelItem) ([]domain.LedgerEntry, error) {
	if orderRef == "" {
		return nil, apperror.ErrInvalidOrder("order_ref is required")
	}

	amounts := make(map[string]int64)
	if len(items) > 0 {
		for _, it := range items {
			account := it.SellerAccountID
			if account == "" {
				resolved, err := s.resolveSeller(ctx, it.SellerRef)
				if err != nil {
					return nil, err
				}
				account = resolved
			}
			amounts[account] += it.PaidAmount
		}
	}

	tx, err := s.Transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	if len(items) == 0 {
		entries, err := s.Entries.ListByOrder(ctx, tx, orderRef, "")
		if err != nil {
			return nil, storageErr("list order entries", err)
		}
		for _, e := range entries {
			if e.Kind == domain.EntryKindReceivePending && !e.IsReversal() {
				amounts[e.AccountID] = 0 // full outstanding, resolved under lock
			}
		}
	}

	accounts := make([]string, 0, len(amounts))
	for a := range amounts {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	if _, err := s.Ledger.LockWallets(ctx, tx, accounts, false); err != nil {
		return nil, err
	}

	var out []domain.LedgerEntry
	for _, account := range accounts {
		amount := amounts[account]
		if amount == 0 {
			outstanding, _, err := s.Ledger.Outstanding(ctx, tx, orderRef, account)
			if err != nil {
				return nil, err
			}
			if outstanding <= 0 {
				continue
			}
			amount = outstanding
		}
		entry, err := s.Ledger.CancelPending(ctx, tx, orderRef, account, amount, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}
	return out, nil
}

func stockChanges(lines []domain.OrderLine) []domain.StockChange {
	changes := make([]domain.StockChange, 0, len(lines))
	for _, l := range lines {
		changes = append(changes, domain.StockChange{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return changes
}
