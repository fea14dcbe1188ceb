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

// CancellationServiceImpl implements ports.CancellationService.
type CancellationServiceImpl struct {
	transactor ports.DBTransactor
	ledger     *Ledger
	requests   ports.CancelRequestRepository
	orders     ports.OrderService
	inventory  ports.Inventory
	sellers    ports.SellerDirectory
	log        zerolog.Logger
	now        func() time.Time
}

// NewCancellationService creates a new CancellationServiceImpl.
func NewCancellationService(deps Deps, requests ports.CancelRequestRepository) *CancellationServiceImpl {
	return &CancellationServiceImpl{
		transactor: deps.Transactor,
		ledger:     deps.Ledger,
		requests:   requests,
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		sellers:    deps.Sellers,
		log:        deps.Log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RequestCancellation cancels an unpaid order on the spot. For a paid order it
// opens a request every seller of the listed items has to answer. Items
// already cancelled, received or settled to their seller are refused.
func (s *CancellationServiceImpl) RequestCancellation(ctx context.Context, req ports.CancellationRequest) (*ports.CancellationOutcome, error) {
	if req.OrderRef == "" || req.BuyerAccountID == "" {
		return nil, apperror.Validation("order_ref and buyer_account_id are required")
	}
	log := s.log.With().Str("order_ref", req.OrderRef).Str("account_id", req.BuyerAccountID).Logger()

	order, err := s.getOrder(ctx, req.OrderRef)
	if err != nil {
		return nil, err
	}
	if order.BuyerAccountID != req.BuyerAccountID {
		return nil, apperror.ErrForbidden()
	}
	switch order.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		return nil, apperror.ErrAlreadyProcessed()
	}

	if !order.IsPaid() {
		if _, err := selectLines(order, req.ProductIDs, nil); err != nil {
			return nil, err
		}
		if err := s.orders.MarkCancelled(ctx, order.Ref); err != nil {
			return nil, collaboratorErr("order service", err)
		}
		if err := s.inventory.Restore(ctx, stockChanges(order.Lines)); err != nil {
			log.Warn().Err(err).Msg("stock restore failed")
		}
		metrics.CancellationsTotal.WithLabelValues("immediate").Inc()
		log.Info().Msg("unpaid order cancelled")
		return &ports.CancellationOutcome{Immediate: true, OrderRef: order.Ref}, nil
	}

	accounts, err := s.sellerAccounts(ctx, order.Lines)
	if err != nil {
		return nil, err
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	pending, err := s.requests.GetPendingByOrder(ctx, tx, order.Ref)
	if err != nil {
		return nil, storageErr("get pending cancel request", err)
	}
	if pending != nil {
		return nil, apperror.ErrCancelRequestPending()
	}
	cancelled, err := s.cancelledProducts(ctx, tx, order)
	if err != nil {
		return nil, err
	}
	lines, err := selectLines(order, req.ProductIDs, cancelled)
	if err != nil {
		return nil, err
	}

	cr := s.buildRequest(order, lines, accounts, req.Reason)
	if err := s.checkRefundable(ctx, tx, cr); err != nil {
		return nil, err
	}
	if cr.AllResponded() {
		// Only the buyer's own items were listed; nobody else has to answer.
		if err := s.resolve(ctx, tx, cr, order, cancelled); err != nil {
			return nil, err
		}
	}
	if err := s.requests.Create(ctx, tx, cr); err != nil {
		return nil, storageErr("create cancel request", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	log = log.With().Str("request_id", cr.ID.String()).Logger()
	if cr.IsProcessed() {
		s.afterResolve(ctx, log, cr, order, cancelled)
		return &ports.CancellationOutcome{OrderRef: order.Ref, Request: cr}, nil
	}

	if err := s.orders.SetStatus(ctx, order.Ref, domain.OrderStatusCancellationRequested); err != nil {
		log.Error().Err(err).Msg("failed to flag order as cancellation requested")
	}

	metrics.CancellationsTotal.WithLabelValues(string(domain.CancelStatusPending)).Inc()
	log.Info().
		Strs("required_sellers", cr.RequiredSellers).
		Msg("cancellation requested")

	return &ports.CancellationOutcome{OrderRef: order.Ref, Request: cr}, nil
}

// selectLines returns the order lines named by productIDs, or every line not
// yet cancelled. Naming a cancelled or received line is an error.
func selectLines(order *domain.Order, productIDs []string, cancelled map[string]bool) ([]domain.OrderLine, error) {
	isCancelled := func(l domain.OrderLine) bool {
		return cancelled[l.ProductID] || l.Status == domain.ItemStatusCancelled
	}

	var out []domain.OrderLine
	if len(productIDs) == 0 {
		for _, l := range order.Lines {
			if !isCancelled(l) {
				out = append(out, l)
			}
		}
		if len(out) == 0 {
			return nil, apperror.ErrAlreadyProcessed()
		}
	}

	seen := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		line := order.FindLine(id)
		if line == nil {
			return nil, apperror.ErrInvalidOrder(fmt.Sprintf("order %s has no product %s", order.Ref, id))
		}
		if isCancelled(*line) {
			return nil, apperror.ErrItemNotCancellable(id, "cancelled")
		}
		out = append(out, *line)
	}

	for _, l := range out {
		if l.Status == domain.ItemStatusReceived {
			return nil, apperror.ErrItemNotCancellable(l.ProductID, "received")
		}
	}
	return out, nil
}

// sellerAccounts maps every seller of lines to its settlement account.
func (s *CancellationServiceImpl) sellerAccounts(ctx context.Context, lines []domain.OrderLine) (map[string]string, error) {
	accounts := make(map[string]string)
	for _, l := range lines {
		if accounts[l.SellerRef] != "" {
			continue
		}
		account := l.SellerAccountID
		if account == "" {
			resolved, err := resolveSettlementAccount(ctx, s.sellers, l.SellerRef)
			if err != nil {
				return nil, err
			}
			account = resolved
		}
		accounts[l.SellerRef] = account
	}
	return accounts, nil
}

// cancelledProducts returns the products of order refunded by earlier requests.
func (s *CancellationServiceImpl) cancelledProducts(ctx context.Context, tx pgx.Tx, order *domain.Order) (map[string]bool, error) {
	prior, err := s.requests.ListProcessedByOrder(ctx, tx, order.Ref)
	if err != nil {
		return nil, storageErr("list processed cancel requests", err)
	}
	return domain.CancelledProducts(prior), nil
}

// buildRequest prices each item with the amount the buyer actually paid for
// it. Items the buyer sold to themselves were never paid for: they are priced
// at zero and approved on the buyer's behalf.
func (s *CancellationServiceImpl) buildRequest(order *domain.Order, lines []domain.OrderLine, accounts map[string]string, reason string) *domain.CancelRequest {
	paid := paidAmounts(order.Lines, order.FinalTotal)
	now := s.now()

	cr := &domain.CancelRequest{
		ID:               uuid.New(),
		OrderRef:         order.Ref,
		BuyerAccountID:   order.BuyerAccountID,
		Reason:           reason,
		Status:           domain.CancelStatusPending,
		PriorOrderStatus: order.Status,
		CreatedAt:        now,
	}
	own := make(map[string][]domain.ItemDecision)
	for _, l := range lines {
		account := accounts[l.SellerRef]
		if !cr.RequiresSeller(l.SellerRef) {
			cr.RequiredSellers = append(cr.RequiredSellers, l.SellerRef)
		}
		item := domain.CancelItem{
			ProductID:       l.ProductID,
			SellerRef:       l.SellerRef,
			SellerAccountID: account,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			Subtotal:        l.Subtotal(),
			PaidAmount:      paid[l.ProductID],
		}
		if account == order.BuyerAccountID {
			item.PaidAmount = 0
			own[l.SellerRef] = append(own[l.SellerRef], domain.ItemDecision{ProductID: l.ProductID, Approved: true})
		}
		cr.ItemsToCancel = append(cr.ItemsToCancel, item)
	}
	for _, ref := range cr.RequiredSellers {
		if decisions, ok := own[ref]; ok {
			cr.SellerResponses = append(cr.SellerResponses, domain.SellerResponse{
				SellerRef:   ref,
				Decisions:   decisions,
				RespondedAt: now,
			})
		}
	}
	return cr
}

// checkRefundable fails when a seller no longer holds the pending earnings
// the requested items would be refunded from.
func (s *CancellationServiceImpl) checkRefundable(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest) error {
	shortfall, err := s.unrefundable(ctx, tx, cr, cr.ItemsToCancel)
	if err != nil {
		return err
	}
	for _, it := range cr.ItemsToCancel {
		if shortfall[it.SellerAccountID] {
			return apperror.ErrItemNotCancellable(it.ProductID, "settled")
		}
	}
	return nil
}

// unrefundable returns the seller accounts whose outstanding pending earnings
// for the order cannot cover the paid amount of items.
func (s *CancellationServiceImpl) unrefundable(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest, items []domain.CancelItem) (map[string]bool, error) {
	need := make(map[string]int64)
	for _, it := range items {
		if it.SellerAccountID == cr.BuyerAccountID {
			continue
		}
		need[it.SellerAccountID] += it.PaidAmount
	}

	out := make(map[string]bool)
	for account, amount := range need {
		if amount == 0 {
			continue
		}
		outstanding, _, err := s.ledger.Outstanding(ctx, tx, cr.OrderRef, account)
		if err != nil {
			return nil, err
		}
		if outstanding < amount {
			out[account] = true
		}
	}
	return out, nil
}

// RespondToCancellation records one seller's decisions. The response that
// completes the set resolves the request and moves the money in the same
// transaction.
func (s *CancellationServiceImpl) RespondToCancellation(ctx context.Context, req ports.SellerDecisionRequest) (*domain.CancelRequest, error) {
	if req.SellerRef == "" || len(req.Decisions) == 0 {
		return nil, apperror.Validation("seller_ref and decisions are required")
	}

	current, err := s.GetCancelRequest(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	order, err := s.getOrder(ctx, current.OrderRef)
	if err != nil {
		return nil, err
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	cr, err := s.requests.GetByIDForUpdate(ctx, tx, req.RequestID)
	if err != nil {
		return nil, storageErr("lock cancel request", err)
	}
	if cr == nil {
		return nil, apperror.ErrCancelRequestNotFound()
	}
	if cr.IsProcessed() {
		return nil, apperror.ErrAlreadyProcessed()
	}
	if !cr.RequiresSeller(req.SellerRef) {
		return nil, apperror.ErrSellerNotRequired()
	}
	if cr.HasResponded(req.SellerRef) {
		return nil, apperror.ErrAlreadyResponded()
	}
	if !coversExactly(cr.ItemsForSeller(req.SellerRef), req.Decisions) {
		return nil, apperror.ErrMustRespondToAllItems()
	}

	cr.SellerResponses = append(cr.SellerResponses, domain.SellerResponse{
		SellerRef:   req.SellerRef,
		Decisions:   req.Decisions,
		RespondedAt: s.now(),
	})
	var cancelled map[string]bool
	if cr.AllResponded() {
		if cancelled, err = s.cancelledProducts(ctx, tx, order); err != nil {
			return nil, err
		}
		if err := s.resolve(ctx, tx, cr, order, cancelled); err != nil {
			return nil, err
		}
	}

	if err := s.requests.Update(ctx, tx, cr); err != nil {
		return nil, storageErr("update cancel request", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	log := s.log.With().Str("order_ref", cr.OrderRef).Str("request_id", cr.ID.String()).Logger()
	log.Info().Str("seller_ref", req.SellerRef).Msg("seller responded to cancellation")
	if cr.IsProcessed() {
		s.afterResolve(ctx, log, cr, order, cancelled)
	}
	return cr, nil
}

// coversExactly reports whether decisions name each item once and nothing else.
func coversExactly(items []domain.CancelItem, decisions []domain.ItemDecision) bool {
	if len(items) != len(decisions) {
		return false
	}
	want := make(map[string]bool, len(items))
	for _, it := range items {
		want[it.ProductID] = true
	}
	for _, d := range decisions {
		if !want[d.ProductID] {
			return false
		}
		delete(want, d.ProductID)
	}
	return len(want) == 0
}

// resolve settles a fully answered request inside tx: the buyer gets back the
// paid amount of every approved item and each approving seller loses the
// matching pending earnings. Approved items whose earnings were released in
// the meantime are marked settled and not refunded.
func (s *CancellationServiceImpl) resolve(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest, order *domain.Order, cancelled map[string]bool) error {
	approved := cr.ApprovedItems()
	if len(approved) > 0 {
		accounts := []string{cr.BuyerAccountID}
		for _, it := range approved {
			accounts = append(accounts, it.SellerAccountID)
		}
		if _, err := s.ledger.LockWallets(ctx, tx, accounts, false); err != nil {
			return err
		}
		if err := s.markSettled(ctx, tx, cr, approved); err != nil {
			return err
		}
		approved = cr.ApprovedItems()
	}

	var refund int64
	perSeller := make(map[string]int64)
	approvedLines := make(map[string]int)
	sellerRefs := make(map[string]string)
	for _, it := range approved {
		if it.SellerAccountID == cr.BuyerAccountID {
			continue
		}
		refund += it.PaidAmount
		perSeller[it.SellerAccountID] += it.PaidAmount
		approvedLines[it.SellerAccountID]++
		sellerRefs[it.SellerAccountID] = it.SellerRef
	}

	if refund > 0 {
		orderRef := cr.OrderRef
		if _, err := s.ledger.Post(ctx, tx, Posting{
			AccountID:   cr.BuyerAccountID,
			Kind:        domain.EntryKindRefund,
			Op:          OpCredit,
			Amount:      refund,
			Description: fmt.Sprintf("order %s cancellation refund", orderRef),
			OrderRef:    &orderRef,
		}); err != nil {
			return err
		}

		sellers := make([]string, 0, len(perSeller))
		for account := range perSeller {
			sellers = append(sellers, account)
		}
		sort.Strings(sellers)
		buyer := cr.BuyerAccountID
		for _, account := range sellers {
			amount := perSeller[account]
			if approvedLines[account] == remainingLines(order, sellerRefs[account], cancelled) {
				outstanding, _, err := s.ledger.Outstanding(ctx, tx, orderRef, account)
				if err != nil {
					return err
				}
				amount = outstanding
			}
			if amount <= 0 {
				continue
			}
			if _, err := s.ledger.CancelPending(ctx, tx, orderRef, account, amount, &buyer); err != nil {
				return err
			}
		}
	}

	now := s.now()
	cr.Status = cr.Outcome()
	cr.RefundAmount = refund
	cr.ProcessedAt = &now
	return nil
}

// markSettled flags the approved items of every seller that can no longer
// cover their refund from pending earnings.
func (s *CancellationServiceImpl) markSettled(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest, approved []domain.CancelItem) error {
	shortfall, err := s.unrefundable(ctx, tx, cr, approved)
	if err != nil {
		return err
	}
	if len(shortfall) == 0 {
		return nil
	}
	isApproved := make(map[string]bool, len(approved))
	for _, it := range approved {
		isApproved[it.ProductID] = true
	}
	for i := range cr.ItemsToCancel {
		it := &cr.ItemsToCancel[i]
		if shortfall[it.SellerAccountID] && isApproved[it.ProductID] {
			it.Settled = true
			s.log.Warn().
				Str("order_ref", cr.OrderRef).
				Str("product_id", it.ProductID).
				Str("seller_ref", it.SellerRef).
				Msg("earnings already released, item not refunded")
		}
	}
	return nil
}

// remainingLines counts the lines of sellerRef not cancelled before.
func remainingLines(order *domain.Order, sellerRef string, cancelled map[string]bool) int {
	n := 0
	for _, l := range order.LinesForSeller(sellerRef) {
		if !cancelled[l.ProductID] {
			n++
		}
	}
	return n
}

// afterResolve updates the order and stock once the money has moved. The
// ledger is already committed, so failures here are only logged.
func (s *CancellationServiceImpl) afterResolve(ctx context.Context, log zerolog.Logger, cr *domain.CancelRequest, order *domain.Order, cancelled map[string]bool) {
	approved := cr.ApprovedItems()

	var err error
	switch {
	case cr.Status == domain.CancelStatusRejected:
		err = s.orders.SetStatus(ctx, cr.OrderRef, cr.PriorOrderStatus)
	case len(approved)+len(cancelled) == len(order.Lines):
		err = s.orders.MarkCancelled(ctx, cr.OrderRef)
	default:
		err = s.orders.SetStatus(ctx, cr.OrderRef, domain.OrderStatusPartiallyRefunded)
	}
	if err != nil {
		log.Error().Err(err).Str("status", string(cr.Status)).Msg("failed to update order after cancellation")
	}

	if len(approved) > 0 {
		changes := make([]domain.StockChange, 0, len(approved))
		for _, it := range approved {
			changes = append(changes, domain.StockChange{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		if err := s.inventory.Restore(ctx, changes); err != nil {
			log.Warn().Err(err).Msg("stock restore failed")
		}
	}

	metrics.CancellationsTotal.WithLabelValues(string(cr.Status)).Inc()
	log.Info().
		Str("status", string(cr.Status)).
		Int64("amount", cr.RefundAmount).
		Msg("cancellation resolved")
}

// GetCancelRequest returns a request by ID.
func (s *CancellationServiceImpl) GetCancelRequest(ctx context.Context, id uuid.UUID) (*domain.CancelRequest, error) {
	cr, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get cancel request", err)
	}
	if cr == nil {
		return nil, apperror.ErrCancelRequestNotFound()
	}
	return cr, nil
}

// ListPendingForSeller returns the requests still waiting on sellerRef.
func (s *CancellationServiceImpl) ListPendingForSeller(ctx context.Context, sellerRef string) ([]domain.CancelRequest, error) {
	if sellerRef == "" {
		return nil, apperror.Validation("seller_ref is required")
	}
	all, err := s.requests.ListPendingBySeller(ctx, sellerRef)
	if err != nil {
		return nil, storageErr("list pending cancel requests", err)
	}
	out := make([]domain.CancelRequest, 0, len(all))
	for _, cr := range all {
		if !cr.HasResponded(sellerRef) {
			out = append(out, cr)
		}
	}
	return out, nil
}

func (s *CancellationServiceImpl) getOrder(ctx context.Context, orderRef string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderRef)
	if err != nil {
		return nil, collaboratorErr("order service", err)
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	return order, nil
}
