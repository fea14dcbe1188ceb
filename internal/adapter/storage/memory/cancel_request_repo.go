package memory

import (
	"context"
	"fmt"
	"sort"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CancelRequestRepo implements ports.CancelRequestRepository.
type CancelRequestRepo struct {
	store *Store
}

// NewCancelRequestRepo creates a new CancelRequestRepo.
func NewCancelRequestRepo(store *Store) *CancelRequestRepo {
	return &CancelRequestRepo{store: store}
}

// Create rejects a second pending request for the same order.
func (r *CancelRequestRepo) Create(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest) error {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return err
	}
	if cr.Status == domain.CancelStatusPending && st.pendingCancelRequest(cr.OrderRef) != nil {
		return apperror.ErrCancelRequestPending()
	}
	st.cancelRequests[cr.ID] = cloneCancelRequest(cr)
	return nil
}

func (r *CancelRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CancelRequest, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	return st.cancelRequest(id), nil
}

func (r *CancelRequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.CancelRequest, error) {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return nil, err
	}
	return st.cancelRequest(id), nil
}

func (r *CancelRequestRepo) GetPendingByOrder(ctx context.Context, tx pgx.Tx, orderRef string) (*domain.CancelRequest, error) {
	st, err := r.store.read(ctx, tx)
	if err != nil {
		return nil, err
	}
	return st.pendingCancelRequest(orderRef), nil
}

func (r *CancelRequestRepo) Update(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest) error {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return err
	}
	cur, ok := st.cancelRequests[cr.ID]
	if !ok {
		return fmt.Errorf("cancel request not found: %s", cr.ID)
	}
	cur.ItemsToCancel = cr.ItemsToCancel
	cur.SellerResponses = cr.SellerResponses
	cur.Status = cr.Status
	cur.RefundAmount = cr.RefundAmount
	cur.ProcessedAt = cr.ProcessedAt
	st.cancelRequests[cr.ID] = cloneCancelRequest(&cur)
	return nil
}

// ListPendingBySeller returns pending requests naming sellerRef, oldest first.
func (r *CancelRequestRepo) ListPendingBySeller(ctx context.Context, sellerRef string) ([]domain.CancelRequest, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	var out []domain.CancelRequest
	for _, cr := range st.cancelRequests {
		if cr.Status == domain.CancelStatusPending && cr.RequiresSeller(sellerRef) {
			out = append(out, cloneCancelRequest(&cr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListProcessedByOrder returns the resolved requests of orderRef, oldest first.
func (r *CancelRequestRepo) ListProcessedByOrder(ctx context.Context, tx pgx.Tx, orderRef string) ([]domain.CancelRequest, error) {
	st, err := r.store.read(ctx, tx)
	if err != nil {
		return nil, err
	}
	var out []domain.CancelRequest
	for _, cr := range st.cancelRequests {
		if cr.OrderRef == orderRef && cr.IsProcessed() {
			out = append(out, cloneCancelRequest(&cr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (st *state) cancelRequest(id uuid.UUID) *domain.CancelRequest {
	cr, ok := st.cancelRequests[id]
	if !ok {
		return nil
	}
	cp := cloneCancelRequest(&cr)
	return &cp
}

func (st *state) pendingCancelRequest(orderRef string) *domain.CancelRequest {
	for _, cr := range st.cancelRequests {
		if cr.OrderRef == orderRef && cr.Status == domain.CancelStatusPending {
			cp := cloneCancelRequest(&cr)
			return &cp
		}
	}
	return nil
}

// cloneCancelRequest copies the slices so callers never share backing arrays
// with stored state.
func cloneCancelRequest(cr *domain.CancelRequest) domain.CancelRequest {
	cp := *cr
	cp.ItemsToCancel = append([]domain.CancelItem(nil), cr.ItemsToCancel...)
	cp.RequiredSellers = append([]string(nil), cr.RequiredSellers...)
	cp.SellerResponses = make([]domain.SellerResponse, len(cr.SellerResponses))
	for i, resp := range cr.SellerResponses {
		resp.Decisions = append([]domain.ItemDecision(nil), resp.Decisions...)
		cp.SellerResponses[i] = resp
	}
	return cp
}

