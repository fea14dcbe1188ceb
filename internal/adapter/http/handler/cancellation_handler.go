package handler

import (
	"context"

	"marketplace-wallet/internal/adapter/http/dto"
	"marketplace-wallet/internal/adapter/http/middleware"
	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"
	"marketplace-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// CancellationHandler handles the buyer cancellation workflow.
type CancellationHandler struct {
	cancelSvc ports.CancellationService
	sellers   ports.SellerDirectory
}

// NewCancellationHandler creates a new CancellationHandler.
func NewCancellationHandler(cancelSvc ports.CancellationService, sellers ports.SellerDirectory) *CancellationHandler {
	return &CancellationHandler{cancelSvc: cancelSvc, sellers: sellers}
}

// Create handles POST /api/v1/cancellations. An unpaid order is cancelled on
// the spot (200); a paid one opens a request awaiting sellers (201).
func (h *CancellationHandler) Create(c *gin.Context) {
	var req dto.CancellationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	outcome, err := h.cancelSvc.RequestCancellation(c.Request.Context(), ports.CancellationRequest{
		OrderRef:       req.OrderRef,
		BuyerAccountID: middleware.Actor(c).AccountID,
		ProductIDs:     req.ProductIDs,
		Reason:         req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if outcome.Immediate {
		response.OK(c, outcome)
		return
	}
	response.Created(c, outcome)
}

// Respond handles POST /api/v1/cancellations/:id/responses.
func (h *CancellationHandler) Respond(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.CancellationResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if err := authorizeSeller(c.Request.Context(), h.sellers, middleware.Actor(c), req.SellerRef); err != nil {
		response.Error(c, err)
		return
	}

	cr, err := h.cancelSvc.RespondToCancellation(c.Request.Context(), ports.SellerDecisionRequest{
		RequestID: id,
		SellerRef: req.SellerRef,
		Decisions: req.DomainDecisions(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, cr)
}

// Get handles GET /api/v1/cancellations/:id. Visible to the buyer, the
// required sellers and admins.
func (h *CancellationHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	cr, err := h.cancelSvc.GetCancelRequest(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	if !h.canView(c.Request.Context(), middleware.Actor(c), cr) {
		response.Error(c, apperror.ErrForbidden())
		return
	}

	response.OK(c, cr)
}

func (h *CancellationHandler) canView(ctx context.Context, actor *ports.TokenClaims, cr *domain.CancelRequest) bool {
	if actor.IsAdmin() || cr.BuyerAccountID == actor.AccountID {
		return true
	}
	for _, ref := range cr.RequiredSellers {
		if authorizeSeller(ctx, h.sellers, actor, ref) == nil {
			return true
		}
	}
	return false
}

// ListPending handles GET /api/v1/cancellations?seller_ref=.
func (h *CancellationHandler) ListPending(c *gin.Context) {
	var q dto.CancellationListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := authorizeSeller(c.Request.Context(), h.sellers, middleware.Actor(c), q.SellerRef); err != nil {
		response.Error(c, err)
		return
	}

	requests, err := h.cancelSvc.ListPendingForSeller(c.Request.Context(), q.SellerRef)
	if err != nil {
		response.Error(c, err)
		return
	}
	if requests == nil {
		requests = []domain.CancelRequest{}
	}

	response.OK(c, requests)
}
