package handler

import (
	"time"

	"marketplace-wallet/internal/adapter/http/dto"
	"marketplace-wallet/internal/adapter/http/middleware"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"
	"marketplace-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// SettlementHandler handles pending-to-available release endpoints.
type SettlementHandler struct {
	settlementSvc ports.SettlementService
	orders        ports.OrderService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc ports.SettlementService, orders ports.OrderService) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, orders: orders}
}

// Release handles POST /api/v1/settlements/release. Only the order's buyer
// (or an admin) confirms receipt.
func (h *SettlementHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	actor := middleware.Actor(c)
	if !actor.IsAdmin() {
		order, err := h.orders.GetOrder(c.Request.Context(), req.OrderRef)
		if err != nil {
			response.Error(c, apperror.ErrCollaboratorFailure("order service", err))
			return
		}
		if order == nil {
			response.Error(c, apperror.ErrOrderNotFound())
			return
		}
		if order.BuyerAccountID != actor.AccountID {
			response.Error(c, apperror.ErrForbidden())
			return
		}
	}

	result, err := h.settlementSvc.ReleaseForItem(c.Request.Context(), req.OrderRef, req.ProductID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// Schedule handles POST /api/v1/settlements/schedule (admin). A missing
// delivered_at means delivery happened now.
func (h *SettlementHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	deliveredAt := time.Now().UTC()
	if req.DeliveredAt != nil {
		deliveredAt = req.DeliveredAt.UTC()
	}

	task, err := h.settlementSvc.ScheduleAutoConfirm(c.Request.Context(), req.OrderRef, req.ProductID, deliveredAt)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, task)
}
