package handler

import (
	"marketplace-wallet/internal/adapter/http/dto"
	"marketplace-wallet/internal/adapter/http/middleware"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"
	"marketplace-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// CheckoutHandler handles the order payment endpoint.
type CheckoutHandler struct {
	transferSvc ports.TransferService
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(transferSvc ports.TransferService) *CheckoutHandler {
	return &CheckoutHandler{transferSvc: transferSvc}
}

// Transfer handles POST /api/v1/checkout/transfers. The buyer is always the
// authenticated actor. A replayed order answers 200 with the original result.
func (h *CheckoutHandler) Transfer(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.ExecuteTransfer(c.Request.Context(), ports.TransferRequest{
		OrderRef:         req.OrderRef,
		BuyerAccountID:   middleware.Actor(c).AccountID,
		Lines:            req.OrderLines(),
		PreDiscountTotal: req.PreDiscountTotal,
		FinalTotal:       req.FinalTotal,
		Pin:              req.Pin,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Replayed {
		response.OK(c, result)
		return
	}
	response.Created(c, result)
}
