package handler

import (
	"marketplace-wallet/internal/adapter/http/dto"
	"marketplace-wallet/internal/adapter/http/middleware"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"
	"marketplace-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles the actor's own wallet.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetMine handles GET /api/v1/wallets/me. The wallet is created on first read.
func (h *WalletHandler) GetMine(c *gin.Context) {
	w, err := h.walletSvc.GetOrCreate(c.Request.Context(), middleware.Actor(c).AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewWalletResponse(w))
}

// SetPin handles PUT /api/v1/wallets/me/pin.
func (h *WalletHandler) SetPin(c *gin.Context) {
	var req dto.PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.walletSvc.SetPin(c.Request.Context(), middleware.Actor(c).AccountID, req.Pin); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"pin_set": true})
}

// Withdraw handles POST /api/v1/wallets/me/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entry, err := h.walletSvc.Withdraw(c.Request.Context(), middleware.Actor(c).AccountID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}
