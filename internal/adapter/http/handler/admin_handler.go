package handler

import (
	"context"
	"math"

	"marketplace-wallet/internal/adapter/http/dto"
	"marketplace-wallet/internal/adapter/http/middleware"
	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"
	"marketplace-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles admin wallet adjustments and ledger tooling.
type AdminHandler struct {
	walletSvc   ports.WalletService
	reversalSvc ports.ReversalService
	ledgerSvc   ports.LedgerQueryService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(walletSvc ports.WalletService, reversalSvc ports.ReversalService, ledgerSvc ports.LedgerQueryService) *AdminHandler {
	return &AdminHandler{walletSvc: walletSvc, reversalSvc: reversalSvc, ledgerSvc: ledgerSvc}
}

// TopUp handles POST /api/v1/admin/wallets/:account/topup.
func (h *AdminHandler) TopUp(c *gin.Context) {
	h.adjust(c, h.walletSvc.TopUp)
}

// Deduct handles POST /api/v1/admin/wallets/:account/deduct.
func (h *AdminHandler) Deduct(c *gin.Context) {
	h.adjust(c, h.walletSvc.AdminDeduct)
}

func (h *AdminHandler) adjust(c *gin.Context, apply func(ctx context.Context, req ports.AdminAdjustment) (*domain.LedgerEntry, error)) {
	var req dto.AdminAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	entry, err := apply(c.Request.Context(), ports.AdminAdjustment{
		AccountID:   c.Param("account"),
		Amount:      req.Amount,
		Description: req.Description,
		AdminRef:    middleware.Actor(c).AccountID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}

// Deactivate handles POST /api/v1/admin/wallets/:account/deactivate.
func (h *AdminHandler) Deactivate(c *gin.Context) {
	w, err := h.walletSvc.Deactivate(c.Request.Context(), c.Param("account"), middleware.Actor(c).AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewWalletResponse(w))
}

// Reverse handles POST /api/v1/admin/ledger/:id/reverse. The response lists
// every reversal entry written, the requested one first.
func (h *AdminHandler) Reverse(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.ReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	entries, err := h.reversalSvc.Reverse(c.Request.Context(), id, req.Reason, middleware.Actor(c).AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, entries)
}

// ListLedger handles GET /api/v1/admin/ledger.
func (h *AdminHandler) ListLedger(c *gin.Context) {
	var q dto.LedgerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.LedgerListParams{
		From:     q.From,
		To:       q.To,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.AccountID != "" {
		params.AccountID = &q.AccountID
	}
	if q.Kind != "" {
		kind := domain.EntryKind(q.Kind)
		params.Kind = &kind
	}
	if q.Status != "" {
		status := domain.EntryStatus(q.Status)
		params.Status = &status
	}
	if q.OrderRef != "" {
		params.OrderRef = &q.OrderRef
	}

	entries, total, err := h.ledgerSvc.ListEntries(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	page, pageSize := effectivePaging(q.Page, q.PageSize)
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}

	response.OK(c, response.Paginated{
		Items:      entries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

// GetChain handles GET /api/v1/admin/ledger/:id/chain.
func (h *AdminHandler) GetChain(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	chain, err := h.ledgerSvc.GetReversalChain(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, chain)
}

// effectivePaging mirrors the ledger query defaults for the response envelope.
func effectivePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
