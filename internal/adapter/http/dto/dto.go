package dto

import (
	"time"

	"marketplace-wallet/internal/core/domain"
)

// --- Checkout DTOs ---

// CheckoutLine is one order line as sent by the checkout flow.
type CheckoutLine struct {
	ProductID string `json:"product_id" binding:"required,max=64,safe_id"`
	SellerRef string `json:"seller_ref" binding:"required,max=64,safe_id"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" binding:"gte=0"`
}

// CheckoutRequest pays an order from the caller's wallet. Lines and totals
// are optional; the order service is authoritative and a sent snapshot
// must match it.
type CheckoutRequest struct {
	OrderRef         string         `json:"order_ref" binding:"required,max=64,safe_id"`
	Lines            []CheckoutLine `json:"lines" binding:"omitempty,dive"`
	PreDiscountTotal int64          `json:"pre_discount_total" binding:"gte=0"`
	FinalTotal       int64          `json:"final_total" binding:"gte=0"`
	Pin              string         `json:"pin" binding:"omitempty,numeric,min=4,max=6"`
}

// OrderLines converts the request lines to domain order lines.
func (r *CheckoutRequest) OrderLines() []domain.OrderLine {
	lines := make([]domain.OrderLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = domain.OrderLine{
			ProductID: l.ProductID,
			SellerRef: l.SellerRef,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return lines
}

// --- Settlement DTOs ---

// ReleaseRequest confirms receipt of one item.
type ReleaseRequest struct {
	OrderRef  string `json:"order_ref" binding:"required,max=64,safe_id"`
	ProductID string `json:"product_id" binding:"required,max=64,safe_id"`
}

// ScheduleRequest schedules an auto-confirm release after delivery.
type ScheduleRequest struct {
	OrderRef    string     `json:"order_ref" binding:"required,max=64,safe_id"`
	ProductID   string     `json:"product_id" binding:"required,max=64,safe_id"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// --- Cancellation DTOs ---

// CancellationRequest is a buyer cancellation. Empty product_ids cancels every line.
type CancellationRequest struct {
	OrderRef   string   `json:"order_ref" binding:"required,max=64,safe_id"`
	ProductIDs []string `json:"product_ids" binding:"omitempty,dive,required,max=64,safe_id"`
	Reason     string   `json:"reason" binding:"max=500"`
}

// ItemDecision is a seller's verdict on one item.
type ItemDecision struct {
	ProductID string `json:"product_id" binding:"required,max=64,safe_id"`
	Approved  bool   `json:"approved"`
}

// CancellationResponseRequest is one seller's answer to a cancel request.
type CancellationResponseRequest struct {
	SellerRef string         `json:"seller_ref" binding:"required,max=64,safe_id"`
	Decisions []ItemDecision `json:"decisions" binding:"required,min=1,dive"`
}

// DomainDecisions converts the request decisions to domain decisions.
func (r *CancellationResponseRequest) DomainDecisions() []domain.ItemDecision {
	out := make([]domain.ItemDecision, len(r.Decisions))
	for i, d := range r.Decisions {
		out[i] = domain.ItemDecision{ProductID: d.ProductID, Approved: d.Approved}
	}
	return out
}

// CancellationListQuery filters pending cancel requests.
type CancellationListQuery struct {
	SellerRef string `form:"seller_ref" binding:"required,max=64,safe_id"`
}

// --- Wallet DTOs ---

// PinRequest sets or replaces the wallet security PIN.
type PinRequest struct {
	Pin string `json:"pin" binding:"required,numeric,min=4,max=6"`
}

// WithdrawRequest moves available balance out of the wallet.
type WithdrawRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// WalletResponse is the public view of a wallet.
type WalletResponse struct {
	AccountID        string     `json:"account_id"`
	AvailableBalance int64      `json:"available_balance"`
	PendingBalance   int64      `json:"pending_balance"`
	IsActive         bool       `json:"is_active"`
	HasPin           bool       `json:"has_pin"`
	LastMutationAt   *time.Time `json:"last_mutation_at,omitempty"`
	DeactivatedAt    *time.Time `json:"deactivated_at,omitempty"`
}

// NewWalletResponse maps a domain wallet to its public view.
func NewWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		AccountID:        w.AccountID,
		AvailableBalance: w.AvailableBalance,
		PendingBalance:   w.PendingBalance,
		IsActive:         w.IsActive,
		HasPin:           w.SecurityPinHash != nil,
		LastMutationAt:   w.LastMutationAt,
		DeactivatedAt:    w.DeactivatedAt,
	}
}

// --- Admin DTOs ---

// AdminAdjustmentRequest is a manual top-up or deduction.
type AdminAdjustmentRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description" binding:"max=255"`
}

// ReverseRequest reverses a completed ledger entry.
type ReverseRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// LedgerQuery filters the admin ledger listing.
type LedgerQuery struct {
	AccountID string     `form:"account" binding:"omitempty,max=64,safe_id"`
	Kind      string     `form:"kind" binding:"omitempty,max=32"`
	Status    string     `form:"status" binding:"omitempty,oneof=pending completed failed cancelled"`
	OrderRef  string     `form:"order" binding:"omitempty,max=64,safe_id"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page      int        `form:"page" binding:"omitempty,gte=1"`
	PageSize  int        `form:"page_size" binding:"omitempty,gte=1"`
}
