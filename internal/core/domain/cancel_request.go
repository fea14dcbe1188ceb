package domain

import (
	"time"

	"github.com/google/uuid"
)

// CancelStatus is the state of a multi-seller cancellation request.
type CancelStatus string

const (
	CancelStatusPending  CancelStatus = "pending"
	CancelStatusApproved CancelStatus = "approved"
	CancelStatusRejected CancelStatus = "rejected"
	CancelStatusPartial  CancelStatus = "partial"
)

// CancelItem is one order line a buyer asked to cancel.
type CancelItem struct {
	ProductID       string `json:"product_id"`
	SellerRef       string `json:"seller_ref"`
	SellerAccountID string `json:"seller_account_id"`
	Quantity        int64  `json:"quantity"`
	UnitPrice       int64  `json:"unit_price"`
	Subtotal        int64  `json:"subtotal"`    // Quantity * UnitPrice
	PaidAmount      int64  `json:"paid_amount"` // Subtotal after order-level discount
	// Settled is set at resolution when the seller's earnings for the item
	// were already released, so there is nothing left to refund from.
	Settled bool `json:"settled,omitempty"`
}

// ItemDecision is a seller's verdict for one item.
type ItemDecision struct {
	ProductID string `json:"product_id"`
	Approved  bool   `json:"approved"`
}

// SellerResponse is the single response a required seller gives.
type SellerResponse struct {
	SellerRef   string         `json:"seller_ref"`
	Decisions   []ItemDecision `json:"decisions"`
	RespondedAt time.Time      `json:"responded_at"`
}

// CancelRequest tracks cancellation of some or all items of a paid order.
type CancelRequest struct {
	ID               uuid.UUID        `json:"id"`
	OrderRef         string           `json:"order_ref"`
	BuyerAccountID   string           `json:"buyer_account_id"`
	Reason           string           `json:"reason"`
	ItemsToCancel    []CancelItem     `json:"items_to_cancel"`
	RequiredSellers  []string         `json:"required_sellers"`
	SellerResponses  []SellerResponse `json:"seller_responses"`
	Status           CancelStatus     `json:"status"`
	PriorOrderStatus string           `json:"prior_order_status"`
	RefundAmount     int64            `json:"refund_amount"`
	CreatedAt        time.Time        `json:"created_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
}

// IsProcessed returns true once the request has been resolved.
func (r *CancelRequest) IsProcessed() bool {
	return r.ProcessedAt != nil || r.Status != CancelStatusPending
}

// RequiresSeller reports whether sellerRef must respond.
func (r *CancelRequest) RequiresSeller(sellerRef string) bool {
	for _, s := range r.RequiredSellers {
		if s == sellerRef {
			return true
		}
	}
	return false
}

// HasResponded reports whether sellerRef already responded.
func (r *CancelRequest) HasResponded(sellerRef string) bool {
	for _, resp := range r.SellerResponses {
		if resp.SellerRef == sellerRef {
			return true
		}
	}
	return false
}

// AllResponded is true when every required seller has responded.
func (r *CancelRequest) AllResponded() bool {
	for _, s := range r.RequiredSellers {
		if !r.HasResponded(s) {
			return false
		}
	}
	return true
}

// ItemsForSeller returns the requested items sold by sellerRef.
func (r *CancelRequest) ItemsForSeller(sellerRef string) []CancelItem {
	var out []CancelItem
	for _, it := range r.ItemsToCancel {
		if it.SellerRef == sellerRef {
			out = append(out, it)
		}
	}
	return out
}

// ApprovedItems returns the approved items that can still be refunded.
func (r *CancelRequest) ApprovedItems() []CancelItem {
	approved := make(map[string]bool)
	for _, resp := range r.SellerResponses {
		for _, d := range resp.Decisions {
			if d.Approved {
				approved[resp.SellerRef+"/"+d.ProductID] = true
			}
		}
	}
	var out []CancelItem
	for _, it := range r.ItemsToCancel {
		if approved[it.SellerRef+"/"+it.ProductID] && !it.Settled {
			out = append(out, it)
		}
	}
	return out
}

// Outcome derives the resolution status from the collected responses.
func (r *CancelRequest) Outcome() CancelStatus {
	approved := len(r.ApprovedItems())
	switch {
	case approved == len(r.ItemsToCancel):
		return CancelStatusApproved
	case approved == 0:
		return CancelStatusRejected
	default:
		return CancelStatusPartial
	}
}

// CancelledProducts returns the products refunded by processed requests.
func CancelledProducts(requests []CancelRequest) map[string]bool {
	out := make(map[string]bool)
	for i := range requests {
		if !requests[i].IsProcessed() {
			continue
		}
		for _, it := range requests[i].ApprovedItems() {
			out[it.ProductID] = true
		}
	}
	return out
}
