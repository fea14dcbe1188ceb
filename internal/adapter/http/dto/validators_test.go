package dto

import (
	"testing"

	"marketplace-wallet/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := ReleaseRequest{
		OrderRef:  "  ORD-1  ",
		ProductID: " p1 ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "ORD-1", req.OrderRef)
	assert.Equal(t, "p1", req.ProductID)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := ReverseRequest{Reason: "duplicate <script>alert('x')</script> top-up"}
	SanitizeStruct(&req)

	assert.Contains(t, req.Reason, "&lt;script&gt;")
	assert.NotContains(t, req.Reason, "<script>")
}

func TestSanitizeStruct_HandlesStringSlice(t *testing.T) {
	req := CancellationRequest{
		OrderRef:   "ORD-1",
		ProductIDs: []string{" p1", "p2 "},
		Reason:     "  wrong size ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, []string{"p1", "p2"}, req.ProductIDs)
	assert.Equal(t, "wrong size", req.Reason)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"ORD-001",
		"seller_002",
		"a.b.c",
		"simple123",
		"ABC-def_GHI.123",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"ord 001",     // space
		"ord<001>",    // angle brackets
		"ord;DROP",    // semicolon
		"",            // empty
		"hello world", // space
		"ord\n001",    // newline
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestCheckoutRequest_Validation(t *testing.T) {
	valid := func() CheckoutRequest {
		return CheckoutRequest{
			OrderRef:         "ORD-1",
			Lines:            []CheckoutLine{{ProductID: "p1", SellerRef: "A", Quantity: 1, UnitPrice: 50}},
			PreDiscountTotal: 50,
			FinalTotal:       40,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *CheckoutRequest)
		wantErr bool
	}{
		{"valid", func(r *CheckoutRequest) {}, false},
		{"valid with pin", func(r *CheckoutRequest) { r.Pin = "1234" }, false},
		{"missing order", func(r *CheckoutRequest) { r.OrderRef = "" }, true},
		{"unsafe order", func(r *CheckoutRequest) { r.OrderRef = "ORD 1" }, true},
		{"order ref only", func(r *CheckoutRequest) { r.Lines = nil; r.PreDiscountTotal = 0; r.FinalTotal = 0 }, false},
		{"zero quantity", func(r *CheckoutRequest) { r.Lines[0].Quantity = 0 }, true},
		{"negative final", func(r *CheckoutRequest) { r.FinalTotal = -1 }, true},
		{"alpha pin", func(r *CheckoutRequest) { r.Pin = "abcd" }, true},
		{"short pin", func(r *CheckoutRequest) { r.Pin = "12" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := binding.Validator.ValidateStruct(&req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckoutRequest_OrderLines(t *testing.T) {
	req := CheckoutRequest{Lines: []CheckoutLine{
		{ProductID: "p1", SellerRef: "A", Quantity: 2, UnitPrice: 25},
		{ProductID: "p2", SellerRef: "B", Quantity: 1, UnitPrice: 30},
	}}

	lines := req.OrderLines()
	require.Len(t, lines, 2)
	assert.Equal(t, int64(50), lines[0].Subtotal())
	assert.Equal(t, "B", lines[1].SellerRef)
}

func TestNewWalletResponse_HidesPinHash(t *testing.T) {
	hash := "argon2id$..."
	w := &domain.Wallet{AccountID: "buyer-1", AvailableBalance: 100, IsActive: true, SecurityPinHash: &hash}

	resp := NewWalletResponse(w)
	assert.True(t, resp.HasPin)
	assert.Equal(t, int64(100), resp.AvailableBalance)
}
