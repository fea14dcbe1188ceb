package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-wallet/internal/adapter/http/dto"
	"marketplace-wallet/internal/adapter/http/middleware"
	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/internal/core/ports/mocks"
	"marketplace-wallet/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestContext builds a gin context as JWTAuth would leave it.
func newTestContext(method, path string, body any, accountID, role string) (*gin.Context, *httptest.ResponseRecorder) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		c.Set(middleware.CtxAccountID, accountID)
	}
	if role != "" {
		c.Set(middleware.CtxRole, role)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "body: %s", w.Body.String())
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

func checkoutBody() dto.CheckoutRequest {
	return dto.CheckoutRequest{
		OrderRef: "ORD-1",
		Lines: []dto.CheckoutLine{
			{ProductID: "p1", SellerRef: "A", Quantity: 1, UnitPrice: 50},
			{ProductID: "p2", SellerRef: "B", Quantity: 1, UnitPrice: 30},
		},
		PreDiscountTotal: 80,
		FinalTotal:       64,
	}
}

// --- Checkout Handler Tests ---

func TestCheckoutTransfer_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewCheckoutHandler(mockTransfer)

	mockTransfer.EXPECT().ExecuteTransfer(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
			assert.Equal(t, "buyer-1", req.BuyerAccountID)
			assert.Equal(t, "ORD-1", req.OrderRef)
			require.Len(t, req.Lines, 2)
			assert.Equal(t, int64(64), req.FinalTotal)
			return &ports.TransferResult{OrderRef: "ORD-1", BuyerAccountID: "buyer-1", Debited: 64}, nil
		},
	)

	c, w := newTestContext(http.MethodPost, "/api/v1/checkout/transfers", checkoutBody(), "buyer-1", ports.RoleUser)
	h.Transfer(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(64), data["debited"])
}

func TestCheckoutTransfer_ReplayReturnsOK(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewCheckoutHandler(mockTransfer)

	mockTransfer.EXPECT().ExecuteTransfer(gomock.Any(), gomock.Any()).
		Return(&ports.TransferResult{OrderRef: "ORD-1", Debited: 64, Replayed: true}, nil)

	c, w := newTestContext(http.MethodPost, "/", checkoutBody(), "buyer-1", ports.RoleUser)
	h.Transfer(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["replayed"])
}

func TestCheckoutTransfer_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewCheckoutHandler(mockTransfer)

	// Empty body => binding error
	c, w := newTestContext(http.MethodPost, "/", "{}", "buyer-1", ports.RoleUser)
	h.Transfer(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, w))
}

func TestCheckoutTransfer_InsufficientBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransfer := mocks.NewMockTransferService(ctrl)
	h := NewCheckoutHandler(mockTransfer)

	mockTransfer.EXPECT().ExecuteTransfer(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInsufficientBalance().WithBalances(10, 0))

	c, w := newTestContext(http.MethodPost, "/", checkoutBody(), "buyer-1", ports.RoleUser)
	h.Transfer(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, apperror.CodeInsufficientBalance, errorCode(t, w))
	assert.Contains(t, w.Body.String(), `"available_balance":10`)
}

// --- Settlement Handler Tests ---

func TestSettlementRelease_BuyerConfirms(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSettlement := mocks.NewMockSettlementService(ctrl)
	mockOrders := mocks.NewMockOrderService(ctrl)
	h := NewSettlementHandler(mockSettlement, mockOrders)

	mockOrders.EXPECT().GetOrder(gomock.Any(), "ORD-1").Return(&domain.Order{Ref: "ORD-1", BuyerAccountID: "buyer-1"}, nil)
	mockSettlement.EXPECT().ReleaseForItem(gomock.Any(), "ORD-1", "p1").
		Return(&ports.ReleaseResult{OrderRef: "ORD-1", SellerRef: "A", Released: true, Amount: 40}, nil)

	c, w := newTestContext(http.MethodPost, "/", dto.ReleaseRequest{OrderRef: "ORD-1", ProductID: "p1"}, "buyer-1", ports.RoleUser)
	h.Release(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["released"])
	assert.Equal(t, float64(40), data["amount"])
}

func TestSettlementRelease_Authorization(t *testing.T) {
	tests := []struct {
		name     string
		order    *domain.Order
		orderErr error
		wantCode int
		wantErr  string
	}{
		{"other buyer", &domain.Order{Ref: "ORD-1", BuyerAccountID: "buyer-2"}, nil, http.StatusForbidden, apperror.CodeForbidden},
		{"unknown order", nil, nil, http.StatusNotFound, apperror.CodeOrderNotFound},
		{"order service down", nil, errors.New("connection refused"), http.StatusBadGateway, apperror.CodeCollaboratorFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockSettlement := mocks.NewMockSettlementService(ctrl)
			mockOrders := mocks.NewMockOrderService(ctrl)
			h := NewSettlementHandler(mockSettlement, mockOrders)

			mockOrders.EXPECT().GetOrder(gomock.Any(), "ORD-1").Return(tt.order, tt.orderErr)

			c, w := newTestContext(http.MethodPost, "/", dto.ReleaseRequest{OrderRef: "ORD-1", ProductID: "p1"}, "buyer-1", ports.RoleUser)
			h.Release(c)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, w))
		})
	}
}

func TestSettlementRelease_AdminSkipsOwnershipCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSettlement := mocks.NewMockSettlementService(ctrl)
	mockOrders := mocks.NewMockOrderService(ctrl)
	h := NewSettlementHandler(mockSettlement, mockOrders)

	mockSettlement.EXPECT().ReleaseForItem(gomock.Any(), "ORD-1", "p1").
		Return(&ports.ReleaseResult{OrderRef: "ORD-1", Reason: "nothing_outstanding"}, nil)

	c, w := newTestContext(http.MethodPost, "/", dto.ReleaseRequest{OrderRef: "ORD-1", ProductID: "p1"}, "ops-1", ports.RoleAdmin)
	h.Release(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nothing_outstanding", decodeData(t, w)["reason"])
}

func TestSettlementSchedule_DefaultsDeliveredAtToNow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSettlement := mocks.NewMockSettlementService(ctrl)
	h := NewSettlementHandler(mockSettlement, mocks.NewMockOrderService(ctrl))

	before := time.Now().UTC()
	mockSettlement.EXPECT().ScheduleAutoConfirm(gomock.Any(), "ORD-1", "p1", gomock.Any()).DoAndReturn(
		func(_ context.Context, orderRef, productID string, deliveredAt time.Time) (*domain.ReleaseTask, error) {
			assert.False(t, deliveredAt.Before(before))
			return &domain.ReleaseTask{ID: uuid.New(), OrderRef: orderRef, ProductID: productID, DueAt: deliveredAt.Add(time.Hour)}, nil
		},
	)

	c, w := newTestContext(http.MethodPost, "/", dto.ScheduleRequest{OrderRef: "ORD-1", ProductID: "p1"}, "ops-1", ports.RoleAdmin)
	h.Schedule(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ORD-1", decodeData(t, w)["order_ref"])
}

// --- Cancellation Handler Tests ---

func TestCancellationCreate(t *testing.T) {
	tests := []struct {
		name      string
		immediate bool
		wantCode  int
	}{
		{"unpaid order cancelled at once", true, http.StatusOK},
		{"paid order awaits sellers", false, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockCancel := mocks.NewMockCancellationService(ctrl)
			h := NewCancellationHandler(mockCancel, mocks.NewMockSellerDirectory(ctrl))

			mockCancel.EXPECT().RequestCancellation(gomock.Any(), ports.CancellationRequest{
				OrderRef:       "ORD-1",
				BuyerAccountID: "buyer-1",
				ProductIDs:     []string{"p1"},
				Reason:         "wrong size",
			}).Return(&ports.CancellationOutcome{Immediate: tt.immediate, OrderRef: "ORD-1"}, nil)

			c, w := newTestContext(http.MethodPost, "/", dto.CancellationRequest{
				OrderRef:   "ORD-1",
				ProductIDs: []string{"p1"},
				Reason:     " wrong size ",
			}, "buyer-1", ports.RoleUser)
			h.Create(c)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestCancellationRespond_SellerAuthorized(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCancel := mocks.NewMockCancellationService(ctrl)
	mockSellers := mocks.NewMockSellerDirectory(ctrl)
	h := NewCancellationHandler(mockCancel, mockSellers)

	id := uuid.New()
	mockSellers.EXPECT().ResolveSettlementAccount(gomock.Any(), "A").Return("seller-A", nil)
	mockCancel.EXPECT().RespondToCancellation(gomock.Any(), ports.SellerDecisionRequest{
		RequestID: id,
		SellerRef: "A",
		Decisions: []domain.ItemDecision{{ProductID: "p1", Approved: true}},
	}).Return(&domain.CancelRequest{ID: id, Status: domain.CancelStatusPending}, nil)

	c, w := newTestContext(http.MethodPost, "/", dto.CancellationResponseRequest{
		SellerRef: "A",
		Decisions: []dto.ItemDecision{{ProductID: "p1", Approved: true}},
	}, "seller-A", ports.RoleUser)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Respond(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), decodeData(t, w)["id"])
}

func TestCancellationRespond_Rejections(t *testing.T) {
	body := dto.CancellationResponseRequest{
		SellerRef: "A",
		Decisions: []dto.ItemDecision{{ProductID: "p1", Approved: false}},
	}

	tests := []struct {
		name     string
		id       string
		account  string
		resolve  func(m *mocks.MockSellerDirectory)
		wantCode int
		wantErr  string
	}{
		{
			name:     "bad id",
			id:       "not-a-uuid",
			account:  "seller-A",
			resolve:  func(m *mocks.MockSellerDirectory) {},
			wantCode: http.StatusBadRequest,
			wantErr:  apperror.CodeValidation,
		},
		{
			name:    "someone else's store",
			id:      uuid.NewString(),
			account: "seller-B",
			resolve: func(m *mocks.MockSellerDirectory) {
				m.EXPECT().ResolveSettlementAccount(gomock.Any(), "A").Return("seller-A", nil)
			},
			wantCode: http.StatusForbidden,
			wantErr:  apperror.CodeForbidden,
		},
		{
			name:    "unknown seller",
			id:      uuid.NewString(),
			account: "seller-A",
			resolve: func(m *mocks.MockSellerDirectory) {
				m.EXPECT().ResolveSettlementAccount(gomock.Any(), "A").Return("", apperror.ErrSellerProfileNotFound("A"))
			},
			wantCode: http.StatusForbidden,
			wantErr:  apperror.CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockSellers := mocks.NewMockSellerDirectory(ctrl)
			tt.resolve(mockSellers)
			h := NewCancellationHandler(mocks.NewMockCancellationService(ctrl), mockSellers)

			c, w := newTestContext(http.MethodPost, "/", body, tt.account, ports.RoleUser)
			c.Params = gin.Params{{Key: "id", Value: tt.id}}
			h.Respond(c)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, w))
		})
	}
}

func TestCancellationGet_Visibility(t *testing.T) {
	id := uuid.New()
	cr := &domain.CancelRequest{ID: id, OrderRef: "ORD-1", BuyerAccountID: "buyer-1", RequiredSellers: []string{"A", "B"}}

	tests := []struct {
		name     string
		account  string
		role     string
		resolve  func(m *mocks.MockSellerDirectory)
		wantCode int
	}{
		{"buyer", "buyer-1", ports.RoleUser, func(m *mocks.MockSellerDirectory) {}, http.StatusOK},
		{"admin", "ops-1", ports.RoleAdmin, func(m *mocks.MockSellerDirectory) {}, http.StatusOK},
		{"required seller", "seller-B", ports.RoleUser, func(m *mocks.MockSellerDirectory) {
			m.EXPECT().ResolveSettlementAccount(gomock.Any(), "A").Return("seller-A", nil)
			m.EXPECT().ResolveSettlementAccount(gomock.Any(), "B").Return("seller-B", nil)
		}, http.StatusOK},
		{"stranger", "buyer-9", ports.RoleUser, func(m *mocks.MockSellerDirectory) {
			m.EXPECT().ResolveSettlementAccount(gomock.Any(), gomock.Any()).Return("seller-X", nil).Times(2)
		}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockCancel := mocks.NewMockCancellationService(ctrl)
			mockSellers := mocks.NewMockSellerDirectory(ctrl)
			tt.resolve(mockSellers)
			h := NewCancellationHandler(mockCancel, mockSellers)

			mockCancel.EXPECT().GetCancelRequest(gomock.Any(), id).Return(cr, nil)

			c, w := newTestContext(http.MethodGet, "/", nil, tt.account, tt.role)
			c.Params = gin.Params{{Key: "id", Value: id.String()}}
			h.Get(c)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestCancellationListPending_EmptyIsArray(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCancel := mocks.NewMockCancellationService(ctrl)
	mockSellers := mocks.NewMockSellerDirectory(ctrl)
	h := NewCancellationHandler(mockCancel, mockSellers)

	mockSellers.EXPECT().ResolveSettlementAccount(gomock.Any(), "A").Return("seller-A", nil)
	mockCancel.EXPECT().ListPendingForSeller(gomock.Any(), "A").Return(nil, nil)

	c, w := newTestContext(http.MethodGet, "/api/v1/cancellations?seller_ref=A", nil, "seller-A", ports.RoleUser)
	h.ListPending(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestCancellationListPending_MissingSellerRef(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewCancellationHandler(mocks.NewMockCancellationService(ctrl), mocks.NewMockSellerDirectory(ctrl))

	c, w := newTestContext(http.MethodGet, "/api/v1/cancellations", nil, "seller-A", ports.RoleUser)
	h.ListPending(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Wallet Handler Tests ---

func TestWalletGetMine(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	hash := "argon2id$"
	mockWallet.EXPECT().GetOrCreate(gomock.Any(), "buyer-1").Return(&domain.Wallet{
		AccountID:        "buyer-1",
		AvailableBalance: 100,
		PendingBalance:   20,
		IsActive:         true,
		SecurityPinHash:  &hash,
	}, nil)

	c, w := newTestContext(http.MethodGet, "/api/v1/wallets/me", nil, "buyer-1", ports.RoleUser)
	h.GetMine(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(100), data["available_balance"])
	assert.Equal(t, float64(20), data["pending_balance"])
	assert.Equal(t, true, data["has_pin"])
	assert.NotContains(t, w.Body.String(), "argon2id")
}

func TestWalletSetPin(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	mockWallet.EXPECT().SetPin(gomock.Any(), "buyer-1", "123456").Return(nil)

	c, w := newTestContext(http.MethodPut, "/", dto.PinRequest{Pin: "123456"}, "buyer-1", ports.RoleUser)
	h.SetPin(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWalletSetPin_RejectsNonNumeric(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockWalletService(ctrl))

	c, w := newTestContext(http.MethodPut, "/", dto.PinRequest{Pin: "12ab"}, "buyer-1", ports.RoleUser)
	h.SetPin(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletWithdraw(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(mockWallet)

	mockWallet.EXPECT().Withdraw(gomock.Any(), "seller-A", int64(30)).
		Return(&domain.LedgerEntry{ID: uuid.New(), AccountID: "seller-A", Kind: domain.EntryKindWithdrawal, Amount: -30}, nil)

	c, w := newTestContext(http.MethodPost, "/", dto.WithdrawRequest{Amount: 30}, "seller-A", ports.RoleUser)
	h.Withdraw(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(-30), decodeData(t, w)["amount"])
}

// --- Admin Handler Tests ---

func TestAdminTopUp_UsesActorAsAdminRef(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewAdminHandler(mockWallet, mocks.NewMockReversalService(ctrl), mocks.NewMockLedgerQueryService(ctrl))

	mockWallet.EXPECT().TopUp(gomock.Any(), ports.AdminAdjustment{
		AccountID:   "buyer-1",
		Amount:      500,
		Description: "goodwill credit",
		AdminRef:    "ops-1",
	}).Return(&domain.LedgerEntry{ID: uuid.New(), Kind: domain.EntryKindTopUp, Amount: 500}, nil)

	c, w := newTestContext(http.MethodPost, "/", dto.AdminAdjustmentRequest{Amount: 500, Description: "goodwill credit"}, "ops-1", ports.RoleAdmin)
	c.Params = gin.Params{{Key: "account", Value: "buyer-1"}}
	h.TopUp(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAdminDeduct_InsufficientBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewAdminHandler(mockWallet, mocks.NewMockReversalService(ctrl), mocks.NewMockLedgerQueryService(ctrl))

	mockWallet.EXPECT().AdminDeduct(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientBalance())

	c, w := newTestContext(http.MethodPost, "/", dto.AdminAdjustmentRequest{Amount: 500}, "ops-1", ports.RoleAdmin)
	c.Params = gin.Params{{Key: "account", Value: "buyer-1"}}
	h.Deduct(c)

	assert.Equal(t, apperror.CodeInsufficientBalance, errorCode(t, w))
}

func TestAdminDeactivate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWallet := mocks.NewMockWalletService(ctrl)
	h := NewAdminHandler(mockWallet, mocks.NewMockReversalService(ctrl), mocks.NewMockLedgerQueryService(ctrl))

	now := time.Now().UTC()
	mockWallet.EXPECT().Deactivate(gomock.Any(), "buyer-1", "ops-1").
		Return(&domain.Wallet{AccountID: "buyer-1", IsActive: false, DeactivatedAt: &now}, nil)

	c, w := newTestContext(http.MethodPost, "/", nil, "ops-1", ports.RoleAdmin)
	c.Params = gin.Params{{Key: "account", Value: "buyer-1"}}
	h.Deactivate(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeData(t, w)["is_active"])
}

func TestAdminReverse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReversal := mocks.NewMockReversalService(ctrl)
	h := NewAdminHandler(mocks.NewMockWalletService(ctrl), mockReversal, mocks.NewMockLedgerQueryService(ctrl))

	id := uuid.New()
	mockReversal.EXPECT().Reverse(gomock.Any(), id, "duplicate top-up", "ops-1").
		Return([]domain.LedgerEntry{{ID: uuid.New(), ReversalOfRef: &id, Amount: -500}}, nil)

	c, w := newTestContext(http.MethodPost, "/", dto.ReverseRequest{Reason: "duplicate top-up"}, "ops-1", ports.RoleAdmin)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Reverse(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, id.String(), resp.Data[0]["reversal_of_ref"])
}

func TestAdminReverse_AlreadyReversed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReversal := mocks.NewMockReversalService(ctrl)
	h := NewAdminHandler(mocks.NewMockWalletService(ctrl), mockReversal, mocks.NewMockLedgerQueryService(ctrl))

	id := uuid.New()
	mockReversal.EXPECT().Reverse(gomock.Any(), id, gomock.Any(), gomock.Any()).Return(nil, apperror.ErrAlreadyReversed())

	c, w := newTestContext(http.MethodPost, "/", dto.ReverseRequest{Reason: "again"}, "ops-1", ports.RoleAdmin)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Reverse(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeAlreadyReversed, errorCode(t, w))
}

func TestAdminListLedger_Filters(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerQueryService(ctrl)
	h := NewAdminHandler(mocks.NewMockWalletService(ctrl), mocks.NewMockReversalService(ctrl), mockLedger)

	mockLedger.EXPECT().ListEntries(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
			require.NotNil(t, p.AccountID)
			assert.Equal(t, "seller-A", *p.AccountID)
			require.NotNil(t, p.Kind)
			assert.Equal(t, domain.EntryKindReceivePending, *p.Kind)
			require.NotNil(t, p.From)
			assert.Nil(t, p.To)
			assert.Nil(t, p.OrderRef)
			assert.Equal(t, 2, p.Page)
			assert.Equal(t, 10, p.PageSize)
			return []domain.LedgerEntry{{ID: uuid.New()}}, 25, nil
		},
	)

	c, w := newTestContext(http.MethodGet,
		"/api/v1/admin/ledger?account=seller-A&kind=receive_pending&from=2026-01-01T00:00:00Z&page=2&page_size=10",
		nil, "ops-1", ports.RoleAdmin)
	h.ListLedger(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(25), data["total"])
	assert.Equal(t, float64(2), data["page"])
	assert.Equal(t, float64(3), data["total_pages"])
}

func TestAdminListLedger_DefaultPaging(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerQueryService(ctrl)
	h := NewAdminHandler(mocks.NewMockWalletService(ctrl), mocks.NewMockReversalService(ctrl), mockLedger)

	mockLedger.EXPECT().ListEntries(gomock.Any(), gomock.Any()).Return(nil, int64(0), nil)

	c, w := newTestContext(http.MethodGet, "/api/v1/admin/ledger", nil, "ops-1", ports.RoleAdmin)
	h.ListLedger(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["page"])
	assert.Equal(t, float64(20), data["page_size"])
	assert.Equal(t, []interface{}{}, data["items"])
}

func TestAdminListLedger_BadTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewAdminHandler(mocks.NewMockWalletService(ctrl), mocks.NewMockReversalService(ctrl), mocks.NewMockLedgerQueryService(ctrl))

	c, w := newTestContext(http.MethodGet, "/api/v1/admin/ledger?from=yesterday", nil, "ops-1", ports.RoleAdmin)
	h.ListLedger(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminGetChain_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerQueryService(ctrl)
	h := NewAdminHandler(mocks.NewMockWalletService(ctrl), mocks.NewMockReversalService(ctrl), mockLedger)

	id := uuid.New()
	mockLedger.EXPECT().GetReversalChain(gomock.Any(), id).Return(nil, apperror.ErrEntryNotFound())

	c, w := newTestContext(http.MethodGet, "/", nil, "ops-1", ports.RoleAdmin)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.GetChain(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Health & Docs ---

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck()(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	pg.EXPECT().Name().Return("postgresql")
	rd := mocks.NewMockHealthChecker(ctrl)
	rd.EXPECT().Ping(gomock.Any()).Return(errors.New("dial tcp: refused"))
	rd.EXPECT().Name().Return("redis")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(pg, rd)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	assert.Equal(t, "healthy", deps["postgresql"].(map[string]interface{})["status"])
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]interface{})["status"])
}

func TestSwaggerUI(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger", nil)

	SwaggerUI(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "swagger-ui")
	assert.Contains(t, w.Body.String(), "/swagger/spec")
}

func TestSwaggerSpec_NotLoaded(t *testing.T) {
	SetSwaggerSpec(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)

	SwaggerSpec(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
