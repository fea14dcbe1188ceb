package service

import (
	"context"
	"testing"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findEntry returns the first entry of kind on accountID.
func (e *testEnv) findEntry(t *testing.T, accountID string, kind domain.EntryKind) domain.LedgerEntry {
	t.Helper()
	entries, _, err := e.entries.List(context.Background(), ledgerPage(accountID))
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.Kind == kind && !entry.IsReversal() {
			return entry
		}
	}
	t.Fatalf("no %s entry for %s", kind, accountID)
	return domain.LedgerEntry{}
}

func TestReversalService_TopUpIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.topUp(t, "buyer", 100)
	svc := env.reversalService()
	ctx := context.Background()
	topUp := env.findEntry(t, "buyer", domain.EntryKindTopUp)

	out, err := svc.Reverse(ctx, topUp.ID, "duplicate top up", "admin-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	rev := out[0]
	assert.Equal(t, domain.EntryKindTopUp, rev.Kind)
	assert.Equal(t, int64(-100), rev.Amount)
	require.NotNil(t, rev.ReversalOfRef)
	assert.Equal(t, topUp.ID, *rev.ReversalOfRef)
	require.NotNil(t, rev.AdminRef)
	assert.Equal(t, "admin-1", *rev.AdminRef)
	assert.Zero(t, rev.AvailableBalanceAfter)

	orig, err := env.entries.GetByID(ctx, topUp.ID)
	require.NoError(t, err)
	assert.True(t, orig.IsReversed)
	require.NotNil(t, orig.ReversedAt)

	_, err = svc.Reverse(ctx, topUp.ID, "again", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyReversed))

	_, err = svc.Reverse(ctx, rev.ID, "undo the undo", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyReversed))

	available, _ := env.balance(t, "buyer")
	assert.Zero(t, available)
}

func TestReversalService_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.topUp(t, "buyer", 100)
	svc := env.reversalService()
	ctx := context.Background()
	topUp := env.findEntry(t, "buyer", domain.EntryKindTopUp)

	_, err := svc.Reverse(ctx, topUp.ID, "", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = svc.Reverse(ctx, uuid.New(), "typo", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeEntryNotFound))
}

func TestReversalService_TopUpAlreadySpent(t *testing.T) {
	env := newTestEnv(t)
	env.topUp(t, "buyer", 100)
	order := twoSellerOrder()
	env.orders.add(order)
	_, err := env.transferService().ExecuteTransfer(context.Background(), transferRequest(order))
	require.NoError(t, err)
	topUp := env.findEntry(t, "buyer", domain.EntryKindTopUp)

	_, err = env.reversalService().Reverse(context.Background(), topUp.ID, "chargeback", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientBalance))

	orig, err := env.entries.GetByID(context.Background(), topUp.ID)
	require.NoError(t, err)
	assert.False(t, orig.IsReversed)
}

func TestReversalService_PaymentCascadesToLegs(t *testing.T) {
	env := newTestEnv(t)
	order := paidOrder(t, env)
	svc := env.reversalService()
	ctx := context.Background()
	require.NotEmpty(t, env.cache.data[transferKey(order.Ref)])
	payment := env.findEntry(t, "buyer", domain.EntryKindPayment)

	out, err := svc.Reverse(ctx, payment.ID, "fraud", "admin-1")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, domain.EntryKindPayment, out[0].Kind)
	assert.Equal(t, "seller-A", out[1].AccountID)
	assert.Equal(t, "seller-B", out[2].AccountID)

	available, _ := env.balance(t, "buyer")
	assert.Equal(t, int64(100), available)
	_, pending := env.balance(t, "seller-A")
	assert.Zero(t, pending)
	_, pending = env.balance(t, "seller-B")
	assert.Zero(t, pending)

	assert.Empty(t, env.cache.data[transferKey(order.Ref)])

	leg := env.findEntry(t, "seller-A", domain.EntryKindReceivePending)
	assert.True(t, leg.IsReversed)
	_, err = svc.Reverse(ctx, leg.ID, "again", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyReversed))
}

func TestReversalService_SettledLegCannotBeReversed(t *testing.T) {
	env := newTestEnv(t)
	paidOrder(t, env)
	ctx := context.Background()
	require.NoError(t, env.orders.MarkItemReceived(ctx, "ORD-1", "p1"))
	_, err := env.settlementService().ReleaseForItem(ctx, "ORD-1", "p1")
	require.NoError(t, err)
	svc := env.reversalService()

	leg := env.findEntry(t, "seller-A", domain.EntryKindReceivePending)
	_, err = svc.Reverse(ctx, leg.ID, "late claim", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeEntryConsumed))

	payment := env.findEntry(t, "buyer", domain.EntryKindPayment)
	_, err = svc.Reverse(ctx, payment.ID, "late claim", "admin-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeEntryConsumed))

	available, _ := env.balance(t, "buyer")
	assert.Equal(t, int64(20), available, "failed reversal leaves balances alone")
	available, _ = env.balance(t, "seller-A")
	assert.Equal(t, int64(56), available)
}

func TestReversalService_PartiallyCancelledLeg(t *testing.T) {
	env := newTestEnv(t)
	paidOrder(t, env)
	ctx := context.Background()
	_, err := env.transferService().CancelPendingForOrder(ctx, "ORD-1", []domain.CancelItem{
		{ProductID: "p1", SellerRef: "A", SellerAccountID: "seller-A", PaidAmount: 16},
	})
	require.NoError(t, err)

	leg := env.findEntry(t, "seller-A", domain.EntryKindReceivePending)
	_, err = env.reversalService().Reverse(ctx, leg.ID, "dispute", "admin-1")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeEntryConsumed))
}

func TestReversalService_UnsettledLeg(t *testing.T) {
	env := newTestEnv(t)
	paidOrder(t, env)
	leg := env.findEntry(t, "seller-B", domain.EntryKindReceivePending)

	out, err := env.reversalService().Reverse(context.Background(), leg.ID, "wrong seller", "admin-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.BucketPending, out[0].Bucket)
	assert.Equal(t, int64(-24), out[0].Amount)

	_, pending := env.balance(t, "seller-B")
	assert.Zero(t, pending)
}
