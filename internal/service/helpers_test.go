package service

import (
	"context"
	"io"
	"testing"
	"time"

	"marketplace-wallet/internal/adapter/storage/memory"
	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// testEnv wires the services over one in-memory store with fake collaborators.
type testEnv struct {
	store     *memory.Store
	wallets   *memory.WalletRepo
	entries   *memory.LedgerRepo
	requests  *memory.CancelRequestRepo
	tasks     *memory.ReleaseTaskRepo
	ledger    *Ledger
	orders    *fakeOrders
	sellers   *fakeSellers
	inventory *fakeInventory
	alerts    *fakeAlerts
	cache     *fakeCache
	deps      Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	env := &testEnv{
		store:     store,
		wallets:   memory.NewWalletRepo(store),
		entries:   memory.NewLedgerRepo(store),
		requests:  memory.NewCancelRequestRepo(store),
		tasks:     memory.NewReleaseTaskRepo(store),
		orders:    newFakeOrders(),
		sellers:   &fakeSellers{accounts: map[string]string{}},
		inventory: &fakeInventory{},
		alerts:    &fakeAlerts{},
		cache:     newFakeCache(),
	}
	env.ledger = NewLedger(env.wallets, env.entries, newTestLogger())
	env.deps = Deps{
		Transactor: store,
		Wallets:    env.wallets,
		Entries:    env.entries,
		Ledger:     env.ledger,
		Sellers:    env.sellers,
		Orders:     env.orders,
		Inventory:  env.inventory,
		Alerts:     env.alerts,
		Log:        newTestLogger(),
	}
	return env
}

func (e *testEnv) transferService() *TransferServiceImpl {
	return NewTransferService(e.deps, NewArgon2HashService(), e.cache, TransferOptions{
		Timeout:        5 * time.Second,
		LegTimeout:     time.Second,
		IdempotencyTTL: time.Hour,
	})
}

func (e *testEnv) settlementService() *SettlementServiceImpl {
	return NewSettlementService(e.deps, e.tasks, e.requests, SettlementOptions{AutoConfirmAfter: 72 * time.Hour, BatchSize: 10})
}

func (e *testEnv) cancellationService() *CancellationServiceImpl {
	return NewCancellationService(e.deps, e.requests)
}

func (e *testEnv) reversalService() *ReversalServiceImpl {
	return NewReversalService(e.deps, e.cache)
}

// topUp credits accountID so a test can spend from it.
func (e *testEnv) topUp(t *testing.T, accountID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	_, err = e.ledger.Post(ctx, tx, Posting{
		AccountID:    accountID,
		Kind:         domain.EntryKindTopUp,
		Op:           OpCredit,
		Amount:       amount,
		Description:  "test top up",
		CreateWallet: true,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func (e *testEnv) balance(t *testing.T, accountID string) (available, pending int64) {
	t.Helper()
	w, err := e.wallets.GetByAccountID(context.Background(), accountID, true)
	require.NoError(t, err)
	if w == nil {
		return 0, 0
	}
	return w.AvailableBalance, w.PendingBalance
}

// twoSellerOrder is a 70/30 order discounted to 80: A earns 56, B earns 24.
func twoSellerOrder() *domain.Order {
	return &domain.Order{
		Ref:              "ORD-1",
		BuyerAccountID:   "buyer",
		Status:           domain.OrderStatusPending,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		PreDiscountTotal: 100,
		FinalTotal:       80,
		Lines: []domain.OrderLine{
			{ProductID: "p1", SellerRef: "A", SellerAccountID: "seller-A", Quantity: 1, UnitPrice: 70},
			{ProductID: "p2", SellerRef: "B", SellerAccountID: "seller-B", Quantity: 1, UnitPrice: 30},
		},
	}
}

func transferRequest(o *domain.Order) ports.TransferRequest {
	return ports.TransferRequest{
		OrderRef:         o.Ref,
		BuyerAccountID:   o.BuyerAccountID,
		Lines:            o.Lines,
		PreDiscountTotal: o.PreDiscountTotal,
		FinalTotal:       o.FinalTotal,
	}
}

func ledgerPage(accountID string) ports.LedgerListParams {
	return ports.LedgerListParams{AccountID: &accountID, Page: 1, PageSize: 50}
}
