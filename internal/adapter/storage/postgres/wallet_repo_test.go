package postgres

import (
	"context"
	"testing"
	"time"

	"marketplace-wallet/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(accountID string) *domain.Wallet {
	w := domain.NewWallet(accountID, time.Now().UTC().Truncate(time.Microsecond))
	w.AvailableBalance = 10000
	w.PendingBalance = 2500
	return w
}

func walletColumnNames() []string {
	return []string{"id", "account_id", "available_balance", "pending_balance", "is_active", "security_pin_hash",
		"last_mutation_at", "deactivated_at", "created_at", "updated_at"}
}

func walletRow(w *domain.Wallet) *pgxmock.Rows {
	return pgxmock.NewRows(walletColumnNames()).AddRow(
		w.ID, w.AccountID, w.AvailableBalance, w.PendingBalance, w.IsActive, w.SecurityPinHash,
		w.LastMutationAt, w.DeactivatedAt, w.CreatedAt, w.UpdatedAt,
	)
}

func TestWalletRepo_CreateIfAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("buyer-1")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallets .+ ON CONFLICT \\(account_id\\) DO NOTHING").
		WithArgs(w.ID, w.AccountID, w.AvailableBalance, w.PendingBalance, w.IsActive, w.SecurityPinHash,
			w.LastMutationAt, w.DeactivatedAt, w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.CreateIfAbsent(context.Background(), tx, w)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAccountID_ActiveOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("seller-1")

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE account_id = \\$1 AND is_active = true").
		WithArgs("seller-1").
		WillReturnRows(walletRow(w))

	result, err := repo.GetByAccountID(context.Background(), "seller-1", false)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.Equal(t, int64(10000), result.AvailableBalance)
	assert.Equal(t, int64(2500), result.PendingBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAccountID_IncludeInactive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("closed-1")
	w.IsActive = false
	deactivated := w.CreatedAt.Add(time.Hour)
	w.DeactivatedAt = &deactivated

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE account_id = \\$1$").
		WithArgs("closed-1").
		WillReturnRows(walletRow(w))

	result, err := repo.GetByAccountID(context.Background(), "closed-1", true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsActive)
	require.NotNil(t, result.DeactivatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAccountID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE account_id").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(walletColumnNames()))

	result, err := repo.GetByAccountID(context.Background(), "ghost", false)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAccountIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("buyer-2")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE account_id .+ FOR UPDATE").
		WithArgs("buyer-2").
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByAccountIDForUpdate(context.Background(), tx, "buyer-2")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("buyer-3")
	now := time.Now().UTC()
	w.LastMutationAt = &now
	w.UpdatedAt = now

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets SET available_balance").
		WithArgs(w.AvailableBalance, w.PendingBalance, w.IsActive, w.SecurityPinHash,
			w.LastMutationAt, w.DeactivatedAt, w.UpdatedAt, w.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, w)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("buyer-4")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets SET available_balance").
		WithArgs(w.AvailableBalance, w.PendingBalance, w.IsActive, w.SecurityPinHash,
			w.LastMutationAt, w.DeactivatedAt, w.UpdatedAt, w.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, w)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
