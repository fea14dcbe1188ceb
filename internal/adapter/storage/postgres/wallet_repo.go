package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-wallet/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, account_id, available_balance, pending_balance, is_active, security_pin_hash,
		last_mutation_at, deactivated_at, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// CreateIfAbsent inserts a wallet unless one already exists for the account.
func (r *WalletRepo) CreateIfAbsent(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id) DO NOTHING`

	_, err := on(r.pool, tx).Exec(ctx, query,
		w.ID, w.AccountID, w.AvailableBalance, w.PendingBalance, w.IsActive, w.SecurityPinHash,
		w.LastMutationAt, w.DeactivatedAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByAccountID fetches a wallet without locking.
func (r *WalletRepo) GetByAccountID(ctx context.Context, accountID string, includeInactive bool) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE account_id = $1`
	if !includeInactive {
		query += ` AND is_active = true`
	}

	w, err := scanWallet(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by account: %w", err)
	}
	return w, nil
}

// GetByAccountIDForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE account_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// Update writes the full mutable state of a locked wallet.
func (r *WalletRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `UPDATE wallets SET available_balance = $1, pending_balance = $2, is_active = $3,
		security_pin_hash = $4, last_mutation_at = $5, deactivated_at = $6, updated_at = $7
		WHERE id = $8`

	tag, err := tx.Exec(ctx, query,
		w.AvailableBalance, w.PendingBalance, w.IsActive, w.SecurityPinHash,
		w.LastMutationAt, w.DeactivatedAt, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.AccountID)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.AccountID, &w.AvailableBalance, &w.PendingBalance, &w.IsActive, &w.SecurityPinHash,
		&w.LastMutationAt, &w.DeactivatedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
