package memory

import (
	"context"
	"fmt"

	"marketplace-wallet/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	store *Store
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(store *Store) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) CreateIfAbsent(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return err
	}
	if _, ok := st.wallets[w.AccountID]; !ok {
		st.wallets[w.AccountID] = *w
	}
	return nil
}

func (r *WalletRepo) GetByAccountID(ctx context.Context, accountID string, includeInactive bool) (*domain.Wallet, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	w, ok := st.wallets[accountID]
	if !ok || (!w.IsActive && !includeInactive) {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepo) GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (*domain.Wallet, error) {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return nil, err
	}
	w, ok := st.wallets[accountID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return err
	}
	cur, ok := st.wallets[w.AccountID]
	if !ok || cur.ID != w.ID {
		return fmt.Errorf("wallet not found: %s", w.ID)
	}
	st.wallets[w.AccountID] = *w
	return nil
}
