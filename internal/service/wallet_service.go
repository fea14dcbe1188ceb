package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	transactor ports.DBTransactor
	wallets    ports.WalletRepository
	ledger     *Ledger
	hash       ports.HashService
	log        zerolog.Logger
	now        func() time.Time
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	transactor ports.DBTransactor,
	wallets ports.WalletRepository,
	ledger *Ledger,
	hash ports.HashService,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		transactor: transactor,
		wallets:    wallets,
		ledger:     ledger,
		hash:       hash,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the wallet of accountID, creating an empty one if needed.
func (s *WalletServiceImpl) GetOrCreate(ctx context.Context, accountID string) (*domain.Wallet, error) {
	if accountID == "" {
		return nil, apperror.Validation("account_id is required")
	}
	w, err := s.wallets.GetByAccountID(ctx, accountID, true)
	if err != nil {
		return nil, storageErr("get wallet", err)
	}
	if w != nil {
		return w, nil
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	if err := s.wallets.CreateIfAbsent(ctx, tx, domain.NewWallet(accountID, s.now())); err != nil {
		return nil, storageErr("create wallet", err)
	}
	w, err = s.wallets.GetByAccountIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, storageErr("get wallet", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	s.log.Info().Str("account_id", accountID).Msg("wallet created")
	return w, nil
}

// GetBalance returns the wallet of accountID, including a deactivated one.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, accountID string) (*domain.Wallet, error) {
	w, err := s.wallets.GetByAccountID(ctx, accountID, true)
	if err != nil {
		return nil, storageErr("get wallet", err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// TopUp credits available balance, creating the wallet on first use.
func (s *WalletServiceImpl) TopUp(ctx context.Context, req ports.AdminAdjustment) (*domain.LedgerEntry, error) {
	return s.post(ctx, Posting{
		AccountID:    req.AccountID,
		Kind:         domain.EntryKindTopUp,
		Op:           OpCredit,
		Amount:       req.Amount,
		Description:  describe(req.Description, "top up"),
		AdminRef:     strPtr(req.AdminRef),
		CreateWallet: true,
	})
}

// AdminDeduct removes available balance as a manual correction.
func (s *WalletServiceImpl) AdminDeduct(ctx context.Context, req ports.AdminAdjustment) (*domain.LedgerEntry, error) {
	return s.post(ctx, Posting{
		AccountID:   req.AccountID,
		Kind:        domain.EntryKindAdminDeduct,
		Op:          OpDebit,
		Amount:      req.Amount,
		Description: describe(req.Description, "admin deduction"),
		AdminRef:    strPtr(req.AdminRef),
	})
}

// Withdraw pays available balance out of the platform.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, accountID string, amount int64) (*domain.LedgerEntry, error) {
	return s.post(ctx, Posting{
		AccountID:   accountID,
		Kind:        domain.EntryKindWithdrawal,
		Op:          OpDebit,
		Amount:      amount,
		Description: "withdrawal",
	})
}

func (s *WalletServiceImpl) post(ctx context.Context, p Posting) (*domain.LedgerEntry, error) {
	if p.AccountID == "" {
		return nil, apperror.Validation("account_id is required")
	}
	if p.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	entry, err := s.ledger.Post(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("account_id", entry.AccountID).
		Str("kind", string(entry.Kind)).
		Int64("amount", entry.Amount).
		Msg("balance adjusted")

	return entry, nil
}

// Deactivate closes a wallet. Balances are kept; further mutations fail
// with WalletInactive. Deactivating twice returns the wallet unchanged.
func (s *WalletServiceImpl) Deactivate(ctx context.Context, accountID string, adminRef string) (*domain.Wallet, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	w, err := s.ledger.Lock(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if !w.IsActive {
		return w, nil
	}

	now := s.now()
	w.IsActive = false
	w.DeactivatedAt = &now
	w.UpdatedAt = now
	if err := s.wallets.Update(ctx, tx, w); err != nil {
		return nil, storageErr("update wallet", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	s.log.Warn().Str("account_id", accountID).Str("admin_ref", adminRef).Msg("wallet deactivated")
	return w, nil
}

// SetPin stores the argon2id hash of a 4 to 6 digit PIN.
func (s *WalletServiceImpl) SetPin(ctx context.Context, accountID string, pin string) error {
	if !pinPattern.MatchString(pin) {
		return apperror.Validation("pin must be 4 to 6 digits")
	}
	hashed, err := s.hash.Hash(pin)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("hash pin: %w", err))
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer rollback(ctx, tx) //nolint:errcheck

	w, err := s.ledger.lock(ctx, tx, accountID, true, s.now())
	if err != nil {
		return err
	}
	if !w.IsActive {
		return apperror.ErrWalletInactive()
	}
	w.SecurityPinHash = &hashed
	w.UpdatedAt = s.now()
	if err := s.wallets.Update(ctx, tx, w); err != nil {
		return storageErr("update wallet", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit tx", err)
	}

	s.log.Info().Str("account_id", accountID).Msg("wallet pin set")
	return nil
}

func describe(desc, fallback string) string {
	if desc == "" {
		return fallback
	}
	return desc
}
