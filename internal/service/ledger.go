package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Posting describes one wallet mutation and the entry that records it.
type Posting struct {
	AccountID       string
	Kind            domain.EntryKind
	Op              BalanceOp
	Amount          int64 // Positive; the sign comes from Op
	Description     string
	OrderRef        *string
	CounterpartyRef *string
	AdminRef        *string
	ReversalOfRef   *uuid.UUID
	// CreateWallet provisions the wallet on first use.
	CreateWallet bool
}

// Ledger is the only writer of wallet balances and ledger entries. Every Post
// mutates a locked wallet and appends its entry in the caller's transaction.
type Ledger struct {
	wallets ports.WalletRepository
	entries ports.LedgerRepository
	log     zerolog.Logger
	now     func() time.Time
}

// NewLedger creates a new Ledger.
func NewLedger(wallets ports.WalletRepository, entries ports.LedgerRepository, log zerolog.Logger) *Ledger {
	return &Ledger{
		wallets: wallets,
		entries: entries,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Post applies p inside tx and returns the written entry with the wallet's
// post-mutation balances stamped on it.
func (l *Ledger) Post(ctx context.Context, tx pgx.Tx, p Posting) (*domain.LedgerEntry, error) {
	if !p.Kind.Valid() {
		return nil, apperror.InternalError(fmt.Errorf("unknown entry kind %q", p.Kind))
	}
	if p.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	now := l.now()

	wallet, err := l.lock(ctx, tx, p.AccountID, p.CreateWallet, now)
	if err != nil {
		return nil, err
	}

	next, err := applyBalance(*wallet, p.Op, p.Amount, now)
	if err != nil {
		return nil, err
	}

	bucket, signed := p.Op.signedEffect(p.Amount)
	entry := &domain.LedgerEntry{
		ID:                    uuid.New(),
		AccountID:             p.AccountID,
		WalletID:              next.ID,
		Kind:                  p.Kind,
		Bucket:                bucket,
		Amount:                signed,
		Description:           p.Description,
		OrderRef:              p.OrderRef,
		CounterpartyRef:       p.CounterpartyRef,
		AdminRef:              p.AdminRef,
		AvailableBalanceAfter: next.AvailableBalance,
		PendingBalanceAfter:   next.PendingBalance,
		Status:                domain.EntryStatusCompleted,
		ReversalOfRef:         p.ReversalOfRef,
		CreatedAt:             now,
	}

	if err := l.wallets.Update(ctx, tx, &next); err != nil {
		return nil, storageErr("update wallet", err)
	}
	if err := l.entries.Insert(ctx, tx, entry); err != nil {
		return nil, storageErr("insert ledger entry", err)
	}

	l.log.Debug().
		Str("entry_id", entry.ID.String()).
		Str("account_id", entry.AccountID).
		Str("kind", string(entry.Kind)).
		Int64("amount", entry.Amount).
		Msg("ledger entry posted")

	return entry, nil
}

// LockWallets locks the wallets of accountIDs in sorted order, so concurrent
// multi-wallet units always acquire rows in the same sequence. Missing
// wallets are created when create is true, otherwise reported as not found.
func (l *Ledger) LockWallets(ctx context.Context, tx pgx.Tx, accountIDs []string, create bool) (map[string]*domain.Wallet, error) {
	sorted := append([]string(nil), accountIDs...)
	sort.Strings(sorted)

	now := l.now()
	locked := make(map[string]*domain.Wallet, len(sorted))
	for _, id := range sorted {
		if _, ok := locked[id]; ok {
			continue
		}
		w, err := l.lock(ctx, tx, id, create, now)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}
	return locked, nil
}

// Lock locks one wallet and returns it, or nil if it does not exist.
func (l *Ledger) Lock(ctx context.Context, tx pgx.Tx, accountID string) (*domain.Wallet, error) {
	w, err := l.wallets.GetByAccountIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, storageErr("lock wallet", err)
	}
	return w, nil
}

func (l *Ledger) lock(ctx context.Context, tx pgx.Tx, accountID string, create bool, now time.Time) (*domain.Wallet, error) {
	if accountID == "" {
		return nil, apperror.ErrWalletNotFound()
	}
	if create {
		if err := l.wallets.CreateIfAbsent(ctx, tx, domain.NewWallet(accountID, now)); err != nil {
			return nil, storageErr("create wallet", err)
		}
	}
	w, err := l.Lock(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// Outstanding returns the pending earnings accountID still holds for
// orderRef, with the live receive_pending entries that produced them.
func (l *Ledger) Outstanding(ctx context.Context, tx pgx.Tx, orderRef, accountID string) (int64, []domain.LedgerEntry, error) {
	entries, err := l.entries.ListByOrder(ctx, tx, orderRef, accountID)
	if err != nil {
		return 0, nil, storageErr("list order entries", err)
	}
	var legs []domain.LedgerEntry
	for _, e := range entries {
		if e.Kind == domain.EntryKindReceivePending && e.CountsTowardOutstanding() && !e.IsConsumed() {
			legs = append(legs, e)
		}
	}
	return domain.OutstandingPending(entries), legs, nil
}

// CancelPending removes up to amount of accountID's pending earnings for
// orderRef. When nothing remains outstanding afterwards, the originating
// receive_pending entries are marked consumed by the cancellation entry.
func (l *Ledger) CancelPending(ctx context.Context, tx pgx.Tx, orderRef, accountID string, amount int64, counterparty *string) (*domain.LedgerEntry, error) {
	outstanding, legs, err := l.Outstanding(ctx, tx, orderRef, accountID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 || amount > outstanding {
		return nil, apperror.ErrEntryConsumed().
			WithDetail("outstanding", outstanding).
			WithDetail("requested", amount)
	}

	entry, err := l.Post(ctx, tx, Posting{
		AccountID:       accountID,
		Kind:            domain.EntryKindRefund,
		Op:              OpCancelPending,
		Amount:          amount,
		Description:     fmt.Sprintf("order %s pending earnings cancelled", orderRef),
		OrderRef:        &orderRef,
		CounterpartyRef: counterparty,
	})
	if err != nil {
		return nil, err
	}

	if amount == outstanding {
		if err := l.consume(ctx, tx, legs, entry.ID); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (l *Ledger) consume(ctx context.Context, tx pgx.Tx, legs []domain.LedgerEntry, by uuid.UUID) error {
	ids := make([]uuid.UUID, 0, len(legs))
	for _, e := range legs {
		ids = append(ids, e.ID)
	}
	if _, err := l.entries.MarkConsumed(ctx, tx, ids, by, l.now()); err != nil {
		return storageErr("mark entries consumed", err)
	}
	return nil
}
