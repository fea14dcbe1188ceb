package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"marketplace-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// CreateIfAbsent inserts w unless a wallet for w.AccountID already exists.
	CreateIfAbsent(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error
	// GetByAccountID is a non-locking read. Deactivated wallets are returned
	// only when includeInactive is true.
	GetByAccountID(ctx context.Context, accountID string, includeInactive bool) (*domain.Wallet, error)
	// GetByAccountIDForUpdate locks the wallet row for the rest of tx,
	// whatever its active state.
	GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (*domain.Wallet, error)
	// Update persists balances, state and PIN of a wallet locked in tx.
	Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error
}

// LedgerRepository defines persistence for the append-only ledger.
// There is no update or delete beyond the two once-only markers.
type LedgerRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error)
	// ListByOrder returns the order's entries oldest first. An empty
	// accountID returns entries of every account.
	ListByOrder(ctx context.Context, tx pgx.Tx, orderRef string, accountID string) ([]domain.LedgerEntry, error)
	// FindPayment returns the completed, unreversed payment entry of an order, or nil.
	FindPayment(ctx context.Context, orderRef string) (*domain.LedgerEntry, error)
	// MarkReversed sets the reversal marker. It reports false when the
	// entry was already reversed.
	MarkReversed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reversedBy uuid.UUID, at time.Time) (bool, error)
	// MarkConsumed sets the consumption marker on unconsumed entries among ids
	// and returns how many rows changed.
	MarkConsumed(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, consumedBy uuid.UUID, at time.Time) (int64, error)
	List(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
	// ListReversalChain returns the entry followed by every entry reversing it.
	ListReversalChain(ctx context.Context, id uuid.UUID) ([]domain.LedgerEntry, error)
}

// LedgerListParams holds filter + pagination for listing ledger entries.
type LedgerListParams struct {
	AccountID *string
	Kind      *domain.EntryKind
	Status    *domain.EntryStatus
	OrderRef  *string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// CancelRequestRepository persists multi-seller cancellation requests.
type CancelRequestRepository interface {
	Create(ctx context.Context, tx pgx.Tx, r *domain.CancelRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CancelRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.CancelRequest, error)
	// GetPendingByOrder returns the unresolved request of an order, or nil.
	GetPendingByOrder(ctx context.Context, tx pgx.Tx, orderRef string) (*domain.CancelRequest, error)
	// Update writes responses and resolution fields of a request locked in tx.
	Update(ctx context.Context, tx pgx.Tx, r *domain.CancelRequest) error
	ListPendingBySeller(ctx context.Context, sellerRef string) ([]domain.CancelRequest, error)
	// ListProcessedByOrder returns the resolved requests of an order, oldest first.
	ListProcessedByOrder(ctx context.Context, tx pgx.Tx, orderRef string) ([]domain.CancelRequest, error)
}

// ReleaseTaskRepository persists scheduled auto-confirmations.
type ReleaseTaskRepository interface {
	// Schedule stores t. A task already scheduled for the same order item keeps
	// the earlier due time.
	Schedule(ctx context.Context, t *domain.ReleaseTask) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ReleaseTask, error)
	// RecordAttempt stores the outcome of one sweep over the task.
	RecordAttempt(ctx context.Context, id uuid.UUID, status domain.ReleaseTaskStatus, lastErr *string, at time.Time) error
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
