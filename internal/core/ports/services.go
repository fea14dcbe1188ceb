package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"marketplace-wallet/internal/core/domain"

	"github.com/google/uuid"
)

// HashService handles PIN hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService validates actor tokens issued by the marketplace auth service.
type TokenService interface {
	Generate(accountID string, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// Actor roles carried in the token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID string
	Role      string
}

// IsAdmin reports whether the actor may use admin tooling.
func (c *TokenClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// AuditService records audited actions asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// WalletService is the wallet store plus admin balance tooling.
type WalletService interface {
	GetOrCreate(ctx context.Context, accountID string) (*domain.Wallet, error)
	GetBalance(ctx context.Context, accountID string) (*domain.Wallet, error)
	TopUp(ctx context.Context, req AdminAdjustment) (*domain.LedgerEntry, error)
	AdminDeduct(ctx context.Context, req AdminAdjustment) (*domain.LedgerEntry, error)
	Withdraw(ctx context.Context, accountID string, amount int64) (*domain.LedgerEntry, error)
	Deactivate(ctx context.Context, accountID string, adminRef string) (*domain.Wallet, error)
	SetPin(ctx context.Context, accountID string, pin string) error
}

// AdminAdjustment is a manual balance change made from admin tooling.
type AdminAdjustment struct {
	AccountID   string
	Amount      int64
	Description string
	AdminRef    string
}

// TransferService is the buyer-to-sellers split orchestrator.
type TransferService interface {
	ExecuteTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Refund(ctx context.Context, accountID string, amount int64, orderRef string) (*domain.LedgerEntry, error)
	CancelPendingForOrder(ctx context.Context, orderRef string, items []domain.CancelItem) ([]domain.LedgerEntry, error)
}

// TransferRequest is the checkout view of an order to be paid.
type TransferRequest struct {
	OrderRef         string
	BuyerAccountID   string
	Lines            []domain.OrderLine
	PreDiscountTotal int64
	FinalTotal       int64
	Pin              string
}

// TransferResult describes a committed split transfer.
type TransferResult struct {
	OrderRef       string        `json:"order_ref"`
	BuyerAccountID string        `json:"buyer_account_id"`
	PaymentEntryID uuid.UUID     `json:"payment_entry_id"`
	Debited        int64         `json:"debited"`
	Legs           []TransferLeg `json:"legs"`
	SkippedSellers []string      `json:"skipped_sellers,omitempty"`
	Replayed       bool          `json:"replayed"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// TransferLeg is one seller's pending credit within a transfer.
type TransferLeg struct {
	SellerRef       string    `json:"seller_ref"`
	SellerAccountID string    `json:"seller_account_id"`
	Amount          int64     `json:"amount"`
	EntryID         uuid.UUID `json:"entry_id"`
}

// SettlementService converts pending seller earnings into available balance.
type SettlementService interface {
	ReleaseForItem(ctx context.Context, orderRef string, productID string) (*ReleaseResult, error)
	ScheduleAutoConfirm(ctx context.Context, orderRef string, productID string, deliveredAt time.Time) (*domain.ReleaseTask, error)
	SweepDue(ctx context.Context) (int, error)
}

// ReleaseResult reports what ReleaseForItem did. Released is false for no-ops.
type ReleaseResult struct {
	OrderRef  string              `json:"order_ref"`
	SellerRef string              `json:"seller_ref"`
	Released  bool                `json:"released"`
	Amount    int64               `json:"amount"`
	Entry     *domain.LedgerEntry `json:"entry,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

// CancellationService drives the buyer cancellation workflow.
type CancellationService interface {
	RequestCancellation(ctx context.Context, req CancellationRequest) (*CancellationOutcome, error)
	RespondToCancellation(ctx context.Context, req SellerDecisionRequest) (*domain.CancelRequest, error)
	GetCancelRequest(ctx context.Context, id uuid.UUID) (*domain.CancelRequest, error)
	ListPendingForSeller(ctx context.Context, sellerRef string) ([]domain.CancelRequest, error)
}

// CancellationRequest is a buyer's request. Empty ProductIDs means every line.
type CancellationRequest struct {
	OrderRef       string
	BuyerAccountID string
	ProductIDs     []string
	Reason         string
}

// CancellationOutcome is either an immediate cancellation or a pending request.
type CancellationOutcome struct {
	Immediate bool                  `json:"immediate"`
	OrderRef  string                `json:"order_ref"`
	Request   *domain.CancelRequest `json:"request,omitempty"`
}

// SellerDecisionRequest is one seller's response to a cancel request.
type SellerDecisionRequest struct {
	RequestID uuid.UUID
	SellerRef string
	Decisions []domain.ItemDecision
}

// ReversalService undoes completed ledger entries.
type ReversalService interface {
	Reverse(ctx context.Context, entryID uuid.UUID, reason string, actorRef string) ([]domain.LedgerEntry, error)
}

// LedgerQueryService is the read side of the ledger for admin tooling.
type LedgerQueryService interface {
	ListEntries(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
	GetReversalChain(ctx context.Context, entryID uuid.UUID) ([]domain.LedgerEntry, error)
}
