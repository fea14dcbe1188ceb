package ports

//go:generate mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks

import (
	"context"
	"time"

	"marketplace-wallet/internal/core/domain"
)

// SellerDirectory resolves seller settlement accounts from store references.
type SellerDirectory interface {
	// ResolveSettlementAccount returns the wallet account of sellerRef.
	// An unknown seller yields apperror.ErrSellerProfileNotFound.
	ResolveSettlementAccount(ctx context.Context, sellerRef string) (string, error)
}

// OrderService is the order/checkout collaborator.
type OrderService interface {
	// GetOrder returns nil, nil when the order does not exist.
	GetOrder(ctx context.Context, orderRef string) (*domain.Order, error)
	MarkPaid(ctx context.Context, orderRef string) error
	MarkCancelled(ctx context.Context, orderRef string) error
	SetStatus(ctx context.Context, orderRef string, status string) error
	MarkItemReceived(ctx context.Context, orderRef string, productID string) error
}

// Inventory is the stock counter collaborator.
type Inventory interface {
	Decrement(ctx context.Context, changes []domain.StockChange) error
	Restore(ctx context.Context, changes []domain.StockChange) error
}

// AlertNotifier delivers manual-intervention alerts to operators.
type AlertNotifier interface {
	NotifyRollbackFailed(ctx context.Context, alert domain.RollbackAlert) error
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
