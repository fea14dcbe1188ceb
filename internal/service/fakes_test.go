package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketplace-wallet/internal/adapter/storage/memory"
	"marketplace-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errCollaboratorDown = errors.New("collaborator unavailable")

type fakeOrders struct {
	mu          sync.Mutex
	orders      map[string]*domain.Order
	markPaidErr error
	paid        []string
	cancelled   []string
	statuses    map[string]string
}

func newFakeOrders(orders ...*domain.Order) *fakeOrders {
	f := &fakeOrders{orders: make(map[string]*domain.Order), statuses: make(map[string]string)}
	for _, o := range orders {
		f.add(o)
	}
	return f
}

func (f *fakeOrders) add(o *domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.Ref] = o
}

func (f *fakeOrders) GetOrder(_ context.Context, orderRef string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderRef]
	if !ok {
		return nil, nil
	}
	cp := *o
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &cp, nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, orderRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markPaidErr != nil {
		return f.markPaidErr
	}
	f.paid = append(f.paid, orderRef)
	if o, ok := f.orders[orderRef]; ok {
		o.PaymentStatus = domain.PaymentStatusPaid
		o.Status = domain.OrderStatusProcessing
	}
	return nil
}

func (f *fakeOrders) MarkCancelled(_ context.Context, orderRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderRef)
	if o, ok := f.orders[orderRef]; ok {
		o.Status = domain.OrderStatusCancelled
	}
	return nil
}

func (f *fakeOrders) SetStatus(_ context.Context, orderRef string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderRef] = status
	if o, ok := f.orders[orderRef]; ok {
		o.Status = status
	}
	return nil
}

func (f *fakeOrders) MarkItemReceived(_ context.Context, orderRef string, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderRef]
	if !ok {
		return errors.New("order not found")
	}
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			o.Lines[i].Status = domain.ItemStatusReceived
		}
	}
	return nil
}

func (f *fakeOrders) status(orderRef string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[orderRef].Status
}

type fakeSellers struct {
	mu       sync.Mutex
	accounts map[string]string
	err      error
	calls    int
}

func (f *fakeSellers) ResolveSettlementAccount(_ context.Context, sellerRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.accounts[sellerRef], nil
}

type fakeInventory struct {
	mu          sync.Mutex
	decremented []domain.StockChange
	restored    []domain.StockChange
}

func (f *fakeInventory) Decrement(_ context.Context, changes []domain.StockChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decremented = append(f.decremented, changes...)
	return nil
}

func (f *fakeInventory) Restore(_ context.Context, changes []domain.StockChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, changes...)
	return nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []domain.RollbackAlert
}

func (f *fakeAlerts) NotifyRollbackFailed(_ context.Context, alert domain.RollbackAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// stallingEntries blocks inserts for one account until the context expires.
type stallingEntries struct {
	*memory.LedgerRepo
	account string
}

func (s *stallingEntries) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	if e.AccountID == s.account {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.LedgerRepo.Insert(ctx, tx, e)
}

// failingConsume makes every MarkConsumed call fail.
type failingConsume struct {
	*memory.LedgerRepo
}

func (f *failingConsume) MarkConsumed(context.Context, pgx.Tx, []uuid.UUID, uuid.UUID, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}
