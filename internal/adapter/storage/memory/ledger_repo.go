package memory

import (
	"context"
	"fmt"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	store *Store
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return err
	}
	if _, ok := st.entries[e.ID]; ok {
		return fmt.Errorf("insert ledger entry: duplicate id %s", e.ID)
	}
	st.entries[e.ID] = *e
	st.entryOrder = append(st.entryOrder, e.ID)
	return nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	return st.entry(id), nil
}

func (r *LedgerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return nil, err
	}
	return st.entry(id), nil
}

func (r *LedgerRepo) ListByOrder(ctx context.Context, tx pgx.Tx, orderRef string, accountID string) ([]domain.LedgerEntry, error) {
	st, err := r.store.read(ctx, tx)
	if err != nil {
		return nil, err
	}
	return st.filterEntries(func(e *domain.LedgerEntry) bool {
		return e.OrderRef != nil && *e.OrderRef == orderRef && (accountID == "" || e.AccountID == accountID)
	}), nil
}

func (r *LedgerRepo) FindPayment(ctx context.Context, orderRef string) (*domain.LedgerEntry, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	matches := st.filterEntries(func(e *domain.LedgerEntry) bool {
		return e.OrderRef != nil && *e.OrderRef == orderRef && e.Kind == domain.EntryKindPayment &&
			e.Status == domain.EntryStatusCompleted && !e.IsReversed && !e.IsReversal() && !e.IsConsumed()
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[len(matches)-1], nil
}

func (r *LedgerRepo) MarkReversed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reversedBy uuid.UUID, at time.Time) (bool, error) {
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return false, err
	}
	e, ok := st.entries[id]
	if !ok || e.IsReversed {
		return false, nil
	}
	e.IsReversed = true
	e.ReversedAt = &at
	e.ReversedBy = &reversedBy
	st.entries[id] = e
	return true, nil
}

func (r *LedgerRepo) MarkConsumed(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, consumedBy uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	st, err := r.store.write(ctx, tx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		e, ok := st.entries[id]
		if !ok || e.ConsumedBy != nil {
			continue
		}
		e.ConsumedBy = &consumedBy
		e.ConsumedAt = &at
		st.entries[id] = e
		n++
	}
	return n, nil
}

// List returns entries newest first, paginated.
func (r *LedgerRepo) List(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	matches := st.filterEntries(func(e *domain.LedgerEntry) bool {
		switch {
		case params.AccountID != nil && e.AccountID != *params.AccountID:
			return false
		case params.Kind != nil && e.Kind != *params.Kind:
			return false
		case params.Status != nil && e.Status != *params.Status:
			return false
		case params.OrderRef != nil && (e.OrderRef == nil || *e.OrderRef != *params.OrderRef):
			return false
		case params.From != nil && e.CreatedAt.Before(*params.From):
			return false
		case params.To != nil && e.CreatedAt.After(*params.To):
			return false
		}
		return true
	})
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	total := int64(len(matches))

	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(matches) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

func (r *LedgerRepo) ListReversalChain(ctx context.Context, id uuid.UUID) ([]domain.LedgerEntry, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	return st.filterEntries(func(e *domain.LedgerEntry) bool {
		return e.ID == id || (e.ReversalOfRef != nil && *e.ReversalOfRef == id)
	}), nil
}

func (st *state) entry(id uuid.UUID) *domain.LedgerEntry {
	e, ok := st.entries[id]
	if !ok {
		return nil
	}
	return &e
}

// filterEntries returns copies of matching entries in insertion order.
func (st *state) filterEntries(keep func(e *domain.LedgerEntry) bool) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, id := range st.entryOrder {
		e := st.entries[id]
		if keep(&e) {
			out = append(out, e)
		}
	}
	return out
}
