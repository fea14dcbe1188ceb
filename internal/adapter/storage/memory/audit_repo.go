package memory

import (
	"context"

	"marketplace-wallet/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	store *Store
}

// NewAuditRepo creates an in-memory audit repository.
func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	return r.store.autocommit(ctx, func(st *state) error {
		st.audits = append(st.audits, *log)
		return nil
	})
}

// List returns every audit log in insertion order.
func (r *AuditRepo) List(ctx context.Context) ([]domain.AuditLog, error) {
	st, err := r.store.read(ctx, nil)
	if err != nil {
		return nil, err
	}
	return append([]domain.AuditLog(nil), st.audits...), nil
}
