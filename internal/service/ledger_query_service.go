package service

import (
	"context"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ledgerQueryService implements ports.LedgerQueryService.
type ledgerQueryService struct {
	entries ports.LedgerRepository
}

// NewLedgerQueryService creates a new ledger query service.
func NewLedgerQueryService(entries ports.LedgerRepository) ports.LedgerQueryService {
	return &ledgerQueryService{entries: entries}
}

// ListEntries returns a page of entries, newest first.
func (s *ledgerQueryService) ListEntries(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if params.Kind != nil && !params.Kind.Valid() {
		return nil, 0, apperror.Validation("invalid kind")
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return nil, 0, apperror.Validation("to must not be before from")
	}

	entries, total, err := s.entries.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return entries, total, nil
}

// GetReversalChain returns an entry followed by the entries reversing it.
func (s *ledgerQueryService) GetReversalChain(ctx context.Context, entryID uuid.UUID) ([]domain.LedgerEntry, error) {
	chain, err := s.entries.ListReversalChain(ctx, entryID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if len(chain) == 0 {
		return nil, apperror.ErrEntryNotFound()
	}
	return chain, nil
}
