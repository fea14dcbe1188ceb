package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `id, account_id, wallet_id, kind, bucket, amount, description, order_ref,
		counterparty_ref, admin_ref, available_balance_after, pending_balance_after, status,
		reversal_of_ref, is_reversed, reversed_at, reversed_by, consumed_by, consumed_at, created_at`

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Insert appends an entry within a database transaction.
func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.AccountID, e.WalletID, e.Kind, e.Bucket, e.Amount, e.Description, e.OrderRef,
		e.CounterpartyRef, e.AdminRef, e.AvailableBalanceAfter, e.PendingBalanceAfter, e.Status,
		e.ReversalOfRef, e.IsReversed, e.ReversedAt, e.ReversedBy, e.ConsumedBy, e.ConsumedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByID fetches an entry by UUID.
func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// GetByIDForUpdate fetches an entry and locks it for the rest of tx.
func (r *LedgerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1 FOR UPDATE`

	e, err := scanEntry(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get ledger entry for update: %w", err)
	}
	return e, nil
}

// ListByOrder returns an order's entries, optionally for one account only.
func (r *LedgerRepo) ListByOrder(ctx context.Context, tx pgx.Tx, orderRef string, accountID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE order_ref = $1`
	args := []any{orderRef}
	if accountID != "" {
		query += ` AND account_id = $2`
		args = append(args, accountID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := on(r.pool, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger by order: %w", err)
	}
	return collectEntries(rows)
}

// FindPayment returns the live payment entry of an order, or nil. A payment
// consumed by a compensating refund is no longer live.
func (r *LedgerRepo) FindPayment(ctx context.Context, orderRef string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE order_ref = $1 AND kind = 'payment' AND status = 'completed'
		AND is_reversed = false AND reversal_of_ref IS NULL AND consumed_by IS NULL
		ORDER BY created_at DESC LIMIT 1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, orderRef))
	if err != nil {
		return nil, fmt.Errorf("find payment entry: %w", err)
	}
	return e, nil
}

// MarkReversed flags an entry as reversed. Only the first call changes the row.
func (r *LedgerRepo) MarkReversed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reversedBy uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE ledger_entries SET is_reversed = true, reversed_at = $1, reversed_by = $2
		WHERE id = $3 AND is_reversed = false`

	tag, err := tx.Exec(ctx, query, at, reversedBy, id)
	if err != nil {
		return false, fmt.Errorf("mark ledger entry reversed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkConsumed sets the consumption marker on still-unconsumed entries.
func (r *LedgerRepo) MarkConsumed(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, consumedBy uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE ledger_entries SET consumed_by = $1, consumed_at = $2
		WHERE id = ANY($3) AND consumed_by IS NULL`

	tag, err := tx.Exec(ctx, query, consumedBy, at, ids)
	if err != nil {
		return 0, fmt.Errorf("mark ledger entries consumed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List fetches entries with filtering and pagination, newest first.
func (r *LedgerRepo) List(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	add := func(cond string, v any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, v)
		argIdx++
	}
	if params.AccountID != nil {
		add("account_id = $%d", *params.AccountID)
	}
	if params.Kind != nil {
		add("kind = $%d", *params.Kind)
	}
	if params.Status != nil {
		add("status = $%d", *params.Status)
	}
	if params.OrderRef != nil {
		add("order_ref = $%d", *params.OrderRef)
	}
	if params.From != nil {
		add("created_at >= $%d", *params.From)
	}
	if params.To != nil {
		add("created_at <= $%d", *params.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM ledger_entries %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM ledger_entries %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		ledgerColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListReversalChain returns the entry and the entries that reverse it.
func (r *LedgerRepo) ListReversalChain(ctx context.Context, id uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE id = $1 OR reversal_of_ref = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list reversal chain: %w", err)
	}
	return collectEntries(rows)
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(
		&e.ID, &e.AccountID, &e.WalletID, &e.Kind, &e.Bucket, &e.Amount, &e.Description, &e.OrderRef,
		&e.CounterpartyRef, &e.AdminRef, &e.AvailableBalanceAfter, &e.PendingBalanceAfter, &e.Status,
		&e.ReversalOfRef, &e.IsReversed, &e.ReversedAt, &e.ReversedBy, &e.ConsumedBy, &e.ConsumedAt, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}
