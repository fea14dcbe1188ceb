package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const cancelRequestColumns = `id, order_ref, buyer_account_id, reason, items_to_cancel, required_sellers,
		seller_responses, status, prior_order_status, refund_amount, created_at, processed_at`

// CancelRequestRepo implements ports.CancelRequestRepository.
// Items and responses are stored as JSONB, required sellers as text[].
type CancelRequestRepo struct {
	pool Pool
}

// NewCancelRequestRepo creates a new CancelRequestRepo.
func NewCancelRequestRepo(pool Pool) *CancelRequestRepo {
	return &CancelRequestRepo{pool: pool}
}

// Create inserts a request. The partial unique index on (order_ref) WHERE
// status = 'pending' turns a concurrent second request into CancelRequestPending.
func (r *CancelRequestRepo) Create(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest) error {
	items, responses, err := marshalCancelRequest(cr)
	if err != nil {
		return err
	}

	query := `INSERT INTO cancel_requests (` + cancelRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.Exec(ctx, query,
		cr.ID, cr.OrderRef, cr.BuyerAccountID, cr.Reason, items, cr.RequiredSellers,
		responses, cr.Status, cr.PriorOrderStatus, cr.RefundAmount, cr.CreatedAt, cr.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.ErrCancelRequestPending()
		}
		return fmt.Errorf("insert cancel request: %w", err)
	}
	return nil
}

// GetByID fetches a request without locking.
func (r *CancelRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CancelRequest, error) {
	query := `SELECT ` + cancelRequestColumns + ` FROM cancel_requests WHERE id = $1`

	cr, err := scanCancelRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get cancel request: %w", err)
	}
	return cr, nil
}

// GetByIDForUpdate fetches a request and locks it for the rest of tx.
func (r *CancelRequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.CancelRequest, error) {
	query := `SELECT ` + cancelRequestColumns + ` FROM cancel_requests WHERE id = $1 FOR UPDATE`

	cr, err := scanCancelRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get cancel request for update: %w", err)
	}
	return cr, nil
}

// GetPendingByOrder returns the unresolved request of an order, or nil.
func (r *CancelRequestRepo) GetPendingByOrder(ctx context.Context, tx pgx.Tx, orderRef string) (*domain.CancelRequest, error) {
	query := `SELECT ` + cancelRequestColumns + ` FROM cancel_requests
		WHERE order_ref = $1 AND status = 'pending' LIMIT 1`

	cr, err := scanCancelRequest(on(r.pool, tx).QueryRow(ctx, query, orderRef))
	if err != nil {
		return nil, fmt.Errorf("get pending cancel request: %w", err)
	}
	return cr, nil
}

// Update writes responses and resolution fields.
func (r *CancelRequestRepo) Update(ctx context.Context, tx pgx.Tx, cr *domain.CancelRequest) error {
	items, responses, err := marshalCancelRequest(cr)
	if err != nil {
		return err
	}

	query := `UPDATE cancel_requests SET items_to_cancel = $1, seller_responses = $2, status = $3,
		refund_amount = $4, processed_at = $5
		WHERE id = $6`

	tag, err := tx.Exec(ctx, query, items, responses, cr.Status, cr.RefundAmount, cr.ProcessedAt, cr.ID)
	if err != nil {
		return fmt.Errorf("update cancel request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cancel request not found: %s", cr.ID)
	}
	return nil
}

// ListPendingBySeller returns pending requests that still list sellerRef as required.
func (r *CancelRequestRepo) ListPendingBySeller(ctx context.Context, sellerRef string) ([]domain.CancelRequest, error) {
	query := `SELECT ` + cancelRequestColumns + ` FROM cancel_requests
		WHERE required_sellers @> ARRAY[$1]::text[] AND status = 'pending'
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, sellerRef)
	if err != nil {
		return nil, fmt.Errorf("list pending cancel requests: %w", err)
	}
	return collectCancelRequests(rows)
}

// ListProcessedByOrder returns the resolved requests of orderRef, oldest first.
func (r *CancelRequestRepo) ListProcessedByOrder(ctx context.Context, tx pgx.Tx, orderRef string) ([]domain.CancelRequest, error) {
	query := `SELECT ` + cancelRequestColumns + ` FROM cancel_requests
		WHERE order_ref = $1 AND status <> 'pending'
		ORDER BY created_at ASC`

	rows, err := on(r.pool, tx).Query(ctx, query, orderRef)
	if err != nil {
		return nil, fmt.Errorf("list processed cancel requests: %w", err)
	}
	return collectCancelRequests(rows)
}

func collectCancelRequests(rows pgx.Rows) ([]domain.CancelRequest, error) {
	defer rows.Close()

	var out []domain.CancelRequest
	for rows.Next() {
		cr, err := scanCancelRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cancel request row: %w", err)
		}
		out = append(out, *cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cancel request rows: %w", err)
	}
	return out, nil
}

func marshalCancelRequest(cr *domain.CancelRequest) (items []byte, responses []byte, err error) {
	items, err = json.Marshal(cr.ItemsToCancel)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal cancel items: %w", err)
	}
	if cr.SellerResponses == nil {
		responses = []byte("[]")
	} else if responses, err = json.Marshal(cr.SellerResponses); err != nil {
		return nil, nil, fmt.Errorf("marshal seller responses: %w", err)
	}
	return items, responses, nil
}

func scanCancelRequest(row pgx.Row) (*domain.CancelRequest, error) {
	cr := &domain.CancelRequest{}
	var items, responses []byte
	err := row.Scan(
		&cr.ID, &cr.OrderRef, &cr.BuyerAccountID, &cr.Reason, &items, &cr.RequiredSellers,
		&responses, &cr.Status, &cr.PriorOrderStatus, &cr.RefundAmount, &cr.CreatedAt, &cr.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &cr.ItemsToCancel); err != nil {
		return nil, fmt.Errorf("unmarshal cancel items: %w", err)
	}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &cr.SellerResponses); err != nil {
			return nil, fmt.Errorf("unmarshal seller responses: %w", err)
		}
	}
	return cr, nil
}
