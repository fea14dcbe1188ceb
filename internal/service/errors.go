package service

import (
	"context"
	"errors"
	"fmt"

	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// storageErr wraps a repository failure. Deadline and cancellation surface as
// OperationTimeout so callers can tell them from other faults; AppErrors pass
// through unchanged.
func storageErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.ErrOperationTimeout(fmt.Errorf("%s: %w", op, err))
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}

// rollback discards tx. A tx already closed by Commit is not an error.
func rollback(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(context.WithoutCancel(ctx))
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// collaboratorErr wraps a failed call to another service unless it already
// carries an AppError.
func collaboratorErr(name string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.ErrCollaboratorFailure(name, err)
}

func resolveSettlementAccount(ctx context.Context, dir ports.SellerDirectory, sellerRef string) (string, error) {
	account, err := dir.ResolveSettlementAccount(ctx, sellerRef)
	if err != nil {
		return "", collaboratorErr("seller directory", err)
	}
	if account == "" {
		return "", apperror.ErrSellerProfileNotFound(sellerRef)
	}
	return account, nil
}
