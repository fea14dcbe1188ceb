package service

import (
	"fmt"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/pkg/apperror"
)

// BalanceOp is one of the wallet mutations the ledger can post.
type BalanceOp int

const (
	OpCredit         BalanceOp = iota + 1 // +available
	OpCreditPending                       // +pending
	OpDebit                               // -available
	OpCancelPending                       // -pending
	OpReleasePending                      // pending -> available
	OpRestorePending                      // available -> pending
)

// signedEffect is the signed amount an op leaves in its entry's bucket.
func (op BalanceOp) signedEffect(amount int64) (domain.Bucket, int64) {
	switch op {
	case OpCredit, OpReleasePending:
		return domain.BucketAvailable, amount
	case OpDebit, OpRestorePending:
		return domain.BucketAvailable, -amount
	case OpCreditPending:
		return domain.BucketPending, amount
	default:
		return domain.BucketPending, -amount
	}
}

// inverse returns the op that undoes op.
func (op BalanceOp) inverse() BalanceOp {
	switch op {
	case OpCredit:
		return OpDebit
	case OpDebit:
		return OpCredit
	case OpCreditPending:
		return OpCancelPending
	case OpCancelPending:
		return OpCreditPending
	case OpReleasePending:
		return OpRestorePending
	default:
		return OpReleasePending
	}
}

// opForEntry recovers the op that produced e from its kind and bucket.
func opForEntry(e *domain.LedgerEntry) BalanceOp {
	switch {
	case e.Kind == domain.EntryKindReceiveConfirmed:
		if e.Amount >= 0 {
			return OpReleasePending
		}
		return OpRestorePending
	case e.Bucket == domain.BucketPending:
		if e.Amount >= 0 {
			return OpCreditPending
		}
		return OpCancelPending
	default:
		if e.Amount >= 0 {
			return OpCredit
		}
		return OpDebit
	}
}

// applyBalance returns w after op, or an error and w untouched. The wallet
// record is a plain value; nothing here writes anywhere.
func applyBalance(w domain.Wallet, op BalanceOp, amount int64, now time.Time) (domain.Wallet, error) {
	if amount <= 0 {
		return w, apperror.ErrInvalidAmount()
	}
	if !w.IsActive {
		return w, apperror.ErrWalletInactive()
	}

	next := w
	switch op {
	case OpCredit:
		next.AvailableBalance += amount
	case OpCreditPending:
		next.PendingBalance += amount
	case OpDebit:
		next.AvailableBalance -= amount
	case OpCancelPending:
		next.PendingBalance -= amount
	case OpReleasePending:
		next.PendingBalance -= amount
		next.AvailableBalance += amount
	case OpRestorePending:
		next.AvailableBalance -= amount
		next.PendingBalance += amount
	default:
		return w, apperror.InternalError(fmt.Errorf("unknown balance op %d", op))
	}

	// Overflow check: a credit must never shrink a balance.
	if next.AvailableBalance < w.AvailableBalance && (op == OpCredit || op == OpReleasePending) ||
		next.PendingBalance < w.PendingBalance && (op == OpCreditPending || op == OpRestorePending) {
		return w, apperror.ErrInvalidAmount()
	}
	if next.AvailableBalance < 0 {
		return w, apperror.ErrInsufficientBalance().WithBalances(w.AvailableBalance, w.PendingBalance)
	}
	if next.PendingBalance < 0 {
		return w, apperror.ErrInsufficientPendingBalance().WithBalances(w.AvailableBalance, w.PendingBalance)
	}

	next.LastMutationAt = &now
	next.UpdatedAt = now
	return next, nil
}
