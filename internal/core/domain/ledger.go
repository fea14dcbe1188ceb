package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind is the business meaning of a balance mutation.
type EntryKind string

const (
	EntryKindTopUp            EntryKind = "top_up"
	EntryKindPayment          EntryKind = "payment"
	EntryKindReceivePending   EntryKind = "receive_pending"
	EntryKindReceiveConfirmed EntryKind = "receive_confirmed"
	EntryKindRefund           EntryKind = "refund"
	EntryKindAdminDeduct      EntryKind = "admin_deduct"
	EntryKindWithdrawal       EntryKind = "withdrawal"
)

// Valid reports whether k is a known kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindTopUp, EntryKindPayment, EntryKindReceivePending, EntryKindReceiveConfirmed,
		EntryKindRefund, EntryKindAdminDeduct, EntryKindWithdrawal:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// Bucket names the balance component a signed amount was applied to.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketPending   Bucket = "pending"
)

// LedgerEntry is an immutable record of one balance mutation. Only the
// reversal and consumption markers are ever written after insert, each once.
type LedgerEntry struct {
	ID                    uuid.UUID   `json:"id"`
	AccountID             string      `json:"account_id"`
	WalletID              uuid.UUID   `json:"wallet_id"`
	Kind                  EntryKind   `json:"kind"`
	Bucket                Bucket      `json:"bucket"`
	Amount                int64       `json:"amount"` // Signed: credit > 0, debit < 0
	Description           string      `json:"description"`
	OrderRef              *string     `json:"order_ref,omitempty"`
	CounterpartyRef       *string     `json:"counterparty_ref,omitempty"`
	AdminRef              *string     `json:"admin_ref,omitempty"`
	AvailableBalanceAfter int64       `json:"available_balance_after"`
	PendingBalanceAfter   int64       `json:"pending_balance_after"`
	Status                EntryStatus `json:"status"`
	ReversalOfRef         *uuid.UUID  `json:"reversal_of_ref,omitempty"`
	IsReversed            bool        `json:"is_reversed"`
	ReversedAt            *time.Time  `json:"reversed_at,omitempty"`
	ReversedBy            *uuid.UUID  `json:"reversed_by,omitempty"`
	ConsumedBy            *uuid.UUID  `json:"consumed_by,omitempty"`
	ConsumedAt            *time.Time  `json:"consumed_at,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}

// IsReversal reports whether this entry undoes another entry.
func (e *LedgerEntry) IsReversal() bool {
	return e.ReversalOfRef != nil
}

// IsConsumed reports whether a receive_pending entry has been settled or cancelled.
func (e *LedgerEntry) IsConsumed() bool {
	return e.ConsumedBy != nil
}

// IsReversible returns true if the entry may be reversed now.
func (e *LedgerEntry) IsReversible() bool {
	return e.Status == EntryStatusCompleted && !e.IsReversed && !e.IsReversal()
}

// CountsTowardOutstanding reports whether the entry still contributes to an
// order's outstanding pending amount. Reversed pairs cancel each other out.
func (e *LedgerEntry) CountsTowardOutstanding() bool {
	return e.Status == EntryStatusCompleted && !e.IsReversed && !e.IsReversal()
}

// OutstandingPending sums the pending earnings a seller still holds for one
// order: receive_pending credits minus pending-bucket cancellations minus
// confirmed releases. entries must all belong to the same account and order.
func OutstandingPending(entries []LedgerEntry) int64 {
	var outstanding int64
	for i := range entries {
		e := &entries[i]
		if !e.CountsTowardOutstanding() {
			continue
		}
		switch {
		case e.Kind == EntryKindReceivePending:
			outstanding += e.Amount
		case e.Kind == EntryKindReceiveConfirmed:
			outstanding -= e.Amount
		case e.Kind == EntryKindRefund && e.Bucket == BucketPending:
			outstanding += e.Amount // stored negative
		}
	}
	return outstanding
}
