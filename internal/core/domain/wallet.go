package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the stored-balance account of one participant. Buyers and sellers
// share the same record type. Balance changes go through the ledger, never
// through methods on this value.
type Wallet struct {
	ID               uuid.UUID  `json:"id"`
	AccountID        string     `json:"account_id"`
	AvailableBalance int64      `json:"available_balance"` // In smallest unit
	PendingBalance   int64      `json:"pending_balance"`
	IsActive         bool       `json:"is_active"`
	SecurityPinHash  *string    `json:"-"` // Argon2id, never expose
	LastMutationAt   *time.Time `json:"last_mutation_at,omitempty"`
	DeactivatedAt    *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TotalBalance returns available plus pending.
func (w *Wallet) TotalBalance() int64 {
	return w.AvailableBalance + w.PendingBalance
}

// HasPin reports whether payments from this wallet need a PIN.
func (w *Wallet) HasPin() bool {
	return w.SecurityPinHash != nil && *w.SecurityPinHash != ""
}

// NewWallet returns an active, empty wallet for accountID.
func NewWallet(accountID string, now time.Time) *Wallet {
	return &Wallet{
		ID:        uuid.New(),
		AccountID: accountID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
