package domain

import "time"

// RollbackAlert reports a compensation that could not complete. The ledger
// and wallets may disagree with the order collaborator until an operator acts.
type RollbackAlert struct {
	OrderRef    string    `json:"order_ref"`
	Operation   string    `json:"operation"`
	Cause       string    `json:"cause"`
	FailedSteps []string  `json:"failed_steps"`
	OccurredAt  time.Time `json:"occurred_at"`
}
