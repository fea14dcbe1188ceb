package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCheckout       AuditAction = "CHECKOUT"
	AuditActionTopUp          AuditAction = "TOPUP"
	AuditActionAdminDeduct    AuditAction = "ADMIN_DEDUCT"
	AuditActionReversal       AuditAction = "REVERSAL"
	AuditActionDeactivate     AuditAction = "DEACTIVATE"
	AuditActionCancelRequest  AuditAction = "CANCEL_REQUEST"
	AuditActionCancelResponse AuditAction = "CANCEL_RESPONSE"
	AuditActionSetPin         AuditAction = "SET_PIN"
	AuditActionWithdraw       AuditAction = "WITHDRAW"
	AuditActionRelease        AuditAction = "RELEASE"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorRef     *string     `json:"actor_ref,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
