package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"marketplace-wallet/internal/core/domain"
	"marketplace-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that logs successful write operations.
// Actions are keyed on the matched route template, not the raw path.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var actorRef *string
		if id := c.GetString(CtxAccountID); id != "" {
			actorRef = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"role":   c.GetString(CtxRole),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorRef:     actorRef,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID(c),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

// resourceID picks the path parameter naming the touched resource.
func resourceID(c *gin.Context) string {
	for _, p := range []string{"id", "account"} {
		if v := c.Param(p); v != "" {
			return v
		}
	}
	return ""
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	if method != http.MethodPost && method != http.MethodPut {
		return "", ""
	}
	switch route {
	case "/api/v1/checkout/transfers":
		return domain.AuditActionCheckout, "order"
	case "/api/v1/settlements/release":
		return domain.AuditActionRelease, "order_item"
	case "/api/v1/cancellations":
		return domain.AuditActionCancelRequest, "cancel_request"
	case "/api/v1/cancellations/:id/responses":
		return domain.AuditActionCancelResponse, "cancel_request"
	case "/api/v1/wallets/me/pin":
		return domain.AuditActionSetPin, "wallet"
	case "/api/v1/wallets/me/withdraw":
		return domain.AuditActionWithdraw, "wallet"
	case "/api/v1/admin/wallets/:account/topup":
		return domain.AuditActionTopUp, "wallet"
	case "/api/v1/admin/wallets/:account/deduct":
		return domain.AuditActionAdminDeduct, "wallet"
	case "/api/v1/admin/wallets/:account/deactivate":
		return domain.AuditActionDeactivate, "wallet"
	case "/api/v1/admin/ledger/:id/reverse":
		return domain.AuditActionReversal, "ledger_entry"
	}
	return "", ""
}
