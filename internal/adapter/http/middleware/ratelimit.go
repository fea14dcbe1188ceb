package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redisStore "marketplace-wallet/internal/adapter/storage/redis"
	"marketplace-wallet/pkg/apperror"
	"marketplace-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// RateLimitChecker counts hits against a fixed window.
type RateLimitChecker interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redisStore.RateLimitResult, error)
}

// Endpoint groups with their own counters.
const (
	GroupCheckout      = "checkout"
	GroupSettlements   = "settlements"
	GroupCancellations = "cancellations"
	GroupWallet        = "wallet"
	GroupAdmin         = "admin"
)

// DefaultRateLimitRules returns the per-group limits. admin takes the
// configured limit.
func DefaultRateLimitRules(admin RateLimitRule) map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupCheckout:      {Limit: 30, Window: time.Minute},
		GroupSettlements:   {Limit: 60, Window: time.Minute},
		GroupCancellations: {Limit: 20, Window: time.Minute},
		GroupWallet:        {Limit: 60, Window: time.Minute},
		GroupAdmin:         admin,
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store RateLimitChecker, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		// Always set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated callers by account, others by IP.
func extractIdentifier(c *gin.Context) string {
	if id := c.GetString(CtxAccountID); id != "" {
		return "acct:" + id
	}
	return "ip:" + c.ClientIP()
}
