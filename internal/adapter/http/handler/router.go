package handler

import (
	"marketplace-wallet/internal/adapter/http/middleware"
	"marketplace-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	TransferSvc     ports.TransferService
	SettlementSvc   ports.SettlementService
	CancellationSvc ports.CancellationService
	WalletSvc       ports.WalletService
	ReversalSvc     ports.ReversalService
	LedgerSvc       ports.LedgerQueryService
	TokenSvc        ports.TokenService
	Sellers         ports.SellerDirectory
	Orders          ports.OrderService
	RateLimitStore  middleware.RateLimitChecker // nil = rate limiting disabled
	AdminRateLimit  middleware.RateLimitRule
	HealthCheckers  []ports.HealthChecker
	AuditSvc        ports.AuditService // nil = audit logging disabled
	MaxBodyBytes    int64
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestMetrics())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules(deps.AdminRateLimit)

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok || rule.Limit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// Every API route needs a bearer token; audit runs after the handler.
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))
	if deps.AuditSvc != nil {
		v1.Use(middleware.AuditLog(deps.AuditSvc))
	}

	checkoutHandler := NewCheckoutHandler(deps.TransferSvc)
	v1.POST("/checkout/transfers", rl(middleware.GroupCheckout), checkoutHandler.Transfer)

	settlementHandler := NewSettlementHandler(deps.SettlementSvc, deps.Orders)
	settlements := v1.Group("/settlements", rl(middleware.GroupSettlements))
	{
		settlements.POST("/release", settlementHandler.Release)
		settlements.POST("/schedule", middleware.AdminOnly(), settlementHandler.Schedule)
	}

	cancellationHandler := NewCancellationHandler(deps.CancellationSvc, deps.Sellers)
	cancellations := v1.Group("/cancellations", rl(middleware.GroupCancellations))
	{
		cancellations.POST("", cancellationHandler.Create)
		cancellations.GET("", cancellationHandler.ListPending)
		cancellations.GET("/:id", cancellationHandler.Get)
		cancellations.POST("/:id/responses", cancellationHandler.Respond)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := v1.Group("/wallets/me", rl(middleware.GroupWallet))
	{
		wallets.GET("", walletHandler.GetMine)
		wallets.PUT("/pin", walletHandler.SetPin)
		wallets.POST("/withdraw", walletHandler.Withdraw)
	}

	adminHandler := NewAdminHandler(deps.WalletSvc, deps.ReversalSvc, deps.LedgerSvc)
	admin := v1.Group("/admin", middleware.AdminOnly(), rl(middleware.GroupAdmin))
	{
		admin.POST("/wallets/:account/topup", adminHandler.TopUp)
		admin.POST("/wallets/:account/deduct", adminHandler.Deduct)
		admin.POST("/wallets/:account/deactivate", adminHandler.Deactivate)
		admin.GET("/ledger", adminHandler.ListLedger)
		admin.POST("/ledger/:id/reverse", adminHandler.Reverse)
		admin.GET("/ledger/:id/chain", adminHandler.GetChain)
	}

	return r
}
