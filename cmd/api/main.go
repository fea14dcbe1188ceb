package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-wallet/config"
	"marketplace-wallet/internal/adapter/collaborator"
	httpHandler "marketplace-wallet/internal/adapter/http/handler"
	"marketplace-wallet/internal/adapter/http/middleware"
	memStorage "marketplace-wallet/internal/adapter/storage/memory"
	pgStorage "marketplace-wallet/internal/adapter/storage/postgres"
	redisStorage "marketplace-wallet/internal/adapter/storage/redis"
	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/internal/jobs"
	"marketplace-wallet/internal/service"
	"marketplace-wallet/pkg/logger"

	"github.com/rs/zerolog"
)

// storage bundles the persistence adapters picked by storage.driver.
type storage struct {
	transactor ports.DBTransactor
	wallets    ports.WalletRepository
	entries    ports.LedgerRepository
	requests   ports.CancelRequestRepository
	tasks      ports.ReleaseTaskRepository
	audit      ports.AuditRepository
	health     ports.HealthChecker
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == "memory" {
		store := memStorage.NewStore()
		log.Warn().Msg("Using in-memory storage; balances are lost on restart")
		return &storage{
			transactor: store,
			wallets:    memStorage.NewWalletRepo(store),
			entries:    memStorage.NewLedgerRepo(store),
			requests:   memStorage.NewCancelRequestRepo(store),
			tasks:      memStorage.NewReleaseTaskRepo(store),
			audit:      memStorage.NewAuditRepo(store),
			health:     store,
			close:      func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")
	return &storage{
		transactor: pgStorage.NewTransactor(pool),
		wallets:    pgStorage.NewWalletRepo(pool),
		entries:    pgStorage.NewLedgerRepo(pool),
		requests:   pgStorage.NewCancelRequestRepo(pool),
		tasks:      pgStorage.NewReleaseTaskRepo(pool),
		audit:      pgStorage.NewAuditRepo(pool),
		health:     pgStorage.NewHealthCheck(pool),
		close:      pool.Close,
	}, nil
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting Marketplace Wallet")

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Collaborator clients
	httpClient := &http.Client{Timeout: cfg.Collaborators.Timeout}
	sellers := collaborator.NewSellerDirectory(cfg.Collaborators.SellerDirectoryURL, httpClient, cfg.Collaborators.Timeout)
	orders := collaborator.NewOrderService(cfg.Collaborators.OrderServiceURL, httpClient, cfg.Collaborators.Timeout)
	inventory := collaborator.NewInventory(cfg.Collaborators.InventoryURL, httpClient, cfg.Collaborators.Timeout)
	alerts := service.NewWebhookAlertNotifier(cfg.Alert.WebhookURL, cfg.Alert.Secret, cfg.Alert.MaxRetries,
		&http.Client{Timeout: 10 * time.Second}, log)

	// Initialize core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(store.audit, log)

	ledger := service.NewLedger(store.wallets, store.entries, log)
	deps := service.Deps{
		Transactor: store.transactor,
		Wallets:    store.wallets,
		Entries:    store.entries,
		Ledger:     ledger,
		Sellers:    sellers,
		Orders:     orders,
		Inventory:  inventory,
		Alerts:     alerts,
		Log:        log,
	}

	// Initialize business services
	transferSvc := service.NewTransferService(deps, hashSvc, idempotencyCache, service.TransferOptions{
		Timeout:        cfg.Transfer.Timeout,
		LegTimeout:     cfg.Transfer.LegTimeout,
		IdempotencyTTL: cfg.Transfer.IdempotencyTTL,
	})
	settlementSvc := service.NewSettlementService(deps, store.tasks, store.requests, service.SettlementOptions{
		AutoConfirmAfter: cfg.Settlement.AutoConfirmAfter,
		BatchSize:        cfg.Settlement.BatchSize,
	})
	cancellationSvc := service.NewCancellationService(deps, store.requests)
	reversalSvc := service.NewReversalService(deps, idempotencyCache)
	ledgerSvc := service.NewLedgerQueryService(store.entries)
	walletSvc := service.NewWalletService(store.transactor, store.wallets, ledger, hashSvc, log)

	// Background jobs
	scheduler := jobs.NewScheduler(log)
	releaseJobs := jobs.NewReleaseJobs(settlementSvc, time.Minute, log)
	if err := scheduler.Register("settlement_sweep", cfg.Settlement.SweepSchedule, releaseJobs.SweepAutoConfirm); err != nil {
		log.Fatal().Err(err).Msg("Failed to register settlement sweep")
	}
	scheduler.Start()

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TransferSvc:     transferSvc,
		SettlementSvc:   settlementSvc,
		CancellationSvc: cancellationSvc,
		WalletSvc:       walletSvc,
		ReversalSvc:     reversalSvc,
		LedgerSvc:       ledgerSvc,
		TokenSvc:        tokenSvc,
		Sellers:         sellers,
		Orders:          orders,
		RateLimitStore:  rateLimitStore,
		AdminRateLimit:  middleware.RateLimitRule{Limit: int64(cfg.RateLimit.Limit), Window: cfg.RateLimit.Window},
		HealthCheckers:  []ports.HealthChecker{store.health, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:        auditSvc,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Logger:          log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	scheduler.Stop()
	alerts.Wait()
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}
