package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learncoins-ledger/config"
	httpHandler "learncoins-ledger/internal/adapter/http/handler"
	"learncoins-ledger/internal/adapter/messaging"
	"learncoins-ledger/internal/adapter/storage/memory"
	pgStorage "learncoins-ledger/internal/adapter/storage/postgres"
	redisStorage "learncoins-ledger/internal/adapter/storage/redis"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/internal/jobs"
	"learncoins-ledger/internal/service"
	"learncoins-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

// repositories groups the storage ports for whichever driver is configured.
type repositories struct {
	transactor   ports.Transactor
	wallets      ports.WalletRepository
	transactions ports.TransactionRepository
	products     ports.ProductRepository
	cart         ports.CartRepository
	orders       ports.OrderRepository
	idempotency  ports.IdempotencyRepository
	audit        ports.AuditRepository
	health       []ports.HealthChecker
	close        func()
}

// counters groups the Redis-backed stores, or their in-process fallbacks.
type counters struct {
	idempCache ports.IdempotencyCache
	claims     ports.ClaimGuard
	pinLimiter ports.PinAttemptLimiter
	rateLimit  ports.RateLimitStore
	health     []ports.HealthChecker
	close      func()
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting LearnCoins ledger")

	ctx := context.Background()

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()

	stores, err := openCounters(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer stores.close()

	// Ledger events
	var events ports.EventPublisher = messaging.NopPublisher{}
	healthCheckers := append(repos.health, stores.health...)
	if cfg.NATS.URL != "" {
		nc, err := messaging.Connect(cfg.NATS, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		events = messaging.NewPublisher(nc, cfg.NATS.SubjectPrefix)
		healthCheckers = append(healthCheckers, messaging.NewHealthCheck(nc))
	} else {
		log.Info().Msg("NATS URL not set, ledger events are not published")
	}

	// Initialize core services
	initialBalance, _ := cfg.Wallet.InitialBalanceAmount()
	dailyReward, _ := cfg.Wallet.DailyRewardAmount()

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	ledgerLog := logger.Component(log, "ledger")
	pinVerifier := service.NewPinVerifier(hashSvc, stores.pinLimiter, ledgerLog)

	ledgerSvc := service.NewLedgerService(service.LedgerDeps{
		Transactor:   repos.transactor,
		Wallets:      repos.wallets,
		Transactions: repos.transactions,
		Products:     repos.products,
		Cart:         repos.cart,
		Orders:       repos.orders,
		Idempotency:  repos.idempotency,
		IdempCache:   stores.idempCache,
		Claims:       stores.claims,
		Pins:         pinVerifier,
		Events:       events,
	}, service.LedgerConfig{
		InitialBalance:      initialBalance,
		DailyReward:         dailyReward,
		DailyRewardCooldown: cfg.Wallet.DailyRewardCooldown,
		IdempotencyTTL:      cfg.Wallet.IdempotencyTTL,
	}, ledgerLog)
	walletSvc := service.NewWalletService(repos.transactor, repos.wallets, repos.transactions, pinVerifier, hashSvc, ledgerSvc, ledgerLog)
	marketSvc := service.NewMarketService(repos.products, repos.cart, repos.orders, logger.Component(log, "market"))
	auditSvc := service.NewAuditService(repos.audit, logger.Component(log, "audit"))

	// Scheduled maintenance
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		jobsLog := logger.Component(log, "jobs")
		jobSvc := service.NewJobService(repos.idempotency, repos.wallets, cfg.Jobs.IdempotencyRetention, jobsLog)
		scheduler, err = jobs.NewScheduler(cfg.Jobs, jobSvc, jobsLog)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure scheduled jobs")
		}
		scheduler.Start()
	}

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         ledgerSvc,
		Wallets:        walletSvc,
		Market:         marketSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: stores.rateLimit,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		Logger:         logger.Component(log, "http"),
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
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
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}

func openRepositories(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("Using the in-memory store, data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			transactor:   memory.NewTransactor(store),
			wallets:      memory.NewWalletRepo(store),
			transactions: memory.NewTransactionRepo(store),
			products:     memory.NewProductRepo(store),
			cart:         memory.NewCartRepo(store),
			orders:       memory.NewOrderRepo(store),
			idempotency:  memory.NewIdempotencyRepo(store),
			audit:        memory.NewAuditRepo(store),
			close:        func() {},
		}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(cfg.Database, pgStorage.MigrateUp, log); err != nil {
			return nil, err
		}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &repositories{
		transactor:   pgStorage.NewTransactor(pool),
		wallets:      pgStorage.NewWalletRepo(pool),
		transactions: pgStorage.NewTransactionRepo(pool),
		products:     pgStorage.NewProductRepo(pool),
		cart:         pgStorage.NewCartRepo(pool),
		orders:       pgStorage.NewOrderRepo(pool),
		idempotency:  pgStorage.NewIdempotencyRepo(pool),
		audit:        pgStorage.NewAuditRepo(pool),
		health:       []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
		close:        pool.Close,
	}, nil
}

func openCounters(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*counters, error) {
	if !cfg.Redis.Enabled {
		log.Warn().Msg("Redis disabled, using in-process counters (single instance only)")
		return &counters{
			idempCache: memory.NewIdempotencyCache(),
			claims:     memory.NewClaimGuard(),
			pinLimiter: memory.NewPinAttemptLimiter(cfg.Wallet.PinMaxAttempts, cfg.Wallet.PinLockoutWindow),
			rateLimit:  memory.NewRateLimitStore(),
			close:      func() {},
		}, nil
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	return &counters{
		idempCache: redisStorage.NewIdempotencyCache(rdb),
		claims:     redisStorage.NewClaimGuard(rdb),
		pinLimiter: redisStorage.NewPinAttemptLimiter(rdb, cfg.Wallet.PinMaxAttempts, cfg.Wallet.PinLockoutWindow),
		rateLimit:  redisStorage.NewRateLimitStore(rdb),
		health:     []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		close:      func() { _ = rdb.Close() },
	}, nil
}
