// Package main is the entry point for the retailstock API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"retailstock/internal/domain/auth"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/domain/registers/stock"
	"retailstock/internal/domain/reports"
	"retailstock/internal/infrastructure/config"
	v1 "retailstock/internal/infrastructure/http/v1"
	"retailstock/internal/infrastructure/http/v1/handlers"
	"retailstock/internal/infrastructure/http/v1/middleware"
	"retailstock/internal/infrastructure/idempotency"
	"retailstock/internal/infrastructure/storage/memory"
	"retailstock/internal/infrastructure/storage/postgres"
	"retailstock/internal/infrastructure/storage/postgres/auth_repo"
	"retailstock/internal/infrastructure/storage/postgres/catalog_repo"
	"retailstock/internal/infrastructure/storage/postgres/register_repo"
	"retailstock/internal/infrastructure/storage/postgres/report_repo"
	"retailstock/internal/infrastructure/storage/redisstore"
	"retailstock/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	migrate := flag.Bool("migrate", false, "apply pending schema migrations before serving")
	flag.Parse()

	// A missing .env is fine; real deployments pass the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development || cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting retailstock server", "env", cfg.App.Env)

	if *migrate {
		if err := runMigrations(ctx, cfg.Database.DSN); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
	}

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.ApplicationName = "retailstock"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool,
		postgres.WithStatementTimeout(cfg.Database.StatementTimeout),
		postgres.WithRetryPolicy(postgres.RetryPolicy{
			MaxAttempts: cfg.Database.TxRetries,
			BaseDelay:   cfg.Database.TxRetryDelay,
		}),
	)

	// --- Repositories ---
	accountRepo := catalog_repo.NewAccountRepo(txm)
	branchRepo := catalog_repo.NewBranchRepo(txm)
	productRepo := catalog_repo.NewProductRepo(txm)
	catalog := catalog_repo.CatalogLookup{ProductRepo: productRepo, Branches: branchRepo}
	stockRepo := register_repo.NewStockRepo(txm)
	movementRepo := register_repo.NewMovementRepo(txm)
	logRepo, err := postgres.NewMovementLogRepo(txm)
	if err != nil {
		log.Fatalw("failed to create movement log repository", "error", err)
	}
	userRepo := auth_repo.NewUserRepo(txm)

	// --- Services ---
	jwtConfig := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
	jwtConfig.Issuer = cfg.Auth.Issuer
	jwtConfig.AccessTokenTTL = cfg.Auth.AccessTokenTTL
	jwtService := auth.NewJWTService(jwtConfig)

	authConfig := auth.DefaultServiceConfig()
	authConfig.MaxLoginAttempts = cfg.Auth.MaxLoginAttempts
	authConfig.LockDuration = cfg.Auth.LockDuration
	authService := auth.NewService(userRepo, branchRepo, txm, jwtService, authConfig)

	location, err := cfg.Ledger.Location()
	if err != nil {
		log.Fatalw("invalid report time zone", "error", err)
	}

	engine := ledger.NewEngine(txm, stockRepo, movementRepo, logRepo, catalog)
	reportService := reports.NewService(report_repo.NewReportRepo(txm), logRepo, txm, reports.Config{
		RecentWindow: cfg.Ledger.RecentWindow,
		Location:     location,
	})

	healthChecks := map[string]handlers.Pinger{"postgres": pool}

	// --- Idempotency ---
	idem, redisClient, err := newIdempotencyStore(ctx, cfg, txm)
	if err != nil {
		log.Fatalw("failed to set up idempotency store", "backend", cfg.Idempotency.Backend, "error", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		healthChecks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	cleanupDone := make(chan struct{})
	if cleaner, ok := idem.(idempotency.Cleaner); ok {
		go func() {
			defer close(cleanupDone)
			idempotency.RunCleanup(cleanupCtx, cleaner, cfg.Idempotency.CleanupInterval)
		}()
	} else {
		close(cleanupDone)
	}

	var rateLimit *middleware.RateLimitConfig
	if cfg.HTTP.RateLimitEnabled {
		rateLimit = &middleware.RateLimitConfig{
			Requests: cfg.HTTP.RateLimitRequests,
			Window:   cfg.HTTP.RateLimitWindow,
		}
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		Development:  cfg.App.IsDevelopment(),
		JWTValidator: jwtService,
		AuthService:  authService,
		Accounts:     account.NewService(accountRepo, txm),
		Branches:     branch.NewService(branchRepo, txm, accountRepo, authService),
		Products:     product.NewService(productRepo, txm, branchRepo),
		Stock:        stock.NewService(stockRepo, txm),
		Ledger:       ledger.NewService(engine, txm, movementRepo, catalog),
		Reports:      reportService,
		Catalog:      catalog,
		Idempotency:  idem,
		RateLimit:    rateLimit,
		HealthChecks: healthChecks,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port, "idempotency", cfg.Idempotency.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	stopCleanup()
	<-cleanupDone

	postgres.LogPoolStats(ctx, pool.Unwrap())
	log.Info("server stopped")
}

// newIdempotencyStore builds the configured store. The Redis client is
// returned so the caller can close and health-check it.
func newIdempotencyStore(ctx context.Context, cfg *config.Config, txm *postgres.TxManager) (idempotency.Store, *redis.Client, error) {
	if !cfg.Idempotency.Enabled {
		return nil, nil, nil
	}

	switch cfg.Idempotency.Backend {
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewIdempotencyStore(client, "retailstock:idem:", cfg.Idempotency.TTL), client, nil
	case config.BackendMemory:
		return memory.NewIdempotencyStore(cfg.Idempotency.TTL), nil, nil
	default:
		return postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL), nil, nil
	}
}

func runMigrations(ctx context.Context, dsn string) error {
	m, err := postgres.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn(ctx, "failed to close migrator", "error", err)
		}
	}()

	started := time.Now()
	if err := m.Up(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "schema is up to date", "took", time.Since(started))
	return nil
}
