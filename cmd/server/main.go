// Package main is the entry point for the storecount API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"storecount/internal/core/security"
	"storecount/internal/core/tx"
	"storecount/internal/domain/auth"
	"storecount/internal/domain/catalog"
	"storecount/internal/domain/counting"
	"storecount/internal/domain/ledger"
	"storecount/internal/infrastructure/config"
	v1 "storecount/internal/infrastructure/http/v1"
	"storecount/internal/infrastructure/lock"
	"storecount/internal/infrastructure/storage/memory"
	"storecount/internal/infrastructure/storage/postgres"
	"storecount/internal/infrastructure/storage/postgres/auth_repo"
	"storecount/internal/infrastructure/storage/postgres/catalog_repo"
	"storecount/internal/infrastructure/storage/postgres/count_repo"
	"storecount/internal/infrastructure/storage/postgres/ledger_repo"
	"storecount/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting storecount server", "env", cfg.App.Env, "storage", cfg.Storage.Driver, "version", version)

	// --- Storage ---
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize storage", "error", err)
	}
	defer st.close()

	// --- Close guard ---
	locker, closeLocker := newLocker(ctx, cfg, log)
	defer closeLocker()

	// --- Services ---
	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.JWT.Secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: cfg.JWT.AccessTTL,
	})

	ledgerService := ledger.NewService(st.movements)
	countingService := counting.NewService(counting.Dependencies{
		Sessions:   st.sessions,
		Items:      st.items,
		Products:   st.products,
		Ledger:     ledgerService,
		Authorizer: st.authorizer,
		TxManager:  st.txm,
		Locker:     locker,
	})

	// Audit trail and outbox need Postgres.
	var audit *postgres.AuditLog
	if st.pgTx != nil {
		audit, err = postgres.NewAuditLog(st.pgTx)
		if err != nil {
			log.Fatalw("failed to create audit log", "error", err)
		}
		registerHooks(countingService, postgres.NewOutboxPublisher(st.pgTx), audit)
	}

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		Authorizer:   st.authorizer,
		Counting:     countingService,
		Ledger:       ledgerService,
		Products:     st.products,
		Pool:         st.pool,
		AppName:      cfg.App.Name,
		Version:      version,
	}
	if audit != nil {
		routerCfg.Audit = audit
	}
	if cfg.Idempotency.Enabled && st.pool != nil {
		routerCfg.Idempotency = postgres.NewIdempotencyStore(st.pool, cfg.Idempotency.TTL)
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// storage is the set of repositories behind the services.
type storage struct {
	txm        tx.Manager
	sessions   counting.SessionRepository
	items      counting.ItemRepository
	products   catalog.Repository
	movements  ledger.Repository
	authorizer security.Authorizer

	// pool and pgTx are nil on the memory driver.
	pool  *postgres.Pool
	pgTx  *postgres.TxManager
	close func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		mem := memory.New()
		return &storage{
			txm:        mem.Tx,
			sessions:   mem.Sessions,
			items:      mem.Items,
			products:   mem.Products,
			movements:  mem.Movements,
			authorizer: security.NewClaimsAuthorizer(),
			close:      func() {},
		}, nil
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	poolCfg.ApplicationName = cfg.App.Name

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)
	st := &storage{
		txm:        txm,
		sessions:   count_repo.NewSessionRepo(txm),
		items:      count_repo.NewItemRepo(txm),
		products:   catalog_repo.NewProductRepo(txm),
		movements:  ledger_repo.NewMovementRepo(txm),
		authorizer: security.NewClaimsAuthorizer(),
		pool:       pool,
		pgTx:       txm,
		close:      pool.Close,
	}
	if cfg.Auth.CapabilitySource == config.CapabilitiesFromDatabase {
		st.authorizer = auth_repo.NewCapabilityRepo(txm)
	}
	return st, nil
}

// newLocker returns the distributed close guard when Redis is enabled and a
// process-local one otherwise.
func newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (counting.Locker, func()) {
	if !cfg.Redis.Enabled {
		return lock.NewLocal(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalw("failed to ping redis", "addr", cfg.Redis.Addr, "error", err)
	}
	log.Infow("redis close guard enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.LockTTL)
	return lock.NewRedis(rdb, cfg.Redis.LockTTL), func() { _ = rdb.Close() }
}
