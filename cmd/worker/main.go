// Package main is the entry point for the storecount background worker. It
// relays the transactional outbox and expires idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storecount/internal/infrastructure/config"
	"storecount/internal/infrastructure/storage/postgres"
	"storecount/pkg/logger"
)

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

	if cfg.Storage.Driver != config.DriverPostgres {
		log.Fatalw("worker requires postgres storage", "driver", cfg.Storage.Driver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting storecount worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.ApplicationName = cfg.App.Name + "-worker"

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	worker := &Worker{
		relay:       postgres.NewOutboxRelay(txm, cfg.Worker.BatchSize, postgres.OutboxHandlerFunc(NewEventHandler(log))),
		idempotency: postgres.NewIdempotencyStore(pool, cfg.Idempotency.TTL),
		cfg:         cfg.Worker,
		log:         log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker polls the outbox and periodically removes expired idempotency keys.
type Worker struct {
	relay       *postgres.OutboxRelay
	idempotency *postgres.IdempotencyStore
	cfg         config.WorkerConfig
	log         *logger.Logger
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		}
	}
}

// drainOutbox processes full batches back to back until the outbox runs dry.
func (w *Worker) drainOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n < w.cfg.BatchSize {
			return
		}
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	removed, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", removed)
	}

	if pending, err := w.relay.PendingCount(ctx); err == nil && pending > 0 {
		w.log.Infow("outbox backlog", "pending", pending)
	}
}
