// Package main provides a CLI tool for seeding a development database with a
// demo store, its products, opening stock and capability grants.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"storecount/internal/core/id"
	"storecount/internal/core/security"
	"storecount/internal/domain/auth"
	"storecount/internal/domain/catalog"
	"storecount/internal/domain/ledger"
	"storecount/internal/infrastructure/config"
	"storecount/internal/infrastructure/storage/postgres"
	"storecount/internal/infrastructure/storage/postgres/auth_repo"
	"storecount/internal/infrastructure/storage/postgres/catalog_repo"
	"storecount/internal/infrastructure/storage/postgres/ledger_repo"
	"storecount/pkg/logger"
)

type demoProduct struct {
	sku      string
	name     string
	category string
	unitCost string
	opening  int64
}

var demoProducts = []demoProduct{
	{"MILK-1L", "Milk 1L", "dairy", "0.89", 40},
	{"BUTTER-250", "Butter 250g", "dairy", "2.15", 18},
	{"YOGURT-NAT", "Natural yogurt", "dairy", "0.55", 0},
	{"BREAD-WHITE", "White bread", "bakery", "1.10", 25},
	{"CROISSANT", "Croissant", "bakery", "0.75", 12},
	{"APPLE-RED", "Red apples 1kg", "produce", "1.95", 30},
	{"BANANA", "Bananas 1kg", "produce", "1.25", 0},
	{"COFFEE-500", "Ground coffee 500g", "grocery", "5.40", 9},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("STORECOUNT_DATABASE_URL is required")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.URL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalw("failed to migrate", "error", err)
	}
	log.Info("connected to database")

	txm := postgres.NewTxManager(pool)
	storeID := id.FromKey("store", envOr("SEED_STORE", "demo"))

	if err := seedProducts(ctx, txm, storeID, log); err != nil {
		log.Fatalw("failed to seed products", "error", err)
	}

	managerID := envOr("SEED_MANAGER", "manager")
	viewerID := envOr("SEED_VIEWER", "viewer")
	if err := seedGrants(ctx, txm, storeID, managerID, viewerID); err != nil {
		log.Fatalw("failed to seed capability grants", "error", err)
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.JWT.Secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: cfg.JWT.AccessTTL,
	})
	token, expires, err := jwtService.GenerateAccessToken(auth.TokenSubject{
		UserID: managerID,
		Stores: map[string][]string{storeID.String(): {string(security.CapManageInventory)}},
	})
	if err != nil {
		log.Fatalw("failed to mint development token", "error", err)
	}

	log.Infow("seeding completed successfully", "store_id", storeID, "manager", managerID, "token_expires", expires)
	fmt.Println(token)
}

func seedProducts(ctx context.Context, txm *postgres.TxManager, storeID id.ID, log *logger.Logger) error {
	products := make([]catalog.StoreProduct, 0, len(demoProducts))
	for _, p := range demoProducts {
		products = append(products, catalog.StoreProduct{
			ID:       id.FromKey("product", storeID.String(), p.sku),
			StoreID:  storeID,
			SKU:      p.sku,
			Name:     p.name,
			Category: p.category,
			UnitCost: decimal.RequireFromString(p.unitCost),
			Active:   true,
		})
	}
	if err := catalog_repo.NewProductRepo(txm).Upsert(ctx, products...); err != nil {
		return err
	}

	// Opening stock is keyed per product, so re-running the seed replays
	// instead of doubling it.
	ledgerService := ledger.NewService(ledger_repo.NewMovementRepo(txm))
	for i, p := range demoProducts {
		if p.opening == 0 {
			continue
		}
		res, err := ledgerService.AppendMovement(ctx, ledger.AppendInput{
			StoreID:        storeID,
			StoreProductID: products[i].ID,
			Type:           ledger.TypeIncoming,
			Quantity:       p.opening,
			Description:    "opening stock",
			Actor:          "seed",
			IdempotencyKey: "seed:opening:" + products[i].ID.String(),
		})
		if err != nil {
			return fmt.Errorf("opening stock for %s: %w", p.sku, err)
		}
		if !res.Replayed {
			log.Infow("opening stock posted", "sku", p.sku, "quantity", p.opening)
		}
	}
	return nil
}

func seedGrants(ctx context.Context, txm *postgres.TxManager, storeID id.ID, managerID, viewerID string) error {
	grants := auth_repo.NewCapabilityRepo(txm)
	if err := grants.Grant(ctx, managerID, storeID, security.CapManageInventory); err != nil {
		return err
	}
	return grants.Grant(ctx, viewerID, storeID, security.CapViewInventory)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
