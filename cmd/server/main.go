// Package main runs the reward vault service: the settlement engine behind
// an HTTP JSON API, a live price-proof subscriber when the vault is in
// verified-live mode, and a Prometheus metrics listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/observability"
	"github.com/qara-wq/flashorca-ally-devnet/internal/pricefeed"
	chstore "github.com/qara-wq/flashorca-ally-devnet/internal/storage/clickhouse"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage/memory"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage/migrations"
	pgstore "github.com/qara-wq/flashorca-ally-devnet/internal/storage/postgres"
	"github.com/qara-wq/flashorca-ally-devnet/internal/vault"
)

func main() {
	loadEnvFile()

	httpAddr := flag.String("http-addr", envOr("HTTP_ADDR", ":8080"), "HTTP API listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the audit sink")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "WebSocket endpoint for the live price feed")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", true, "Run storage migrations on start")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, *migrate)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")
	engine := vault.NewEngine(stores, logger, metrics, func() int64 { return time.Now().Unix() })

	server := &Server{
		engine:  engine,
		stores:  stores,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}

	// Start the price-proof subscriber when the vault already runs in
	// verified-live mode. A mode change requires a restart to pick up the
	// canonical accounts.
	if *wsEndpoint != "" {
		if feed, err := startPricefeed(ctx, *wsEndpoint, stores, logger, metrics); err != nil {
			logger.Printf("Price feed not started: %v", err)
		} else if feed != nil {
			server.feed = feed
			defer feed.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := server.Run(ctx, *httpAddr); err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores wires the engine's persistence. The audit sink degrades to
// memory when no ClickHouse DSN is given.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory, migrate bool) (vault.Stores, func(), error) {
	if useMemory {
		stores := vault.Stores{
			VaultState: memory.NewVaultStateStore(),
			Allies:     memory.NewAllyStore(),
			Ledgers:    memory.NewLedgerStore(),
			Risk:       memory.NewRiskProfileStore(),
			Guards:     memory.NewClaimGuardStore(),
			Audit:      memory.NewAuditStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return vault.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return vault.Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	stores := vault.Stores{
		VaultState: pgstore.NewVaultStateStore(pool),
		Allies:     pgstore.NewAllyStore(pool),
		Ledgers:    pgstore.NewLedgerStore(pool),
		Risk:       pgstore.NewRiskProfileStore(pool),
		Guards:     pgstore.NewClaimGuardStore(pool),
	}
	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return vault.Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.Audit = chstore.NewAuditStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	} else {
		stores.Audit = memory.NewAuditStore()
	}

	return stores, cleanup, nil
}

// startPricefeed reads the stored oracle config and starts a subscriber for
// the canonical accounts when live verification is active.
func startPricefeed(ctx context.Context, endpoint string, stores vault.Stores, logger *log.Logger, metrics *observability.Metrics) (*pricefeed.Subscriber, error) {
	cfg, err := stores.VaultState.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault not initialized yet")
	}
	if cfg.PriceMode != domain.PriceModeVerifiedLive {
		logger.Printf("Price mode is %s, live feed not needed", cfg.PriceMode)
		return nil, nil
	}

	feedCfg := pricefeed.DefaultConfig()
	feedCfg.Endpoint = endpoint
	feedCfg.FeedAddress = cfg.PriceFeed
	feedCfg.PoolAddress = cfg.Pool
	feedCfg.ForcaReserve = cfg.PoolForcaReserve
	feedCfg.SolReserve = cfg.PoolSolReserve

	feed, err := pricefeed.NewSubscriber(ctx, feedCfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	logger.Printf("Price feed subscribed: feed=%s pool=%s", cfg.PriceFeed, cfg.Pool)
	return feed, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
