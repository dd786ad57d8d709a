package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/api"
	"github.com/atmx/vault-engine/internal/config"
	"github.com/atmx/vault-engine/internal/engine"
	"github.com/atmx/vault-engine/internal/events"
	"github.com/atmx/vault-engine/internal/gateway"
	"github.com/atmx/vault-engine/internal/logging"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("vault-engine failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.NewLogger(os.Stdout, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Journal store ---
	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, journal is in-memory (history will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Transfer gateway ---
	gw := gateway.New()
	var custody model.Account
	var dev api.DevLedgers

	if cfg.ETHRPCURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.ETHRPCURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Ethereum node: %w", err)
		}
		cleanup = append(cleanup, client.Close)
		for _, asset := range []model.Asset{cfg.AssetA, cfg.AssetB} {
			ledger, err := gateway.NewERC20Ledger(client, string(asset), cfg.ETHPrivateKey, cfg.ETHChainID)
			if err != nil {
				return err
			}
			gw.Register(asset, ledger)
			custody = ledger.Custody()
		}
		slog.Info("settling on ERC-20 ledgers", "chain_id", cfg.ETHChainID.String(), "custody", custody.String())
	} else {
		custody, err = cfg.Custody()
		if err != nil {
			return fmt.Errorf("invalid CUSTODY_OWNER: %w", err)
		}
		dev = api.DevLedgers{}
		for _, asset := range []model.Asset{cfg.AssetA, cfg.AssetB} {
			ledger := gateway.NewMemoryLedger(custody)
			gw.Register(asset, ledger)
			dev[asset] = ledger
		}
		slog.Warn("ETH_RPC_URL not set, using in-memory ledgers with dev faucet")
	}

	// --- Event sinks ---
	hub := api.NewHub()
	go hub.Run(ctx)
	sinks := events.Fanout{hub}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		cleanup = append(cleanup, nc.Close)
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("jetstream: %w", err)
		}
		if err := events.EnsureStream(ctx, js); err != nil {
			return err
		}
		pub := events.NewJetStreamPublisher(js, 1024)
		go func() {
			if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("event publisher stopped", "err", err)
				return
			}
			slog.Info("event publisher stopped")
		}()
		sinks = append(sinks, pub)
		slog.Info("publishing events to NATS", "stream", events.StreamName)
	}

	// --- Engine ---
	eng, err := engine.New(engine.Config{AssetA: cfg.AssetA, AssetB: cfg.AssetB, Custody: custody}, gw, st, sinks)
	if err != nil {
		return err
	}
	open, err := eng.LoadStranded(ctx)
	if err != nil {
		return err
	}
	if open > 0 {
		slog.Warn("unresolved stranded funds awaiting recovery", "count", open)
	}
	if cfg.OperatorToken == "" {
		slog.Warn("OPERATOR_TOKEN not set, recovery endpoints are disabled")
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+api.CallerHeader+", "+api.OperatorHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"vault-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	api.NewHandler(eng, st, cfg.OperatorToken).Mount(r, hub)
	if dev != nil {
		dev.Mount(r)
	}

	// --- Server ---
	// No request timeout middleware: an operation suspended on a transfer
	// must run to completion regardless of the client.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vault-engine listening", "port", cfg.Port, "asset_a", string(cfg.AssetA), "asset_b", string(cfg.AssetB))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown: in-flight operations finish their transfers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("shutting down vault-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := eng.CheckInvariants(); err != nil {
		slog.Error("ledger inconsistent at shutdown", "err", err)
	}
	slog.Info("vault-engine stopped")
	return nil
}
