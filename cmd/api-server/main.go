package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buildhub/db"
	"buildhub/db/memory"
	"buildhub/db/migrations"
	"buildhub/internal/auth"
	"buildhub/internal/bids"
	"buildhub/internal/config"
	"buildhub/internal/handlers"
	"buildhub/internal/logger"
	"buildhub/internal/orders"
	"buildhub/internal/projects"
	"buildhub/internal/workflow"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logger.Fatal("Invalid configuration", map[string]any{"error": err.Error()})
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("Unknown log level, keeping info", map[string]any{"level": cfg.LogLevel})
	}

	store, closeStore := openStore(cfg)
	defer closeStore()

	provider := auth.NewProvider(store, []byte(cfg.JWTSecret), cfg.SessionTTL)
	lifecycle := projects.NewLifecycle(store)
	ledger := bids.NewLedger(store, lifecycle, cfg.Policy.Bids)
	fulfillment := orders.NewFulfillment(store, cfg.Policy.Orders)
	flow := workflow.New(store, provider, lifecycle, ledger, fulfillment, cfg.OperationTimeout)

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           handlers.NewHandler(flow, provider).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", map[string]any{"addr": cfg.ServerAddress, "store": cfg.Store})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", map[string]any{"error": err.Error()})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]any{"error": err.Error()})
	}
	logger.Info("Server stopped", nil)
}

func openStore(cfg config.Config) (db.Store, func()) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("Using in-memory store, data is lost on restart", nil)
		return memory.New(), func() {}
	}

	dbConn, err := sqlx.Connect(cfg.DatabaseDriver, cfg.PostgresConn)
	if err != nil {
		logger.Fatal("Cannot connect to DB", map[string]any{"error": err.Error()})
	}
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := migrations.Run(dbConn.DB); err != nil {
		logger.Fatal("Migrations failed", map[string]any{"error": err.Error()})
	}
	version, err := migrations.Version(dbConn.DB)
	if err == nil {
		logger.Info("Schema ready", map[string]any{"version": version})
	}

	return db.NewStorage(dbConn, cfg.LockTimeout), func() { _ = dbConn.Close() }
}
