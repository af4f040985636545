package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	appconfig "github.com/clinicbook/booking-platform/internal/config"
	"github.com/clinicbook/booking-platform/internal/storage"
	"github.com/clinicbook/booking-platform/internal/sweeper"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Standalone expiry sweeper. Run one instance; each expiry locks its
// appointment row, so an overlapping run is safe, just wasteful.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting expiry sweeper",
		"pending_ttl", cfg.PendingTTL.String(),
		"interval", cfg.SweepInterval.String(),
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	store := storage.NewPostgres(pool, cfg.SlotLockWait)
	sw := sweeper.New(store, nil, logger, &sweeper.Options{
		PendingTTL: cfg.PendingTTL,
		Interval:   cfg.SweepInterval,
		BatchSize:  cfg.SweepBatch,
	})

	sw.Run(ctx)
	logger.Info("sweeper stopped")
}
