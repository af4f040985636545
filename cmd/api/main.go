package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbook/booking-platform/internal/api/router"
	"github.com/clinicbook/booking-platform/internal/booking"
	appconfig "github.com/clinicbook/booking-platform/internal/config"
	"github.com/clinicbook/booking-platform/internal/directory"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/http/handlers"
	"github.com/clinicbook/booking-platform/internal/locker"
	"github.com/clinicbook/booking-platform/internal/observability/metrics"
	"github.com/clinicbook/booking-platform/internal/storage"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking API server", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres in real deployments, in-memory when DATABASE_URL is
	// unset (local development and demos).
	var store storage.Store
	if cfg.DatabaseURL != "" {
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
		store = storage.NewPostgres(pool, cfg.SlotLockWait)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store = storage.NewMemory()
	}

	// Locker: Redis serializes slots across nodes; the in-process locker
	// is enough for a single node.
	var locks locker.Locker
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		locks = locker.NewRedis(client, logger)
	} else {
		locks = locker.NewLocal()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(registry)

	bookingSvc := booking.NewService(store, locks, bookingMetrics, logger, &booking.Options{
		HorizonDays:         cfg.BookingHorizonDays,
		RequireConfirmation: cfg.RequireConfirmation,
		LockWait:            cfg.SlotLockWait,
		LockTTL:             cfg.SlotLockTTL,
	})
	directorySvc := directory.NewService(store, logger)

	// Outbox delivery runs alongside the API so events flow without a
	// separate worker deployment.
	deliverer := events.NewDeliverer(store, events.NewLogHandler(logger), logger).
		WithBatchSize(int32(cfg.OutboxBatch)).
		WithInterval(cfg.OutboxInterval)
	go deliverer.Start(ctx)

	r := router.New(&router.Config{
		Logger:         logger,
		Booking:        handlers.NewBookingHandler(bookingSvc, logger),
		Directory:      handlers.NewDirectoryHandler(directorySvc, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	deliverer.Drain(shutdownCtx)

	logger.Info("server stopped")
}
