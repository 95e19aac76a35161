package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/geo"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, "dispatch-api")

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var store storage.RideStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Warn("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var proc dispatch.PaymentProcessor
	if os.Getenv("STRIPE_API_KEY") != "" {
		proc = payments.NewStripeClient("inr")
	}

	var rnd dispatch.RandSource
	if cfg.DispatchSeed != 0 {
		rnd = rand.New(rand.NewSource(cfg.DispatchSeed))
	}

	coordinator := dispatch.New(dispatch.Config{
		Policy:   policyFromConfig(cfg.MatchPolicy),
		Fare:     pipelineFromConfig(cfg, logger),
		Store:    store,
		Payments: proc,
		Rand:     rnd,
		Logger:   logger,
	})

	wsNotifier := notify.NewWSNotifier(logger)
	coordinator.Bus().Subscribe(wsNotifier)
	coordinator.Bus().Subscribe(events.ListenerFunc(func(kind, message string) {
		logger.Info("domain_event", "kind", kind, "message", message)
	}))
	if cfg.WebhookEndpoint != "" {
		coordinator.Bus().Subscribe(notify.NewWebhookNotifier(cfg.WebhookEndpoint, os.Getenv("WEBHOOK_TOKEN")))
	}

	srv := httpapi.NewServer(coordinator, wsNotifier, logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewEventProducer(cfg.KafkaBrokers, cfg.KafkaEventTopic)
		defer producer.Close()
		coordinator.Bus().Subscribe(producer)

		srv.Locations = ingest.NewLocationProducer(cfg.KafkaBrokers, cfg.KafkaLocTopic)
		defer srv.Locations.Close()
	}
	if cfg.RedisAddr != "" {
		srv.Mirror = geo.NewRedisMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer srv.Mirror.Close()
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func policyFromConfig(name string) match.Policy {
	if name == "rated" {
		return match.HighestRated{}
	}
	return match.NearestFirst{}
}

// pipelineFromConfig composes the active fare pipeline inner-to-outer:
// base, surge, discount, toll. Out-of-bounds parameters are fatal.
func pipelineFromConfig(cfg config.ServerConfig, logger *slog.Logger) pricing.Stage {
	var stage pricing.Stage = pricing.Base{}
	var err error
	if cfg.SurgeMultiplier != 1 {
		if stage, err = pricing.NewSurge(stage, cfg.SurgeMultiplier); err != nil {
			logger.Error("bad surge config", "error", err)
			os.Exit(1)
		}
	}
	if cfg.DiscountPct != 0 {
		if stage, err = pricing.NewDiscount(stage, cfg.DiscountPct); err != nil {
			logger.Error("bad discount config", "error", err)
			os.Exit(1)
		}
	}
	if cfg.TollSurcharge != 0 {
		if stage, err = pricing.NewToll(stage, cfg.TollSurcharge); err != nil {
			logger.Error("bad toll config", "error", err)
			os.Exit(1)
		}
	}
	return stage
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open failed", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		logger.Error("migration read failed", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_rides.sql")
}
