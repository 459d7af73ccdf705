package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"social-campaign-engine/internal/ai"
	"social-campaign-engine/internal/config"
	"social-campaign-engine/internal/oauth"
	"social-campaign-engine/internal/platform"
	"social-campaign-engine/internal/store"
	"social-campaign-engine/internal/telemetry"
	"social-campaign-engine/internal/worker"
)

func main() {
	logger := log.New(log.Writer(), "[worker] ", log.LstdFlags)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		logger.Fatalf("migrations: %v", err)
	}

	xClient := platform.NewClient(platform.Config{
		ClientID:     cfg.XClientID,
		ClientSecret: cfg.XClientSecret,
		RedirectURL:  cfg.XRedirectURL,
		AuthURL:      cfg.XAuthURL,
		APIBaseURL:   cfg.XAPIBaseURL,
	})

	engine := worker.New(worker.Options{
		Store:         st,
		AI:            ai.NewProvider(cfg.AIAPIKey, cfg.AIModel, cfg.AIBaseURL),
		Metrics:       platform.NewMetricsFetcher(cfg.LiveMetrics, xClient),
		Gate:          oauth.NewRefreshGate(xClient, st),
		Publisher:     xClient,
		PollInterval:  cfg.PollInterval,
		PostBatchSize: cfg.PostBatchSize,
		Logger:        logger,
	})

	// Metrics-only listener; the worker has no other HTTP surface.
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics listener: %v", err)
		}
	}()

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("worker: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Printf("worker stopped")
}
