package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"social-campaign-engine/internal/api"
	"social-campaign-engine/internal/config"
	"social-campaign-engine/internal/oauth"
	"social-campaign-engine/internal/platform"
	"social-campaign-engine/internal/store"
	"social-campaign-engine/internal/token"
)

func main() {
	logger := log.New(log.Writer(), "[api] ", log.LstdFlags)
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

	var sessions oauth.SessionStore
	switch cfg.SessionBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		sessions = oauth.NewRedisStore(rdb, cfg.SessionTTL)
		logger.Printf("oauth sessions backed by redis at %s", cfg.RedisAddr)
	default:
		sessions = oauth.NewMemoryStore(cfg.SessionTTL)
	}
	go oauth.RunSweeper(ctx, sessions, cfg.SweepInterval, logger)

	xClient := platform.NewClient(platform.Config{
		ClientID:     cfg.XClientID,
		ClientSecret: cfg.XClientSecret,
		RedirectURL:  cfg.XRedirectURL,
		AuthURL:      cfg.XAuthURL,
		APIBaseURL:   cfg.XAPIBaseURL,
	})
	flow := oauth.NewFlow("x", xClient, sessions, token.NewSigner(cfg.StateSecret), st, cfg.FrontendURL, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.New(cfg, st, flow, logger).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
