package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rekorcheck/internal/config"
	"rekorcheck/internal/infra/db"
	httpinfra "rekorcheck/internal/infra/http"
)

func main() {
	cfg := config.FromEnv()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	store, err := db.NewStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()
	if store.Enabled() {
		if err := store.Migrate(context.Background()); err != nil {
			log.Fatalf("failed to migrate store: %v", err)
		}
	}

	srv, err := httpinfra.NewServer(cfg, store, logger)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if monitor := srv.Monitor(); monitor != nil {
		go func() {
			if err := monitor.Run(ctx); err != nil {
				logger.Error("monitor exited", "error", err)
			}
		}()
	} else if cfg.MonitorInterval() > 0 {
		logger.Warn("monitor disabled: set POSTGRES_DSN or CHECKPOINT_FILE to store checkpoints")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.HTTPAddr, "rekor_url", cfg.RekorURL)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server exited: %v", err)
	}
}
