package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/heatmyhome-form/internal/adapter/http"
	"github.com/couchcryptid/heatmyhome-form/internal/app"
	"github.com/couchcryptid/heatmyhome-form/internal/config"
	"github.com/couchcryptid/heatmyhome-form/internal/form"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

func main() {
	// A missing .env is fine; the environment wins anyway.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	sim, err := app.NewBackend(cfg, logger)
	if err != nil {
		logger.Error("failed to build simulation backend", "backend", cfg.SimBackend, "error", err)
		os.Exit(1)
	}
	logger.Info("simulation backend ready", "backend", sim.Name(), "timeout", cfg.SimTimeout)

	store := form.NewStore(app.NewDeps(cfg, sim, metrics, logger), cfg.SessionIdleTimeout)

	srv := httpadapter.NewServer(cfg.HTTPAddr, store, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Expire idle sessions.
	g.Go(func() error { return store.Run(gctx) })

	if sim.Run != nil {
		g.Go(func() error { return sim.Run(gctx) })
	}

	// Shut down on a signal or when any loop fails.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	store.Close()
	if sim.Close != nil {
		if err := sim.Close(); err != nil {
			logger.Error("simulation backend close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
