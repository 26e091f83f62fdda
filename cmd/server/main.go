// Command server runs the family finance API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FACorreiaa/family-finance-tracker/cmd/api"
	"github.com/FACorreiaa/family-finance-tracker/pkg/config"
	"github.com/FACorreiaa/family-finance-tracker/pkg/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := api.NewLogger(os.Stdout, cfg.Observability.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := api.InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	go limiter.Run(ctx, time.Minute)

	if deps.Scheduler != nil {
		if err := deps.Scheduler.Start(); err != nil {
			return err
		}
		defer func() { <-deps.Scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           deps.Routes(limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
