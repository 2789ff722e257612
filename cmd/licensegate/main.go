package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poyrazK/licensegate/internal/adapters/api"
	"github.com/poyrazK/licensegate/internal/adapters/events"
	"github.com/poyrazK/licensegate/internal/adapters/ratelimit"
	"github.com/poyrazK/licensegate/internal/adapters/repository"
	"github.com/poyrazK/licensegate/internal/adapters/security"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/poyrazK/licensegate/internal/core/services"
	"github.com/poyrazK/licensegate/internal/infrastructure/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("license server exited", "error", err)
		os.Exit(1)
	}
}

// app holds the wired components of one server process.
type app struct {
	handler http.Handler
	service *services.LicenseService
	limiter *ratelimit.SlidingWindow
	sweeper *services.ExpirySweeper
	window  time.Duration
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	repo, closeStore, err := repository.Open(ctx, cfg.Store, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{window: cfg.RateLimitWindow, closers: []func() error{closeStore}}

	var publisher ports.EventPublisher
	if cfg.RedisAddr != "" {
		rp := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err := rp.Ping(ctx); err != nil {
			logger.Warn("event bus unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		publisher = rp
		a.closers = append(a.closers, rp.Close)
	}

	tokens, err := security.NewTokenAuthority(cfg.AdminSecret, cfg.TokenTTL)
	if err != nil {
		a.close(logger)
		return nil, err
	}

	a.limiter = ratelimit.NewSlidingWindow(cfg.RateLimitPerMinute, cfg.RateLimitWindow)
	a.service = services.NewLicenseService(repo, publisher, logger)
	a.sweeper = services.NewExpirySweeper(a.service, cfg.SweepInterval, logger)

	handler := api.NewAPIHandler(a.service, tokens, a.limiter, api.RateLimitOptions{
		Delay:             cfg.RateLimitDelay,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	a.handler = mux

	return a, nil
}

func (a *app) close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("failed to release resource", "error", err)
		}
	}
}

// serve runs the HTTP server, the limiter cleanup and the expiry sweeper until ctx is
// cancelled, then drains in-flight requests for at most shutdownTimeout.
func (a *app) serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	a.limiter.Start(a.window)
	defer a.limiter.Stop()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		a.sweeper.Start(sweepCtx)
	}()
	defer func() {
		cancelSweep()
		<-sweepDone
	}()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("license API listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down license API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	return a.serve(ctx, ln, cfg.ShutdownTimeout, logger)
}
