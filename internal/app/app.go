package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/security-monitoring-service/internal/config"
	"github.com/sandeepkv93/security-monitoring-service/internal/health"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

// App owns the HTTP server and the background workers that share its lifetime.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner
	Alerts        *service.AlertDispatcher
	Sweeper       *service.SessionSweeper

	ShutdownTimeout time.Duration
	DrainTimeout    time.Duration
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	alerts *service.AlertDispatcher,
	sweeper *service.SessionSweeper,
) *App {
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 20 * time.Second
	}
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Readiness:       readiness,
		Alerts:          alerts,
		Sweeper:         sweeper,
		ShutdownTimeout: shutdown,
		DrainTimeout:    shutdown / 2,
	}
}

// Run serves until ctx is cancelled or the listener fails. The server stops accepting
// requests first; the workers are stopped afterwards so alerts queued by in-flight
// requests are still drained.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	workers, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	g, gctx := errgroup.WithContext(ctx)
	if a.Alerts != nil {
		g.Go(func() error { return a.Alerts.Run(workers, a.DrainTimeout) })
	}
	if a.Sweeper != nil {
		g.Go(func() error { return a.Sweeper.Run(workers) })
	}
	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", ln.Addr().String())
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopWorkers()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.ShutdownTimeout)
		defer cancel()
		a.Logger.Info("http server shutting down")
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	obsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.ShutdownTimeout)
	defer cancel()
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		a.Logger.Error("observability shutdown failed", "error", err)
	}
	a.Logger.Info("shutdown complete")
	return runErr
}
