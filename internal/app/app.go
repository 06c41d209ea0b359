package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/weapp-session-service/internal/config"
	"github.com/sandeepkv93/weapp-session-service/internal/health"
	"github.com/sandeepkv93/weapp-session-service/internal/observability"
)

// BackgroundTask runs until ctx is cancelled.
type BackgroundTask func(ctx context.Context) error

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Observability   *observability.Runtime
	Readiness       *health.ProbeRunner
	ShutdownTimeout time.Duration

	tasks   []BackgroundTask
	cleanup func() error
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	tasks []BackgroundTask,
	cleanup func() error,
) *App {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Readiness:       readiness,
		ShutdownTimeout: timeout,
		tasks:           tasks,
		cleanup:         cleanup,
	}
}

// Run serves HTTP and runs background tasks until ctx is cancelled or one of
// them fails, then shuts everything down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, task := range a.tasks {
		g.Go(func() error { return task(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.ShutdownTimeout)
		defer cancel()
		a.Logger.Info("shutting down http server")
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	return errors.Join(runErr, a.Close())
}

// Close releases store connections and flushes telemetry.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()
	var errs []error
	if a.cleanup != nil {
		if err := a.cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("close stores: %w", err))
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	return errors.Join(errs...)
}

// PeriodicTask runs fn every interval until ctx is cancelled. Failures are
// logged and do not stop the loop.
func PeriodicTask(name string, interval time.Duration, logger *slog.Logger, fn func(ctx context.Context) error) BackgroundTask {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					logger.Warn("background task failed", "task", name, "error", err)
				}
			}
		}
	}
}
