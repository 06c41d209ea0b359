package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sandeepkv93/weapp-session-service/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OTel providers installed for the process. Providers for
// disabled pipelines are nil.
type Runtime struct {
	Logger         *slog.Logger
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

// InitRuntime installs logs, metrics and traces in that order. If a later
// pipeline fails, the ones already started are shut down before returning.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	var err error
	rt.Logger, rt.LoggerProvider, err = InitLogging(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, rt.Logger); err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, rt.Logger); err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	return rt, nil
}

// Shutdown flushes traces and metrics before logs so that export errors from
// the first two can still be logged.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.TracerProvider != nil {
		errs = append(errs, r.TracerProvider.Shutdown(ctx))
	}
	if r.MeterProvider != nil {
		errs = append(errs, r.MeterProvider.Shutdown(ctx))
	}
	if r.LoggerProvider != nil {
		errs = append(errs, r.LoggerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
