package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/weapp-session-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "weapp-session-service"

type AppMetrics struct {
	sessionResolveCounter    metric.Int64Counter
	sessionInvalidateCounter metric.Int64Counter
	upstreamCallCounter      metric.Int64Counter
	repositoryOpCounter      metric.Int64Counter
	resolveDuration          metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	resolveCounter, err := meter.Int64Counter("session.resolve.outcomes")
	if err != nil {
		return nil, err
	}
	invalidateCounter, err := meter.Int64Counter("session.invalidations")
	if err != nil {
		return nil, err
	}
	upstreamCounter, err := meter.Int64Counter("session.upstream.calls")
	if err != nil {
		return nil, err
	}
	repositoryCounter, err := meter.Int64Counter("session.repository.operations")
	if err != nil {
		return nil, err
	}
	resolveDuration, err := meter.Float64Histogram("session.resolve.duration", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &AppMetrics{
		sessionResolveCounter:    resolveCounter,
		sessionInvalidateCounter: invalidateCounter,
		upstreamCallCounter:      upstreamCounter,
		repositoryOpCounter:      repositoryCounter,
		resolveDuration:          resolveDuration,
	}, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordSessionResolve counts one resolver run. branch is one of
// "missing_code", "returning" or "verify"; outcome is "ok" or a failure class.
func RecordSessionResolve(ctx context.Context, branch, outcome string, seconds float64) {
	m := currentMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("branch", branch),
		attribute.String("outcome", outcome),
	)
	m.sessionResolveCounter.Add(ctx, 1, attrs)
	m.resolveDuration.Record(ctx, seconds, attrs)
}

func RecordSessionInvalidation(ctx context.Context, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.sessionInvalidateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordUpstreamCall(ctx context.Context, service, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.upstreamCallCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("status", status),
	))
}

func RecordRepositoryOperation(ctx context.Context, repo, op, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
