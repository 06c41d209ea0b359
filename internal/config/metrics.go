package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordLoad counts configuration loads. The meter resolves lazily, so loads
// that happen before the OTel runtime is installed go to the no-op provider.
func recordLoad(ctx context.Context, env, store string, err error) {
	loadMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("weapp-session-service/config").Int64Counter("config.load.events")
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("env", normalizeLabel(env)),
		attribute.String("session_store", normalizeLabel(store)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyConfigLoadError(err)),
	))
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "unknown"
	}
	return v
}

func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "read config file:"):
		return "file"
	case strings.HasPrefix(msg, "load env file:"):
		return "env_file"
	case strings.Contains(msg, "parse "):
		return "parse"
	default:
		return "load"
	}
}
