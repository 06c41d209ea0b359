package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sandeepkv93/weapp-session-service/internal/config"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "text", OTELServiceName: "svc"}
	NewLogger(cfg, &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "service=svc") {
		t.Fatalf("expected text log line, got %q", buf.String())
	}

	buf.Reset()
	cfg.LogFormat = "json"
	NewLogger(cfg, &buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug suppressed at info level, got %q", buf.String())
	}
}

func TestFanoutHandlerWritesToEveryEnabledHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := fanoutHandler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	logger := slog.New(h).With("k", "v").WithGroup("g")

	logger.Debug("only-a")
	logger.Warn("both", "x", 1)

	if !strings.Contains(a.String(), "only-a") || !strings.Contains(a.String(), "both") {
		t.Fatalf("unexpected first handler output %q", a.String())
	}
	if strings.Contains(b.String(), "only-a") || !strings.Contains(b.String(), "g.x=1") || !strings.Contains(b.String(), "k=v") {
		t.Fatalf("unexpected second handler output %q", b.String())
	}
}

func TestInitRuntimeDisabledPipelines(t *testing.T) {
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := InitRuntime(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	if rt.Logger != logger || rt.LoggerProvider != nil {
		t.Fatal("expected base logger without otel log provider")
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	var nilRuntime *Runtime
	if err := nilRuntime.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime shutdown: %v", err)
	}
}

func TestSessionMetricsAreRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	metricsMu.Lock()
	prev := appMetrics
	appMetrics = m
	metricsMu.Unlock()
	t.Cleanup(func() {
		metricsMu.Lock()
		appMetrics = prev
		metricsMu.Unlock()
	})

	ctx := context.Background()
	RecordSessionResolve(ctx, "verify", "ok", 0.01)
	RecordSessionInvalidation(ctx, "deleted")
	RecordUpstreamCall(ctx, "code_exchange", "ok")
	RecordRepositoryOperation(ctx, "session_entry", "get", "success")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			seen[metric.Name] = true
		}
	}
	for _, name := range []string{
		"session.resolve.outcomes",
		"session.resolve.duration",
		"session.invalidations",
		"session.upstream.calls",
		"session.repository.operations",
	} {
		if !seen[name] {
			t.Fatalf("expected metric %s, got %v", name, seen)
		}
	}
}
