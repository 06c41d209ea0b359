package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/weapp-session-service/internal/domain"
	"github.com/sandeepkv93/weapp-session-service/internal/health"
	"github.com/sandeepkv93/weapp-session-service/internal/http/handler"
	"github.com/sandeepkv93/weapp-session-service/internal/http/middleware"
)

type unhealthyPinger struct{}

func (unhealthyPinger) Ping(context.Context) error { return context.DeadlineExceeded }

// fakeSession attaches a fixed identity when the code header is "ok".
func fakeSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(middleware.HeaderCode) != "ok" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), middleware.SessionContextKey, &domain.SessionRecord{OpenID: "OID1", UserID: "42"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRouterTestDeps(readiness *health.ProbeRunner) Dependencies {
	return Dependencies{
		SessionHandler:    handler.NewSessionHandler(),
		HealthHandler:     handler.NewHealthHandler(readiness),
		Session:           fakeSession,
		VerifyRateLimiter: middleware.NewVerifyRateLimiter(middleware.RateLimitPolicy{PerMinute: 1, Burst: 1}).Middleware(),
		EnableOTelHTTP:    false,
	}
}

func perform(r http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.10.10.10:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthReadyNilAndUnreadyBranches(t *testing.T) {
	t.Run("nil readiness returns ready", func(t *testing.T) {
		r := NewRouter(newRouterTestDeps(nil))

		rr := perform(r, http.MethodGet, "/health/ready", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready status payload, got %s", rr.Body.String())
		}
	})

	t.Run("unready dependency returns 503", func(t *testing.T) {
		runner := health.NewProbeRunner(time.Second, 50*time.Millisecond, health.NewPingChecker("redis", unhealthyPinger{}))
		r := NewRouter(newRouterTestDeps(runner))

		rr := perform(r, http.MethodGet, "/health/ready", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "DEPENDENCY_UNREADY") {
			t.Fatalf("expected DEPENDENCY_UNREADY, got %s", rr.Body.String())
		}
	})
}

func TestRouterHealthLive(t *testing.T) {
	rr := perform(NewRouter(newRouterTestDeps(nil)), http.MethodGet, "/health/live", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected live response %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestRouterSessionEndpoint(t *testing.T) {
	r := NewRouter(newRouterTestDeps(nil))

	rr := perform(r, http.MethodGet, "/api/v1/session", map[string]string{middleware.HeaderCode: "ok"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var env struct {
		Success bool `json:"success"`
		Data    struct {
			OpenID string `json:"openId"`
			UserID string `json:"userId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if !env.Success || env.Data.OpenID != "OID1" || env.Data.UserID != "42" {
		t.Fatalf("unexpected session payload %+v", env)
	}

	rr = perform(r, http.MethodGet, "/api/v1/session", nil)
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "SESSION_REQUIRED") {
		t.Fatalf("expected SESSION_REQUIRED without identity, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterRateLimitsVerification(t *testing.T) {
	r := NewRouter(newRouterTestDeps(nil))
	headers := map[string]string{middleware.HeaderCode: "ok", middleware.HeaderRawData: "{}"}

	if rr := perform(r, http.MethodGet, "/api/v1/session", headers); rr.Code != http.StatusOK {
		t.Fatalf("expected first verify to pass, got %d", rr.Code)
	}
	if rr := perform(r, http.MethodGet, "/api/v1/session", headers); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second verify, got %d", rr.Code)
	}
}

func TestRouterUnknownRouteUsesEnvelope(t *testing.T) {
	rr := perform(NewRouter(newRouterTestDeps(nil)), http.MethodGet, "/nope", nil)
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "NOT_FOUND") {
		t.Fatalf("unexpected 404 response %d %s", rr.Code, rr.Body.String())
	}
}
