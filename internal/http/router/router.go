package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/weapp-session-service/internal/http/handler"
	"github.com/sandeepkv93/weapp-session-service/internal/http/middleware"
	"github.com/sandeepkv93/weapp-session-service/internal/http/response"
)

type Dependencies struct {
	SessionHandler    *handler.SessionHandler
	HealthHandler     *handler.HealthHandler
	Session           SessionMiddlewareFunc
	VerifyRateLimiter VerifyRateLimiterFunc
	EnableOTelHTTP    bool
}

type SessionMiddlewareFunc func(http.Handler) http.Handler
type VerifyRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	r.Get("/health/live", dep.HealthHandler.Live)
	r.Get("/health/ready", dep.HealthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		if dep.VerifyRateLimiter != nil {
			r.Use(dep.VerifyRateLimiter)
		}
		if dep.Session != nil {
			r.Use(dep.Session)
		}
		r.Get("/session", dep.SessionHandler.Current)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
