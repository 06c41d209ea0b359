package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/weapp-session-service/internal/app"
	"github.com/sandeepkv93/weapp-session-service/internal/config"
	"github.com/sandeepkv93/weapp-session-service/internal/health"
	"github.com/sandeepkv93/weapp-session-service/internal/http/handler"
	"github.com/sandeepkv93/weapp-session-service/internal/http/middleware"
	"github.com/sandeepkv93/weapp-session-service/internal/http/router"
	"github.com/sandeepkv93/weapp-session-service/internal/observability"
	"github.com/sandeepkv93/weapp-session-service/internal/profile"
	"github.com/sandeepkv93/weapp-session-service/internal/repository"
	"github.com/sandeepkv93/weapp-session-service/internal/security"
	"github.com/sandeepkv93/weapp-session-service/internal/service"
	"github.com/sandeepkv93/weapp-session-service/internal/wechat"
)

// SessionBackend is the configured session store plus what the process
// needs to probe, maintain and close it.
type SessionBackend struct {
	Kind   string
	Store  service.SessionStore
	Pinger health.Pinger
	Tasks  []app.BackgroundTask
	Close  func() error
}

// Inspector gives read access to the session cache outside the HTTP server.
type Inspector struct {
	Cache   *service.SessionCache
	Backend *SessionBackend
}

func ProvideRuntime(ctx context.Context, cfg *config.Config) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, observability.NewLogger(cfg, os.Stdout))
}

func ProvideLogger(rt *observability.Runtime) *slog.Logger {
	slog.SetDefault(rt.Logger)
	return rt.Logger
}

func ProvideSessionBackend(cfg *config.Config, logger *slog.Logger) (*SessionBackend, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := service.NewRedisSessionStore(client, cfg.RedisKeyPrefix)
		return &SessionBackend{Kind: "redis", Store: store, Pinger: store, Close: client.Close}, nil
	case config.StoreSQL:
		db, err := repository.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := repository.NewSessionStore(db)
		cleanup := app.PeriodicTask("session_cleanup", cfg.SessionCleanupInterval, logger, func(ctx context.Context) error {
			n, err := store.CleanupExpired(ctx)
			if err == nil && n > 0 {
				logger.Debug("expired session entries removed", "count", n)
			}
			return err
		})
		closeDB := func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		return &SessionBackend{Kind: "sql", Store: store, Pinger: store, Tasks: []app.BackgroundTask{cleanup}, Close: closeDB}, nil
	case config.StoreMemory:
		return &SessionBackend{Kind: "memory", Store: service.NewInMemorySessionStore(), Close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.SessionStore)
	}
}

func ProvideSessionCache(cfg *config.Config, backend *SessionBackend) *service.SessionCache {
	return service.NewSessionCache(backend.Store, cfg.SessionTTL, cfg.CacheTimeout)
}

func ProvideExchangeClient(cfg *config.Config) *wechat.Client {
	return wechat.NewClient(cfg.ExchangeURL, cfg.AppID, cfg.AppSecret, cfg.OutboundTimeout)
}

func ProvideServiceTokenSigner(cfg *config.Config) *security.ServiceTokenSigner {
	if cfg.UserInfoSigningSecret == "" {
		return nil
	}
	return security.NewServiceTokenSigner(cfg.OTELServiceName, cfg.UserInfoAudience, cfg.UserInfoSigningSecret)
}

func ProvideProfileClient(cfg *config.Config, signer *security.ServiceTokenSigner) *profile.Client {
	return profile.NewClient(cfg.UserInfoURL, cfg.OutboundTimeout, signer)
}

func ProvideSessionResolver(
	cfg *config.Config,
	cache *service.SessionCache,
	exchanger service.CodeExchanger,
	enricher service.ProfileEnricher,
	logger *slog.Logger,
) *service.SessionResolver {
	if cfg.IgnoreSignature {
		logger.Warn("signature checking disabled; identities are derived from client data")
	}
	return service.NewSessionResolver(cache, exchanger, enricher, service.ResolverOptions{
		AppID:           cfg.AppID,
		IgnoreSignature: cfg.IgnoreSignature,
		Logger:          logger,
	})
}

func ProvideSessionMiddleware(cfg *config.Config, resolver *service.SessionResolver, logger *slog.Logger) (router.SessionMiddlewareFunc, error) {
	mw, err := middleware.NewSessionMiddleware(resolver, middleware.SessionMiddlewareOptions{
		Ignore: middleware.IgnorePathPrefixes(cfg.IgnorePaths...),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return router.SessionMiddlewareFunc(mw), nil
}

func ProvideVerifyRateLimiter(cfg *config.Config) router.VerifyRateLimiterFunc {
	if cfg.VerifyRateLimitRPM == 0 {
		return nil
	}
	rl := middleware.NewVerifyRateLimiter(middleware.RateLimitPolicy{
		PerMinute: cfg.VerifyRateLimitRPM,
		Burst:     cfg.VerifyRateBurst,
	})
	return router.VerifyRateLimiterFunc(rl.Middleware())
}

func ProvideReadiness(backend *SessionBackend) *health.ProbeRunner {
	var checkers []health.Checker
	if backend.Pinger != nil {
		checkers = append(checkers, health.NewPingChecker(backend.Kind, backend.Pinger))
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checkers...)
}

func ProvideRouterDependencies(
	cfg *config.Config,
	readiness *health.ProbeRunner,
	session router.SessionMiddlewareFunc,
	limiter router.VerifyRateLimiterFunc,
) router.Dependencies {
	return router.Dependencies{
		SessionHandler:    handler.NewSessionHandler(),
		HealthHandler:     handler.NewHealthHandler(readiness),
		Session:           session,
		VerifyRateLimiter: limiter,
		EnableOTelHTTP:    cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	}
}

func ProvideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func ProvideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	rt *observability.Runtime,
	readiness *health.ProbeRunner,
	backend *SessionBackend,
) *app.App {
	return app.New(cfg, logger, server, rt, readiness, backend.Tasks, backend.Close)
}

func ProvideInspector(cache *service.SessionCache, backend *SessionBackend) *Inspector {
	return &Inspector{Cache: cache, Backend: backend}
}

func provideInspectLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
