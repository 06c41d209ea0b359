//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/weapp-session-service/internal/app"
	"github.com/sandeepkv93/weapp-session-service/internal/config"
	"github.com/sandeepkv93/weapp-session-service/internal/http/router"
	"github.com/sandeepkv93/weapp-session-service/internal/profile"
	"github.com/sandeepkv93/weapp-session-service/internal/service"
	"github.com/sandeepkv93/weapp-session-service/internal/wechat"
)

var sessionSet = wire.NewSet(
	ProvideSessionBackend,
	ProvideSessionCache,
)

var resolverSet = wire.NewSet(
	ProvideExchangeClient,
	wire.Bind(new(service.CodeExchanger), new(*wechat.Client)),
	ProvideServiceTokenSigner,
	ProvideProfileClient,
	wire.Bind(new(service.ProfileEnricher), new(*profile.Client)),
	ProvideSessionResolver,
)

var httpSet = wire.NewSet(
	ProvideSessionMiddleware,
	ProvideVerifyRateLimiter,
	ProvideReadiness,
	ProvideRouterDependencies,
	router.NewRouter,
	ProvideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	wire.Build(
		ProvideRuntime,
		ProvideLogger,
		sessionSet,
		resolverSet,
		httpSet,
		ProvideApp,
	)
	return nil, nil
}

func InitializeInspector(cfg *config.Config) (*Inspector, error) {
	wire.Build(
		provideInspectLogger,
		sessionSet,
		ProvideInspector,
	)
	return nil, nil
}
