//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/device-auth-service/internal/app"
	"github.com/sandeepkv93/device-auth-service/internal/config"
	"github.com/sandeepkv93/device-auth-service/internal/http/handler"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
	"github.com/sandeepkv93/device-auth-service/internal/service"
)

var coreSet = wire.NewSet(
	provideLoggerProvider,
	provideLogger,
	provideClock,
	provideDB,
	provideJWTManager,
	provideRefreshTokenGenerator,
	provideRedisClient,
	provideNegativeCache,
	provideReuseHandler,
	provideTokenServiceConfig,
	repository.NewUserRepository,
	repository.NewSessionRepository,
	service.NewTokenService,
	service.NewSessionService,
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, func(), error) {
	wire.Build(
		coreSet,
		provideRuntime,
		providePasswordHasher,
		service.NewAuthService,
		wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
		wire.Bind(new(service.SessionServiceInterface), new(*service.SessionService)),
		handler.NewAuthHandler,
		handler.NewUserHandler,
		providePrometheusRegistry,
		provideHTTPMetrics,
		provideReadiness,
		provideRouter,
		provideHTTPServer,
		app.New,
	)
	return nil, nil, nil
}

func InitializeSessionAdmin(ctx context.Context, cfg *config.Config) (*SessionAdmin, func(), error) {
	wire.Build(
		coreSet,
		newSessionAdmin,
	)
	return nil, nil, nil
}
