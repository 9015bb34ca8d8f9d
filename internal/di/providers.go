package di

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/device-auth-service/internal/config"
	"github.com/sandeepkv93/device-auth-service/internal/database"
	"github.com/sandeepkv93/device-auth-service/internal/health"
	"github.com/sandeepkv93/device-auth-service/internal/http/handler"
	"github.com/sandeepkv93/device-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/device-auth-service/internal/http/router"
	"github.com/sandeepkv93/device-auth-service/internal/observability"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
	"github.com/sandeepkv93/device-auth-service/internal/security"
	"github.com/sandeepkv93/device-auth-service/internal/service"
)

func provideLoggerProvider(ctx context.Context, cfg *config.Config) (*sdklog.LoggerProvider, error) {
	return observability.InitLogging(ctx, cfg)
}

func provideLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	logger := observability.NewLogger(cfg, os.Stdout, lp)
	slog.SetDefault(logger)
	return logger
}

func provideClock() func() time.Time {
	return func() time.Time { return time.Now().UTC() }
}

func provideDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

func provideJWTManager(cfg *config.Config, now func() time.Time) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.JWTAccessTTL, now)
}

func providePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(cfg.BcryptCost)
}

func provideRefreshTokenGenerator(cfg *config.Config) *security.RefreshTokenGenerator {
	return security.NewRefreshTokenGenerator(nil, cfg.RefreshTokenBytes)
}

// provideRedisClient returns a nil client when REDIS_ADDR is unset; the
// negative cache then falls back to process memory.
func provideRedisClient(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func provideNegativeCache(cfg *config.Config, client redis.UniversalClient, now func() time.Time) service.NegativeLookupCacheStore {
	if cfg.NegativeCacheTTL <= 0 {
		return service.NewNoopNegativeLookupCacheStore()
	}
	if client != nil {
		return service.NewRedisNegativeLookupCacheStore(client, "authd_negative_lookup")
	}
	return service.NewInMemoryNegativeLookupCacheStore(now)
}

func provideReuseHandler(cfg *config.Config, sessions repository.SessionRepository, logger *slog.Logger) service.ReuseHandler {
	return service.NewReuseHandler(cfg.RefreshReusePolicy, sessions, logger)
}

func provideTokenServiceConfig(cfg *config.Config) service.TokenServiceConfig {
	return service.TokenServiceConfig{
		Pepper:           cfg.RefreshTokenPepper,
		RefreshTTL:       cfg.RefreshTTL,
		NegativeCacheTTL: cfg.NegativeCacheTTL,
	}
}

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func providePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideHTTPMetrics(cfg *config.Config, reg *prometheus.Registry) *middleware.HTTPMetrics {
	return middleware.NewHTTPMetrics(reg, cfg.OTELServiceName)
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{
		health.CheckFunc{Name: "db", Fn: func(ctx context.Context) error { return database.Ping(ctx, db) }},
	}
	if client != nil {
		checkers = append(checkers, health.CheckFunc{Name: "redis", Fn: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checkers...)
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	auth *service.AuthService,
	readiness *health.ProbeRunner,
	reg *prometheus.Registry,
	httpMetrics *middleware.HTTPMetrics,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:     authHandler,
		UserHandler:     userHandler,
		Authenticator:   auth,
		Readiness:       readiness,
		Logger:          logger,
		MetricsGatherer: reg,
		HTTPMetrics:     httpMetrics,
		EnableOTelHTTP:  cfg.OTELTracingEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// SessionAdmin is the object graph used by operator commands that work on
// the ledger without serving HTTP.
type SessionAdmin struct {
	DB       *gorm.DB
	Sessions *service.SessionService
	Tokens   *service.TokenService
}

func newSessionAdmin(db *gorm.DB, sessions *service.SessionService, tokens *service.TokenService) *SessionAdmin {
	return &SessionAdmin{DB: db, Sessions: sessions, Tokens: tokens}
}
