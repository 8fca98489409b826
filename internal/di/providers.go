package di

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"feature-flag-service/internal/app"
	"feature-flag-service/internal/cache"
	"feature-flag-service/internal/config"
	"feature-flag-service/internal/database"
	"feature-flag-service/internal/http/handler"
	"feature-flag-service/internal/http/middleware"
	"feature-flag-service/internal/http/router"
	"feature-flag-service/internal/observability"
	"feature-flag-service/internal/repository"
	"feature-flag-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(provideLogger)

var InfraSet = wire.NewSet(provideDB, provideRedisClient, provideCache)

var RepositorySet = wire.NewSet(repository.NewFlagRepository)

var ServiceSet = wire.NewSet(provideFlagService)

var HTTPSet = wire.NewSet(
	handler.NewFlagHandler,
	provideHealthHandler,
	provideLimiter,
	provideRouterDependencies,
	router.New,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

func provideDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// provideRedisClient returns nil when no Redis is configured; all consumers
// treat a nil client as "feature unavailable".
func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

func provideCache(cfg *config.Config, client redis.UniversalClient) cache.Cache {
	if cfg.CacheDisabled {
		return cache.NewNoopCache()
	}
	if client != nil {
		return cache.NewRedisCache(client, "feature_flags")
	}
	// No Redis configured but caching requested: per-process cache only.
	return cache.NewMemoryCache()
}

func provideFlagService(repo repository.FlagRepository, c cache.Cache, cfg *config.Config, logger *slog.Logger) service.FlagService {
	return service.NewFlagService(repo, c, cfg.CacheTTL, logger)
}

func provideHealthHandler(db *gorm.DB, c cache.Cache, cfg *config.Config) *handler.HealthHandler {
	return handler.NewHealthHandler(db, c, cfg.CacheDisabled)
}

func provideLimiter(cfg *config.Config, client redis.UniversalClient) middleware.Limiter {
	if client != nil {
		return middleware.NewRedisFixedWindowLimiter(client, "rl", cfg.APIRateLimitPerMin)
	}
	return middleware.NewLocalFixedWindowLimiter(cfg.APIRateLimitPerMin)
}

func provideRouterDependencies(logger *slog.Logger, flags *handler.FlagHandler, health *handler.HealthHandler, limiter middleware.Limiter) router.Dependencies {
	return router.Dependencies{
		Logger:  logger,
		Flags:   flags,
		Health:  health,
		Limiter: limiter,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
