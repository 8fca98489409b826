package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"feature-flag-service/internal/config"
	"feature-flag-service/internal/database"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	Server *http.Server

	db    *gorm.DB
	redis redis.UniversalClient
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, db *gorm.DB, redisClient redis.UniversalClient) *App {
	return &App{Config: cfg, Logger: logger, Server: server, db: db, redis: redisClient}
}

// Close shuts the HTTP server down gracefully, then releases the store and
// cache connections.
func (a *App) Close(ctx context.Context) {
	if a.Server != nil {
		_ = a.Server.Shutdown(ctx)
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// RunMigrationOnly applies the schema and exits without serving.
func RunMigrationOnly() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	return database.Migrate(db)
}
