package handler

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"feature-flag-service/internal/cache"
	"feature-flag-service/internal/http/response"
)

type HealthHandler struct {
	db            *gorm.DB
	cache         cache.Cache
	cacheDisabled bool
}

func NewHealthHandler(db *gorm.DB, c cache.Cache, cacheDisabled bool) *HealthHandler {
	return &HealthHandler{db: db, cache: c, cacheDisabled: cacheDisabled}
}

// Liveness reports the process as up along with per-dependency status. A
// degraded dependency does not change the status code: the cache is optional
// and a broken store is surfaced per-request as 500s, not by failing liveness.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	store := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		store = "degraded"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		store = "degraded"
	}

	cacheStatus := "disabled"
	if !h.cacheDisabled {
		cacheStatus = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "degraded"
		}
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"status": "ok",
		"store":  store,
		"cache":  cacheStatus,
	})
}
