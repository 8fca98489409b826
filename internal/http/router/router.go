package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"feature-flag-service/internal/http/handler"
	"feature-flag-service/internal/http/middleware"
)

type Dependencies struct {
	Logger  *slog.Logger
	Flags   *handler.FlagHandler
	Health  *handler.HealthHandler
	Limiter middleware.Limiter
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if dep.Logger != nil {
		r.Use(middleware.RequestLogger(dep.Logger))
	}

	r.Get("/health", dep.Health.Liveness)

	r.Route("/api/features", func(r chi.Router) {
		if dep.Limiter != nil {
			r.Use(middleware.RateLimit(dep.Limiter, dep.Logger))
		}
		r.Post("/", dep.Flags.Create)
		r.Get("/", dep.Flags.List)
		r.Post("/evaluate", dep.Flags.EvaluateAll)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", dep.Flags.Get)
			r.Put("/", dep.Flags.SetEnabled)
			r.Delete("/", dep.Flags.Delete)
			r.Post("/evaluate", dep.Flags.Evaluate)
			r.Post("/overrides", dep.Flags.SetOverride)
			r.Delete("/overrides/{type}/{id}", dep.Flags.RemoveOverride)
		})
	})

	return r
}
