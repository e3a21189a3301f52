package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/api/handlers"
	mw "github.com/FrancoisRegisDegott-eaton/fty-asset/internal/api/middleware"
)

type Dependencies struct {
	HealthHandler  *handlers.HealthHandler
	AssetsHandler  *handlers.AssetsHandler
	ImportsHandler *handlers.ImportsHandler
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the HTTP surface. ctx bounds the background work of the
// middleware.
func NewRouter(ctx context.Context, dep Dependencies) http.Handler {
	if dep.RateLimitRPS <= 0 {
		dep.RateLimitRPS, dep.RateLimitBurst = 10, 20
	}

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.RateLimit(ctx, dep.RateLimitRPS, dep.RateLimitBurst))
	r.Use(chimid.Compress(5))

	r.Get("/healthz", dep.HealthHandler.Liveness)
	r.Get("/readyz", dep.HealthHandler.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/assets/{iname}", dep.AssetsHandler.Get)
		api.Post("/assets/import", dep.ImportsHandler.Create)
		api.Get("/imports/{id}", dep.ImportsHandler.Get)
	})

	return r
}
