// Package api wires the operator HTTP API: middleware, routes, and docs.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/cricket-livestats/internal/api/handler"
	"github.com/albapepper/cricket-livestats/internal/config"
)

// NewRouter creates the chi router with the middleware stack and all routes.
func NewRouter(h *handler.Handler, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LogMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5))

	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "X-Request-Id", "ETag", "Retry-After"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---
	r.Get("/", h.Root)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/etl", func(r chi.Router) {
			r.Post("/backfill", h.Backfill)
			r.Post("/refresh", h.Refresh)
			r.Post("/teams", h.LoadTeams)
			r.Post("/series/{seriesID}", h.LoadSeries)
			r.Get("/trace", h.Trace)
			r.Get("/state", h.State)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Get("/", h.ListQueries)
			r.Get("/{queryID}", h.RunQuery)
			r.Get("/{queryID}/sql", h.QuerySQL)
		})

		r.Route("/matches/{match}", func(r chi.Router) {
			r.Get("/", h.Matches)
			r.Get("/scorecard", h.Scorecard)
		})

		r.Route("/players", func(r chi.Router) {
			r.Get("/search", h.SearchPlayers)
			r.Get("/{playerID}", h.PlayerProfile)
			r.Get("/{playerID}/stats", h.PlayerStats)
		})

		r.Route("/crud/players", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Put("/{id}", h.UpdateRecord)
			r.Delete("/{id}", h.DeleteRecord)
		})
	})

	return r
}
