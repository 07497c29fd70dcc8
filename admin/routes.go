package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maxpert/mirrordb/telemetry"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers the admin API under /admin and, when
// Prometheus is enabled, the metrics handler under /metrics
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/cluster", func(r chi.Router) {
		r.Use(RequireSecret)
		r.Get("/", handlers.handleCluster)
		r.Get("/databases/{id}", handlers.handleDatabase)
		r.Post("/databases/{id}/activate", handlers.handleActivate)
		r.Post("/databases/{id}/deactivate", handlers.handleDeactivate)
	})

	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if metrics := telemetry.Handler(); metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	log.Info().Msg("Admin endpoints enabled at /admin/cluster")
}
