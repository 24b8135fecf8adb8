package analysis

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts the analysis endpoints. limit guards the endpoints that
// run the spatial pipeline.
func SetupRoutes(h *Handler, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	// Read-only access to stored analyses
	r.Get("/", h.ListAnalyses)
	r.Get("/geojson", h.AnalysesGeoJSON)
	r.Get("/{analysis_id}", h.GetAnalysis)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/", h.RunAnalysis)
		r.Post("/preview", h.PreviewAnalysis)
	})

	return r
}
