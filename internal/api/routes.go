package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the job endpoints on r under /api, along with the
// /api/leads aliases kept for older clients. submitLimit wraps only the
// submit endpoints and may be nil.
func RegisterRoutes(r chi.Router, h *JobHandler, submitLimit func(http.Handler) http.Handler) {
	if submitLimit == nil {
		submitLimit = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api", func(r chi.Router) {
		r.With(submitLimit).Post("/jobs", h.SubmitJob)
		r.Get("/jobs/{id}", h.GetJob)
		r.Get("/jobs/{id}/results", h.ListResults)
		r.Get("/jobs/{id}/export", h.ExportResults)

		r.Route("/leads", func(r chi.Router) {
			r.With(submitLimit).Post("/generate", h.SubmitJob)
			r.Get("/jobs/{id}", h.GetJob)
			r.Get("/jobs/{id}/results", h.ListResults)
			r.Get("/jobs/{id}/export", h.ExportResults)
		})
	})

	r.Get("/health", h.Health)
}
