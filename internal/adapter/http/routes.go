package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Sandbox cleanup
		r.Post("/cleanup/sandboxes", h.DeleteSandboxes)
		r.Post("/cleanup/old", h.CleanupOld)
		r.Post("/cleanup/full", h.FullCleanup)
		r.Get("/cleanup/stats", h.CleanupStats)

		// Run control
		r.Post("/agent-runs/{id}/stop", h.StopRun)
	})
}
