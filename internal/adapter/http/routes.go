package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. ws is the
// WebSocket upgrade handler and may be nil.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc) {
	r.Get("/healthz", h.Healthz)
	if ws != nil {
		r.Get("/ws", ws)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Turns
		r.Post("/turns", h.HandleTurn)

		// Sessions
		r.Get("/sessions/{id}", h.GetSession)
		r.Get("/sessions/{id}/proposals", h.ListSessionProposals)
		r.Post("/sessions/{id}/close", h.CloseSession)

		// Proposals
		r.Post("/proposals/{id}/confirm", h.ConfirmProposal)
		r.Post("/proposals/{id}/reject", h.RejectProposal)

		// Tool catalog
		r.Get("/tools", h.ListTools)
	})
}
