package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Healthz))

	// Stats
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))

	// Events
	mux.Handle("GET /api/v1/events", chain(http.HandlerFunc(h.ListEvents)))
	mux.Handle("POST /api/v1/events", chain(http.HandlerFunc(h.CreateEvent)))
	mux.Handle("GET /api/v1/events/{id}", chain(http.HandlerFunc(h.GetEvent)))
}
