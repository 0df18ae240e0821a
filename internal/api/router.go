/**
 * @description
 * HTTP router setup for the taxform-service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new Chi router and registers tax form routes.
func NewRouter(h *Handler, metricsHandler http.Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Taxform service is healthy"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.With(middleware.Timeout(30*time.Second)).Post("/webhooks/helloworks", h.handleHelloWorksCallback)

	r.Route("/internal/tax-forms/{year}", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/run", h.handleRunYear)
		r.Get("/accounts/{accountID}", h.handleGetDocument)
	})

	return r
}
