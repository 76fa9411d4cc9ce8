package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter returns the /api sub-router. Every route, including the event
// stream, sits behind the bearer token check when authEnabled is set. A nil
// events handler leaves GET /events unmounted.
func NewRouter(h *Handler, authEnabled bool, token string, events http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/reports/latest", h.LatestReport)
	r.Get("/topics", h.Topics)
	r.Route("/history", func(r chi.Router) {
		r.Get("/trending", h.Trending)
		r.Get("/new", h.NewTopics)
	})
	r.Post("/scan", h.StartScan)
	if events != nil {
		r.Method(http.MethodGet, "/events", events)
	}
	return r
}
