// Package httptransport assembles the public HTTP surface: domain handlers,
// health probes, and the Prometheus scrape endpoint.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medledger/internal/transport/http/shared"
)

// Registrar is anything that can attach its routes to the root router. Each
// domain handler brings its own middleware chain.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the full API. nil registrars are skipped so partial
// assemblies (tests, tools) can reuse the same wiring.
func NewRouter(checks map[string]HealthCheck, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		for name, check := range checks {
			if err := check(req.Context()); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"failed": name,
				})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		if h != nil {
			h.Register(r)
		}
	}
	return r
}
