// Package httptransport mounts the gateway's HTTP surface: the pi-network
// session and payment API, the genesis bridge endpoints, and the ops probes.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pigateway/internal/client"
	"pigateway/internal/genesis"
	"pigateway/internal/platform/middleware"
)

// NewRouter assembles the full route tree. The payment endpoints sit behind
// JWT auth; the webhook authenticates by HMAC signature instead, and the
// probes are open.
func NewRouter(facade *client.Facade, bridge *genesis.Bridge, validator middleware.JWTValidator, registry *prometheus.Registry, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	pi := NewPiNetworkHandler(facade, logger)
	gen := NewGenesisHandler(bridge, logger)

	r.Route("/api/pi-network", func(r chi.Router) {
		pi.RegisterPublic(r)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(validator, logger))
			pi.RegisterPayments(r)
		})
	})
	r.Route("/api/genesis", gen.Register)

	r.Get("/health", pi.HandleHealth)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return r
}
