package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.middleware)

	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if g.cfg.BearerToken != "" {
			r.Use(authMiddleware(g.cfg.BearerToken, g.deps.Audit))
		}
		r.Get("/status", g.handleStatus())
		r.Post("/execute", g.handleExecute())
		r.Get("/tools", g.handleListTools())
		r.Get("/tools/search", g.handleSearchTools())
		r.Get("/audit", g.handleAudit())
		r.Get("/audit/stream", g.handleAuditStream())
		if g.deps.Approvals != nil {
			r.Get("/approvals", g.handleListApprovals())
			r.Post("/approvals/{id}", g.handleResolveApproval())
		}
	})
	return r
}
