package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flemzord/mcpexec/internal/cache"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Tools  int    `json:"tools"`
}

// handleHealth reports degraded when no tool is registered, since every
// execution would then fail discovery.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Tools: len(g.deps.Tools.All())}
		status := http.StatusOK
		if resp.Tools == 0 {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Uptime        int64        `json:"uptime_seconds"`
	Tools         int          `json:"tools"`
	AuditSequence uint64       `json:"audit_sequence"`
	AuditDropped  int64        `json:"audit_dropped"`
	Cache         *cache.Stats `json:"cache,omitempty"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:        int64(time.Since(g.startedAt).Seconds()),
			Tools:         len(g.deps.Tools.All()),
			AuditSequence: g.deps.Audit.LastSequence(),
			AuditDropped:  g.deps.Audit.Dropped(),
		}
		if g.deps.Cache != nil {
			stats := g.deps.Cache.Stats()
			resp.Cache = &stats
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
