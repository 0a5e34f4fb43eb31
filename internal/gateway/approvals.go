package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/mcpexec/internal/audit"
	"github.com/flemzord/mcpexec/internal/tool"
)

// PendingApproval is one entry of GET /v1/approvals.
type PendingApproval struct {
	ID          string   `json:"id"`
	ExecutionID string   `json:"execution_id"`
	Intent      string   `json:"intent"`
	Tools       []string `json:"tools"`
	RiskScore   int      `json:"risk_score"`
	Reasons     []string `json:"reasons"`
	Source      string   `json:"source"`
}

// ApprovalDecision is the body of POST /v1/approvals/{id}.
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func (g *Gateway) handleListApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		pending := g.deps.Approvals.Pending()
		out := make([]PendingApproval, 0, len(pending))
		for _, p := range pending {
			out = append(out, PendingApproval{
				ID:          p.ID,
				ExecutionID: p.ExecutionID,
				Intent:      p.Intent,
				Tools:       p.Tools,
				RiskScore:   p.RiskScore,
				Reasons:     p.Reasons,
				Source:      p.Source,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"approvals": out})
	}
}

// handleResolveApproval decides a held artifact. Unknown or already
// decided IDs get 404.
func (g *Gateway) handleResolveApproval() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var d ApprovalDecision
		if !g.decodeBody(w, r, &d) {
			return
		}

		var executionID string
		for _, p := range g.deps.Approvals.Pending() {
			if p.ID == id {
				executionID = p.ExecutionID
				break
			}
		}
		if !g.deps.Approvals.Resolve(id, tool.ApprovalResponse{Approved: d.Approved, Reason: d.Reason}) {
			writeError(w, http.StatusNotFound, "no pending approval "+id)
			return
		}

		_, _ = g.deps.Audit.Append(context.WithoutCancel(r.Context()), audit.Event{
			Kind:        audit.KindSecurity,
			Severity:    audit.SeverityInfo,
			ExecutionID: executionID,
			Payload: map[string]any{
				"approval_decision": d.Approved,
				"approval_id":       id,
				"remote_addr":       r.RemoteAddr,
			},
		})
		g.logger.Info("approval resolved", "id", id, "approved", d.Approved)
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "approved": d.Approved})
	}
}
