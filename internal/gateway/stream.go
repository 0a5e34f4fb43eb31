package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/mcpexec/internal/audit"
)

// streamBuffer is the per-connection subscriber buffer. A client that
// falls further behind loses events; the gap shows in the sequence.
const streamBuffer = 256

// handleAuditStream upgrades to a websocket and sends every audit event
// matching the query filter as a JSON text message. With ?after=N the
// in-memory backlog after N is replayed first.
func (g *Gateway) handleAuditStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := auditFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Subscribe before reading the backlog so nothing falls between.
		events, unsubscribe := g.deps.Audit.Subscribe(streamBuffer)
		defer unsubscribe()

		// The server write timeout must not cut a long-lived stream.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("audit stream upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()

		// The client sends nothing; CloseRead cancels ctx when it goes away.
		ctx := conn.CloseRead(r.Context())

		last := f.AfterSequence
		if r.URL.Query().Has("after") {
			backlog := f
			backlog.Limit = 0
			for _, e := range g.deps.Audit.Recent(backlog) {
				if err := sendEvent(ctx, conn, e); err != nil {
					return
				}
				last = e.Sequence
			}
		}

		live := f
		live.Limit = 0
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					_ = conn.Close(websocket.StatusGoingAway, "audit log closed")
					return
				}
				if e.Sequence <= last || !live.Match(e) {
					continue
				}
				if err := sendEvent(ctx, conn, e); err != nil {
					g.logger.Debug("audit stream closed", "error", err)
					return
				}
				last = e.Sequence
			}
		}
	}
}

func sendEvent(ctx context.Context, conn *websocket.Conn, e audit.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
