package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/mcpexec/internal/audit"
)

// authMiddleware requires "Authorization: Bearer <token>". Failures are
// recorded as security events.
func authMiddleware(token string, log *audit.Log) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if ok && constantTimeEqual(got, token) {
				next.ServeHTTP(w, r)
				return
			}
			detail := "invalid credentials"
			if r.Header.Get("Authorization") == "" {
				detail = "missing authorization header"
			}
			if log != nil {
				_, _ = log.Append(context.WithoutCancel(r.Context()), audit.Event{
					Kind:     audit.KindSecurity,
					Severity: audit.SeverityWarning,
					Payload: map[string]any{
						"auth":        "failure",
						"detail":      detail,
						"remote_addr": r.RemoteAddr,
						"method":      r.Method,
						"path":        r.URL.Path,
					},
				})
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
