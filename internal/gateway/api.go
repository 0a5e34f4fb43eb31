package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/mcpexec/internal/audit"
	"github.com/flemzord/mcpexec/internal/engine"
	"github.com/flemzord/mcpexec/internal/sandbox"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool"
)

// ExecuteRequest is the body of POST /v1/execute.
type ExecuteRequest struct {
	Intent      string `json:"intent"`
	Dialect     string `json:"dialect,omitempty"`
	WallMS      int64  `json:"wall_ms,omitempty"`
	MemoryBytes int64  `json:"memory_bytes,omitempty"`
	NoCache     bool   `json:"no_cache,omitempty"`
}

// handleExecute runs one intent. Engine failures are reported in the
// result body with status 200; only malformed requests get 4xx.
func (g *Gateway) handleExecute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExecuteRequest
		if !g.decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Intent) == "" {
			writeError(w, http.StatusBadRequest, "intent is required")
			return
		}
		var dialect synth.Dialect
		if req.Dialect != "" {
			d, err := synth.ParseDialect(req.Dialect)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			dialect = d
		}
		if req.WallMS < 0 || req.MemoryBytes < 0 {
			writeError(w, http.StatusBadRequest, "limits must not be negative")
			return
		}

		res := g.deps.Engine.Execute(r.Context(), engine.Request{
			Intent:  req.Intent,
			Dialect: dialect,
			Limits: sandbox.Limits{
				Wall:        time.Duration(req.WallMS) * time.Millisecond,
				MemoryBytes: req.MemoryBytes,
			},
			NoCache: req.NoCache,
		})
		writeJSON(w, http.StatusOK, res)
	}
}

// decodeBody reads a bounded JSON body into v, writing the error response
// itself when it reports false.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	return false
}

func (g *Gateway) handleListTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tools := g.deps.Tools.All()
		if category := r.URL.Query().Get("category"); category != "" {
			filtered := tools[:0]
			for _, d := range tools {
				if strings.EqualFold(d.Category, category) {
					filtered = append(filtered, d)
				}
			}
			tools = filtered
		}
		if tools == nil {
			tools = []tool.Descriptor{}
		}
		writeJSON(w, http.StatusOK, tools)
	}
}

// SearchResult is one entry of GET /v1/tools/search.
type SearchResult struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Relevance   float64 `json:"relevance"`
	Lexical     float64 `json:"lexical"`
	Semantic    float64 `json:"semantic"`
}

func (g *Gateway) handleSearchTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		intent := strings.TrimSpace(q.Get("q"))
		if intent == "" {
			writeError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}
		limit, err := intParam(q.Get("limit"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		results := g.deps.Engine.Search(r.Context(), intent, limit)
		out := make([]SearchResult, 0, len(results))
		for _, res := range results {
			out = append(out, SearchResult{
				Name:        res.Descriptor.Name,
				Description: res.Descriptor.Description,
				Relevance:   res.Relevance,
				Lexical:     res.Lexical,
				Semantic:    res.Semantic,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) handleAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := auditFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var events []audit.Event
		if g.deps.Store != nil {
			events, err = g.deps.Store.Query(r.Context(), f)
			if err != nil {
				g.logger.Error("audit query failed", "error", err)
				writeError(w, http.StatusInternalServerError, "audit query failed")
				return
			}
		} else {
			events = g.deps.Audit.Recent(f)
		}
		if events == nil {
			events = []audit.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// defaultAuditLimit applies when /v1/audit has no limit parameter.
const defaultAuditLimit = 100

func auditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		Kind:        audit.Kind(q.Get("kind")),
		ExecutionID: q.Get("execution_id"),
	}
	limit, err := intParam(q.Get("limit"), defaultAuditLimit)
	if err != nil {
		return f, errors.New("invalid limit")
	}
	f.Limit = limit
	if after := q.Get("after"); after != "" {
		seq, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			return f, errors.New("invalid after sequence")
		}
		f.AfterSequence = seq
	}
	return f, nil
}

func intParam(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
