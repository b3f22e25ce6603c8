package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// pageData is shared by every full page.
type pageData struct {
	Title  string
	Nav    string
	Error  string
	Notice string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, NewHTMXResponse(), "index.html", struct {
		pageData
		LedgerEnabled bool
	}{
		pageData:      pageData{Title: "Committee System", Nav: "home"},
		LedgerEnabled: s.ledger != nil,
	})
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and the reachability of the directory and
// the ledger.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})
	fail := func(name, reason string) {
		checks[name] = "failed: " + reason
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	if p, ok := s.dir.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			fail("directory", err.Error())
		} else {
			checks["directory"] = "ok"
		}
	} else {
		checks["directory"] = "ok"
	}

	if s.ledger == nil {
		checks["ledger"] = "disabled"
	} else if p, ok := s.ledger.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			fail("ledger", err.Error())
		} else {
			checks["ledger"] = "ok"
		}
	}

	checks["sessions"] = map[string]interface{}{
		"live": s.sessions.Len(),
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
