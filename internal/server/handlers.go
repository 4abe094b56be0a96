package server

import (
	"context"
	"net/http"

	"leadboard/internal/resource"
)

// HandleRoot describes the service.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	collections := make([]string, len(resource.Collections))
	for i, c := range resource.Collections {
		collections[i] = string(c)
	}

	response := map[string]any{
		"service":       "leadboard",
		"version":       s.version,
		"collections":   collections,
		"auth_required": s.Auth != nil,
		"proxy": map[string]any{
			"path":            "/proxy-webhook",
			"allowed_domains": s.Guard.AllowedDomains(),
		},
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleHealth handles health check requests. The backend is pinged with
// a short timeout; a failed ping answers 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthPingTimeout)
	defer cancel()

	response := map[string]any{
		"status":  "ok",
		"backend": "ok",
	}
	status := http.StatusOK

	if err := s.Store.Ping(ctx); err != nil {
		s.Logger.Warn("Backend ping failed", "error", err)
		response["status"] = "degraded"
		response["backend"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	s.respondJSON(w, status, response)
}
