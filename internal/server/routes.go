package server

import (
	"net/http"

	"leadboard/internal/auth"
	"leadboard/internal/resource"
)

// route is one entry of the route table.
type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
	public  bool
	role    string // required principal role, "" for any
	limit   int    // per-route requests per minute, 0 for none
}

// routes returns the full route table. Requests matching no entry get 404.
func (s *Server) routes() []route {
	table := []route{
		{method: http.MethodGet, pattern: "/", handler: s.HandleRoot, public: true},
		{method: http.MethodGet, pattern: "/health", handler: s.HandleHealth, public: true},
		{method: http.MethodPost, pattern: "/proxy-webhook", handler: s.HandleProxyWebhook, limit: s.proxyRequestsPerMinute},
		{method: http.MethodGet, pattern: "/proxy-webhook/history", handler: s.HandleForwardHistory, role: auth.RoleServiceRole},
	}

	for _, c := range resource.Collections {
		collection := "/" + string(c)
		table = append(table,
			route{method: http.MethodGet, pattern: collection, handler: s.HandleList(c)},
			route{method: http.MethodPost, pattern: collection, handler: s.HandleCreate(c)},
			route{method: http.MethodPatch, pattern: collection + "/{id}", handler: s.HandleUpdate(c)},
			route{method: http.MethodDelete, pattern: collection + "/{id}", handler: s.HandleDelete(c)},
		)
	}

	// Single-record reads exist for leads only
	table = append(table, route{method: http.MethodGet, pattern: "/" + string(resource.Leads) + "/{id}", handler: s.HandleGet(resource.Leads)})

	return table
}

// HandleNotFound answers unmatched paths and methods.
func (s *Server) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}
