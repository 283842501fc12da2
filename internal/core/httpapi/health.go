package httpapi

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleReady additionally confirms the store is reachable; a dependency
// being down should make the process fail a load balancer's readiness
// check well before it fails a health check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Store.ListEventsAfter(r.Context(), "__readiness__", 0, 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}
