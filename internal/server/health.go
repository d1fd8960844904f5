package server

import (
	"encoding/json"
	"net/http"
)

// HealthStatus represents the server health check response.
type HealthStatus struct {
	Status string `json:"status"`
	Repos  int    `json:"repos"`
}

// handleHealth returns a health check response for load balancers and monitoring.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.hubsMu.RLock()
	n := len(s.hubs)
	s.hubsMu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthStatus{Status: "ok", Repos: n})
}
