package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the database probe on /status.
const healthCheckTimeout = 2 * time.Second

// handlePing is the liveness probe.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Server is running",
	})
}

// handleStatus reports dependency health. A broken broker or database shows
// up here as a flag, never as a 5xx on the data endpoints.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	mqttConnected := s.broker != nil && s.broker.IsConnected()

	dbConnected := false
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		dbConnected = s.db.HealthCheck(ctx) == nil
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"server":         "Running",
		"mqtt_connected": mqttConnected,
		"db_connected":   dbConnected,
	})
}
