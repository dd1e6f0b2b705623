package api

import (
	"context"
	"net/http"
	"time"
)

// handleHealth is a liveness probe. It reports the process is up without
// touching any dependency.
//
// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// readyCheckTimeout bounds each dependency probe.
const readyCheckTimeout = 2 * time.Second

// handleReady is a readiness probe. The database is required; MQTT is
// reported but never fails readiness, since ingestion works without it.
//
// GET /api/ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			checks["database"] = "unavailable: " + err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}

	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "connected"
		} else {
			checks["mqtt"] = "disconnected"
		}
	}

	// The mirror is advisory: ingestion keeps working through an Influx
	// outage, so a failed ping is reported but never fails readiness.
	if s.influx != nil {
		if err := s.influx.HealthCheck(ctx); err != nil {
			checks["influxdb"] = "unavailable: " + err.Error()
		} else {
			checks["influxdb"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	writeJSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
