package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arguswatcher/argus-ingest/internal/ingest"
	"github.com/arguswatcher/argus-ingest/internal/telemetry"
)

// ingestAck is the response body for an accepted reading.
type ingestAck struct {
	IngestionID string    `json:"ingestion_id"`
	DeviceUUID  string    `json:"device_uuid"`
	DeviceTime  time.Time `json:"device_time"`
	ReceivedAt  time.Time `json:"received_at"`
	Status      string    `json:"status"`
	Duplicate   bool      `json:"duplicate"`
}

// handleIngest accepts a telemetry reading from a device.
//
// POST /api/telemetry/{device_uuid}
// Header: x-api-key
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "device_uuid")
	apiKey := r.Header.Get("x-api-key")

	var payload telemetry.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result := s.gateway.Ingest(r.Context(), deviceUUID, apiKey, payload)

	switch result.Status {
	case ingest.StatusAccepted:
		httpStatus := http.StatusCreated
		outcome := "written"
		if result.Duplicate {
			httpStatus = http.StatusOK
			outcome = "duplicate"
		}
		writeJSON(w, httpStatus, ingestAck{
			IngestionID: result.Reading.IngestionID,
			DeviceUUID:  result.Reading.DeviceUUID,
			DeviceTime:  result.Reading.DeviceTime,
			ReceivedAt:  result.Reading.ReceivedAt,
			Status:      outcome,
			Duplicate:   result.Duplicate,
		})

	case ingest.StatusUnauthenticated:
		writeUnauthorized(w, result.Reason)

	case ingest.StatusRateLimited:
		writeRateLimited(w, result.RetryAfter, result.Reason)

	case ingest.StatusInvalidPayload:
		writeBadRequest(w, result.Reason)

	case ingest.StatusUnavailable:
		s.logger.Error("ingestion unavailable",
			"device_uuid", deviceUUID,
			"error", result.Err)
		writeServiceUnavailable(w, result.Reason)

	default:
		s.logger.Error("unexpected ingestion status",
			"device_uuid", deviceUUID,
			"status", result.Status.String())
		writeInternalError(w, "unexpected ingestion status")
	}
}

// handleLatestReading returns the newest reading for a device.
//
// GET /api/telemetry/latest/{device_uuid}
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "device_uuid")

	reading, err := s.store.LatestForDevice(r.Context(), deviceUUID)
	if err != nil {
		if errors.Is(err, telemetry.ErrNoReadings) {
			writeNotFound(w, "no readings for device")
			return
		}
		s.logger.Error("failed to load latest reading",
			"device_uuid", deviceUUID,
			"error", err)
		writeInternalError(w, "failed to load latest reading")
		return
	}

	writeJSON(w, http.StatusOK, reading)
}
