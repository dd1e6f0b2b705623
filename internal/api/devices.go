package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arguswatcher/argus-ingest/internal/device"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/mqtt"
)

// createDeviceRequest is the body for registering a new device.
type createDeviceRequest struct {
	UUID  string `json:"uuid,omitempty"`
	Alias string `json:"alias"`
}

// createDeviceResponse includes the plaintext API key. This is the only
// time the key is returned; afterwards only its hash exists.
type createDeviceResponse struct {
	Device *device.Device `json:"device"`
	APIKey string         `json:"api_key"`
}

// updateDeviceRequest is the body for updating a device. Both fields are
// optional; RotateKey issues a fresh API key.
type updateDeviceRequest struct {
	Alias     *string `json:"alias,omitempty"`
	RotateKey bool    `json:"rotate_key,omitempty"`
}

type updateDeviceResponse struct {
	Device *device.Device `json:"device"`
	// APIKey is set only when the key was rotated.
	APIKey string `json:"api_key,omitempty"`
}

// handleListDevices returns all registered devices.
//
// GET /api/devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.repo.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by UUID.
//
// GET /api/devices/{device_uuid}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "device_uuid")

	dev, err := s.repo.GetByUUID(r.Context(), deviceUUID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to load device", "device_uuid", deviceUUID, "error", err)
		writeInternalError(w, "failed to load device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new device and issues its API key.
//
// POST /api/devices
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.UUID == "" {
		req.UUID = device.GenerateUUID()
	}

	apiKey, err := device.GenerateAPIKey()
	if err != nil {
		s.logger.Error("failed to generate API key", "error", err)
		writeInternalError(w, "failed to generate API key")
		return
	}

	dev := &device.Device{
		UUID:       req.UUID,
		Alias:      req.Alias,
		APIKeyHash: device.HashAPIKey(apiKey),
	}
	if err := device.ValidateDevice(dev); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.repo.Create(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "device already exists")
			return
		}
		s.logger.Error("failed to create device", "device_uuid", dev.UUID, "error", err)
		writeInternalError(w, "failed to create device")
		return
	}

	s.logger.Info("device registered",
		"device_uuid", dev.UUID,
		"alias", dev.Alias,
		"admin", adminSubject(r.Context()))

	writeJSON(w, http.StatusCreated, createDeviceResponse{
		Device: dev,
		APIKey: apiKey,
	})
}

// handleUpdateDevice changes a device's alias and/or rotates its API key.
//
// PATCH /api/devices/{device_uuid}
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "device_uuid")

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Alias == nil && !req.RotateKey {
		writeBadRequest(w, "nothing to update")
		return
	}

	dev, err := s.repo.GetByUUID(r.Context(), deviceUUID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to load device", "device_uuid", deviceUUID, "error", err)
		writeInternalError(w, "failed to load device")
		return
	}

	if req.Alias != nil {
		dev.Alias = *req.Alias
	}

	var newKey string
	if req.RotateKey {
		newKey, err = device.GenerateAPIKey()
		if err != nil {
			s.logger.Error("failed to generate API key", "error", err)
			writeInternalError(w, "failed to generate API key")
			return
		}
		dev.APIKeyHash = device.HashAPIKey(newKey)
	}

	if err := device.ValidateDevice(dev); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.repo.Update(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to update device", "device_uuid", deviceUUID, "error", err)
		writeInternalError(w, "failed to update device")
		return
	}

	s.invalidateDevice(deviceUUID)

	s.logger.Info("device updated",
		"device_uuid", deviceUUID,
		"version", dev.Version,
		"key_rotated", req.RotateKey,
		"admin", adminSubject(r.Context()))

	writeJSON(w, http.StatusOK, updateDeviceResponse{
		Device: dev,
		APIKey: newKey,
	})
}

// handleDeleteDevice soft-deletes a device. Its readings remain.
//
// DELETE /api/devices/{device_uuid}
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "device_uuid")

	if err := s.repo.Delete(r.Context(), deviceUUID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to delete device", "device_uuid", deviceUUID, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	s.invalidateDevice(deviceUUID)

	s.logger.Info("device deleted",
		"device_uuid", deviceUUID,
		"admin", adminSubject(r.Context()))

	w.WriteHeader(http.StatusNoContent)
}

// handleInvalidateDevice evicts a device from every instance's registry
// cache without changing the registry itself.
//
// POST /api/devices/{device_uuid}/invalidate
func (s *Server) handleInvalidateDevice(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "device_uuid")

	s.invalidateDevice(deviceUUID)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "invalidated",
		"device_uuid": deviceUUID,
	})
}

// invalidateDevice evicts the local cache entry and broadcasts the
// invalidation so other instances evict theirs too. Broadcast failures
// are logged, not surfaced; the TTL bounds staleness either way.
func (s *Server) invalidateDevice(deviceUUID string) {
	s.auth.Invalidate(deviceUUID)

	if s.mqtt == nil {
		return
	}
	topic := mqtt.Topics{}.RegistryInvalidate()
	if err := s.mqtt.PublishString(topic, deviceUUID, 1, false); err != nil {
		s.logger.Warn("failed to broadcast cache invalidation",
			"device_uuid", deviceUUID,
			"error", err)
	}
}
