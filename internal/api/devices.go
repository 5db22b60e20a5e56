package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bulbnet/bulbnet-core/internal/device"
)

// statusUpdateRequest is the request body for POST /device/{id}.
type statusUpdateRequest struct {
	Status json.RawMessage `json:"status"`
}

// handleListDevices returns every known device with its current status.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "Failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	dev, err := s.devices.GetByID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "Device not found")
			return
		}
		s.logger.Error("device lookup failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "Failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDevice applies a user-initiated status change to an existing
// device.
//
// Unlike the broker path this never creates a device: an unknown ID is a
// 404 and nothing is stored, audited or published. On success the change
// is audited under the caller's username, published on the device's
// stateChange topic and pushed to websocket sessions. A publish failure
// after the store write is logged and the response is still a success;
// the broker will converge on the next message for that device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Status) == 0 || string(req.Status) == "null" {
		writeBadRequest(w, "Status is required")
		return
	}

	if err := s.devices.UpdateStatus(r.Context(), deviceID, req.Status); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "Device not found")
			return
		}
		s.logger.Error("device update failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "Failed to update device")
		return
	}

	username := usernameFromContext(r.Context())
	if err := s.audit.Create(r.Context(), &device.AuditRecord{
		DeviceID: deviceID,
		Status:   req.Status,
		Username: username,
	}); err != nil {
		s.logger.Error("audit write failed", "device_id", deviceID, "error", err)
	}

	s.publishStateChange(deviceID, req.Status)

	if s.hub != nil {
		s.hub.Broadcast("device_status_update", map[string]any{
			"device_id": deviceID,
			"status":    req.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// publishStateChange pushes an accepted status out on the device's
// stateChange topic so the device itself learns about UI-originated
// changes. Failures are logged; the store write stands.
//
// The payload is the bare status value, not the {"status": ...} envelope
// devices report with. The bridge subscribes to the same topic pattern and
// sees this publish echoed back by the broker; without the envelope it
// finds no status field and drops the echo, so an API write produces
// exactly one store write and one audit row.
func (s *Server) publishStateChange(deviceID string, status json.RawMessage) {
	if s.broker == nil {
		return
	}

	topic := s.topics.DeviceStateChange(deviceID)
	if err := s.broker.Publish(topic, status, s.qos, false); err != nil {
		s.logger.Error("stateChange publish failed",
			"device_id", deviceID,
			"topic", topic,
			"error", err,
		)
	}
}
