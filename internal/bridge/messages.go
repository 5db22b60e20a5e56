package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bulbnet/bulbnet-core/internal/device"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/mqtt"
)

// statusPayload is the wire shape for signin and stateChange messages.
// Status stays raw: the relay stores whatever JSON the device reports.
type statusPayload struct {
	Status json.RawMessage `json:"status"`
}

// statusPresent reports whether a payload carried a usable status.
// JSON null counts as absent, matching how devices omit the field.
func statusPresent(status json.RawMessage) bool {
	return len(status) > 0 && string(status) != "null"
}

// handle interprets one inbound message. Malformed input is logged and
// dropped; the subscription stays up.
func (b *Bridge) handle(msg Message) {
	deviceID, leaf, ok := mqtt.ParseDeviceTopic(msg.Topic)
	if !ok {
		b.logger.Warn("message on unexpected topic", "topic", msg.Topic)
		return
	}

	var payload statusPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		b.logger.Warn("malformed payload dropped",
			"topic", msg.Topic,
			"error", err,
		)
		return
	}

	switch leaf {
	case mqtt.LeafSignin:
		b.handleSignin(deviceID, payload)
	case mqtt.LeafStateChange:
		b.handleStateChange(deviceID, payload)
	default:
		b.logger.Warn("message on unexpected topic", "topic", msg.Topic)
	}
}

// handleSignin reconciles a device announcing itself.
//
// Stored state is authoritative: a known device gets its stored status
// republished regardless of what the signin payload claims. An unknown
// device that reports a status has it persisted as the initial status.
// Either way the resolved status goes back out on the device's stateChange
// topic, null included, so the device always learns the outcome.
func (b *Bridge) handleSignin(deviceID string, payload statusPayload) {
	ctx := context.Background()

	resolved := json.RawMessage("null")

	existing, err := b.devices.GetByID(ctx, deviceID)
	switch {
	case err == nil:
		resolved = existing.Status

	case errors.Is(err, device.ErrDeviceNotFound):
		if statusPresent(payload.Status) {
			if err := b.devices.UpsertStatus(ctx, deviceID, payload.Status); err != nil {
				b.logger.Error("storing initial device status failed",
					"device_id", deviceID,
					"error", err,
				)
				return
			}
			resolved = payload.Status
		}

	default:
		b.logger.Error("device lookup failed", "device_id", deviceID, "error", err)
		return
	}

	b.republish(deviceID, resolved)
}

// handleStateChange applies a reported status change.
//
// A payload without a status is dropped without touching the store. An
// accepted change is upserted, audited under the system label, pushed to
// websocket sessions and, when a sink is configured, recorded as telemetry.
// Replays are harmless: the upsert is idempotent, only the audit trail
// grows.
func (b *Bridge) handleStateChange(deviceID string, payload statusPayload) {
	if !statusPresent(payload.Status) {
		b.logger.Warn("stateChange without status dropped", "device_id", deviceID)
		return
	}

	ctx := context.Background()

	if err := b.devices.UpsertStatus(ctx, deviceID, payload.Status); err != nil {
		b.logger.Error("storing device status failed",
			"device_id", deviceID,
			"error", err,
		)
		return
	}

	if err := b.audit.Create(ctx, &device.AuditRecord{
		DeviceID: deviceID,
		Status:   payload.Status,
		Username: SystemUsername,
	}); err != nil {
		b.logger.Error("audit write failed", "device_id", deviceID, "error", err)
	}

	if b.notifier != nil {
		b.notifier.Broadcast("device_status_update", map[string]any{
			"device_id": deviceID,
			"status":    payload.Status,
		})
	}

	if b.metrics != nil {
		if fields := metricFields(payload.Status); len(fields) > 0 {
			b.metrics.WriteDeviceStatus(deviceID, fields)
		}
	}
}

// republish sends a resolved status back out on the device's stateChange
// topic. Failures are logged; the store write (if any) stands.
func (b *Bridge) republish(deviceID string, status json.RawMessage) {
	if len(status) == 0 {
		status = json.RawMessage("null")
	}

	body, err := json.Marshal(statusPayload{Status: status})
	if err != nil {
		b.logger.Error("encoding republish payload failed",
			"device_id", deviceID,
			"error", err,
		)
		return
	}

	topic := b.topics.DeviceStateChange(deviceID)
	if err := b.broker.Publish(topic, body, b.qos, false); err != nil {
		b.logger.Error("republish failed",
			"device_id", deviceID,
			"topic", topic,
			"error", err,
		)
	}
}

// metricFields extracts the numeric and boolean fields of a status for the
// telemetry sink. Object statuses contribute their top-level numeric/bool
// members; a bare number or bool becomes a single "value" field. Strings
// and nested structures are skipped.
func metricFields(status json.RawMessage) map[string]interface{} {
	var asObject map[string]any
	if err := json.Unmarshal(status, &asObject); err == nil {
		fields := make(map[string]interface{})
		for k, v := range asObject {
			switch v.(type) {
			case float64, bool:
				fields[k] = v
			}
		}
		return fields
	}

	var asScalar any
	if err := json.Unmarshal(status, &asScalar); err == nil {
		switch asScalar.(type) {
		case float64, bool:
			return map[string]interface{}{"value": asScalar}
		}
	}

	return nil
}
