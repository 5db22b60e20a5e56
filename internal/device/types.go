package device

import (
	"encoding/json"
	"errors"
	"time"
)

// Device is a known device and its last reported status.
//
// Status is an opaque JSON value: the relay imposes no schema beyond JSON
// serialisability, so a status can be a string, number, object, or null.
type Device struct {
	DeviceID  string          `json:"device_id"`
	Status    json.RawMessage `json:"status"`
	UpdatedAt time.Time       `json:"-"`
}

// Sentinel errors for device operations.
var (
	// ErrDeviceNotFound is returned by lookups and targeted updates when
	// no device row matches.
	ErrDeviceNotFound = errors.New("device not found")
)
