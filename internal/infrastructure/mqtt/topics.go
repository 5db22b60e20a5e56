package mqtt

import (
	"fmt"
	"strings"
)

// Topic scheme: device/{device_id}/{leaf}
//
// Devices publish to the signin and stateChange leaves; the relay republishes
// reconciled state to stateChange. Device IDs must not contain '/'.
const (
	// TopicPrefixDevice is the base for all device topics.
	TopicPrefixDevice = "device"

	// TopicPrefixSystem is the base for relay lifecycle topics.
	TopicPrefixSystem = "bulbnet/system"

	// LeafSignin is the topic leaf devices announce themselves on.
	LeafSignin = "signin"

	// LeafStateChange is the topic leaf carrying status payloads in both
	// directions.
	LeafStateChange = "stateChange"
)

// Topics provides builders for Bulbnet MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceSignin returns the signin topic for a specific device.
//
// Example: device/bulb-1/signin
func (Topics) DeviceSignin(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, deviceID, LeafSignin)
}

// DeviceStateChange returns the stateChange topic for a specific device.
//
// Example: device/bulb-1/stateChange
func (Topics) DeviceStateChange(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, deviceID, LeafStateChange)
}

// AllDeviceSignins returns the wildcard pattern matching every device's
// signin topic: device/+/signin
func (Topics) AllDeviceSignins() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevice, LeafSignin)
}

// AllDeviceStateChanges returns the wildcard pattern matching every device's
// stateChange topic: device/+/stateChange
func (Topics) AllDeviceStateChanges() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevice, LeafStateChange)
}

// SystemStatus returns the relay's own lifecycle topic.
//
// Example: bulbnet/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseDeviceTopic splits a concrete device topic into its device ID and
// leaf. ok is false for topics outside the device/{id}/{leaf} scheme.
func ParseDeviceTopic(topic string) (deviceID, leaf string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixDevice {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
