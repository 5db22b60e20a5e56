// Package bridge relays device state between the MQTT broker and the store.
//
// It subscribes to device/+/signin and device/+/stateChange. Signin
// reconciles a device against stored state (stored state wins); stateChange
// persists reported status, appends an audit record, notifies websocket
// sessions and optionally records telemetry.
//
// Subscription callbacks never touch the store directly: they enqueue onto
// a buffered channel consumed by a single goroutine, so messages are
// processed in arrival order and writes are serialised.
package bridge
