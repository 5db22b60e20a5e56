// Package device provides persistence for devices and their audit trail.
//
// A device is a flat record: an ID and an opaque JSON status. The relay
// stores whatever status a device or user reports, with no schema beyond
// JSON serialisability.
//
// Two write paths exist on purpose:
//   - UpsertStatus creates unknown devices (broker-originated writes)
//   - UpdateStatus refuses them with ErrDeviceNotFound (API writes)
//
// Every accepted write appends an audit record attributing the change to a
// username: the JWT subject for API writes, a fixed system label for
// broker-originated ones.
package device
