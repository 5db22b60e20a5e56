// Package mqtt provides MQTT client connectivity for Bulbnet.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Devices publish to device/{id}/signin and device/{id}/stateChange; the
// relay subscribes to both with single-level wildcards and republishes
// reconciled state back to device/{id}/stateChange.
//
//	Devices ↔ MQTT Broker ↔ Bulbnet relay ↔ HTTP API / websocket UI
//
// # Security Considerations
//
//   - TLS with mutual client certificates for production brokers; the
//     certificate material arrives as PEM text via the secret-store overlay
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceSignins(), 1,
//	    func(topic string, payload []byte) error {
//	        // handle message
//	        return nil
//	    })
package mqtt
