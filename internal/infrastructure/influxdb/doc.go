// Package influxdb provides the optional status telemetry sink for Bulbnet.
//
// When enabled, the broker bridge records the numeric and boolean fields of
// every accepted device status change as InfluxDB points, tagged by device.
// Writes are batched and asynchronous; the sink is never on the request path
// and a failed write never affects the relay.
//
// # Configuration
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  token: "..."          # prefer BULBNET_INFLUXDB_TOKEN
//	  org: "bulbnet"
//	  bucket: "device_status"
//	  batch_size: 100
//	  flush_interval: 10    # seconds
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    // sink is optional; log and continue
//	}
//	defer client.Close()
//
//	client.WriteDeviceStatus("bulb-1", map[string]interface{}{"on": true})
package influxdb
