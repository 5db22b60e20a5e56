package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceStatus records the measurable fields of an accepted device
// status change.
//
// fields should contain only numeric or boolean values; the bridge extracts
// them from the status document before calling. The write is non-blocking;
// data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteDeviceStatus("bulb-1", map[string]interface{}{
//	    "on": true, "brightness": 80.0,
//	})
func (c *Client) WriteDeviceStatus(deviceID string, fields map[string]interface{}) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods. Tags should
// be low cardinality; fields hold the actual data.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
