package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a prepared point. The write is non-blocking; points
// are batched and sent asynchronously.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() || p == nil {
		return
	}
	c.writeAPI.WritePoint(p)
}

// WriteMeasurement builds and queues a point stamped now.
//
// Example:
//
//	client.WriteMeasurement("activity",
//	    map[string]string{"action": "nfc_scan"},
//	    map[string]any{"count": 1})
func (c *Client) WriteMeasurement(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
