// Package influxdb provides InfluxDB connectivity for activity metrics.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. The event
// bus feeds it one point per audited action and NFC scan, giving the event
// team a time series of check-in throughput.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteMeasurement("activity", map[string]string{"action": "nfc_scan"}, map[string]any{"count": 1})
//
// # Error Handling
//
// Write errors arrive asynchronously through the SetOnError callback.
// Connection and health check errors are returned directly.
package influxdb
