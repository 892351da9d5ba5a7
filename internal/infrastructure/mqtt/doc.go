// Package mqtt provides MQTT publishing for the WESMUN core.
//
// The service publishes activity events (audit entries, NFC scans) to a
// broker so dashboards and door displays can react without polling the API.
// It is publish-only: nothing in the core consumes MQTT messages.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS and payload validation
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Topics
//
//	<prefix>/system/status        retained online/offline status
//	<prefix>/events/<event type>  one JSON message per event
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Publish(client.Topics().Event("audit.user_login"), payload, 1, false)
//
// TLS should be enabled for deployments outside the venue network
// (cfg.Broker.TLS=true).
package mqtt
