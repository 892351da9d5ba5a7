package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MQTTPublisher is the subset of the MQTT client used by MQTTSink.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink republishes events as JSON on <prefix>/events/<type>.
type MQTTSink struct {
	client MQTTPublisher
	prefix string
	qos    byte
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(client MQTTPublisher, prefix string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, prefix: prefix, qos: qos}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic an event is published on.
func (s *MQTTSink) Topic(e Event) string {
	return s.prefix + "/events/" + e.Type
}

// Deliver implements Sink.
func (s *MQTTSink) Deliver(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	return s.client.Publish(s.Topic(e), payload, s.qos, false)
}

// PointWriter is the subset of the InfluxDB client used by InfluxSink.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// MeasurementActivity is the InfluxDB measurement for activity counters.
const MeasurementActivity = "activity"

// InfluxSink records one activity point per event.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates an InfluxDB sink.
func NewInfluxSink(writer PointWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Deliver implements Sink. Writes are batched by the client, so this never
// blocks on the network.
func (s *InfluxSink) Deliver(_ context.Context, e Event) error {
	s.writer.WritePoint(ActivityPoint(e))
	return nil
}

// ActivityPoint converts an event into an activity point tagged by action.
// Scan events also carry the link's running scan_count.
func ActivityPoint(e Event) *write.Point {
	action := e.Type
	if family := e.Family(); family != e.Type {
		action = e.Type[len(family)+1:]
	}

	fields := map[string]any{"count": 1}
	if n, ok := e.Payload["scan_count"]; ok {
		if v, ok := toInt64(n); ok {
			fields["scan_count"] = v
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(MeasurementActivity,
		map[string]string{"action": action, "family": e.Family()},
		fields, ts)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
