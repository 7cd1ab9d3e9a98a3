package audit

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Influx measurements.
const (
	MeasurementDecision  = "ignition_decision"
	MeasurementTelemetry = "device_telemetry"
)

// InfluxOptions configures InfluxSink.
type InfluxOptions struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// InfluxSink writes events as points to InfluxDB.
type InfluxSink struct {
	Client   influxdb2.Client
	WriteAPI api.WriteAPIBlocking
}

// NewInfluxSink creates an InfluxSink.
func NewInfluxSink(opts InfluxOptions) *InfluxSink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &InfluxSink{
		Client:   client,
		WriteAPI: client.WriteAPIBlocking(opts.Org, opts.Bucket),
	}
}

// Record implements Sink.
func (s *InfluxSink) Record(ctx context.Context, ev *Event) error {
	if pt := EventPoint(ev); pt != nil {
		return s.WriteAPI.WritePoint(ctx, pt)
	}
	return nil
}

// Close implements Sink.
func (s *InfluxSink) Close() error {
	s.Client.Close()
	return nil
}

// EventPoint converts an event to a point. It returns nil for events
// without payload.
func EventPoint(ev *Event) *write.Point {
	tags := map[string]string{"vehicle": ev.Vehicle}
	switch {
	case ev.Decision != nil:
		d := ev.Decision
		tags["permission"] = d.Permission
		tags["cause"] = d.Cause
		fields := map[string]interface{}{
			"tamper":  d.Tamper,
			"warning": d.Warning,
			"allowed": d.Permission == "ALLOWED",
		}
		if d.HasBac {
			fields["bac"] = float64(d.Bac)
			fields["confidence"] = int64(d.Confidence)
		}
		if d.AlertLevel != "" {
			tags["alert_level"] = d.AlertLevel
		}
		return write.NewPoint(MeasurementDecision, tags, fields, ev.Time())
	case ev.Telemetry != nil:
		t := ev.Telemetry
		return write.NewPoint(MeasurementTelemetry, tags, map[string]interface{}{
			"device_status":      int64(t.DeviceStatus),
			"battery_level":      float64(t.BatteryLevel),
			"last_bac_update_ms": int64(t.LastBacUpdateMs),
			"connection_quality": int64(t.ConnectionQuality),
			"tamper":             t.Tamper,
		}, ev.Time())
	}
	return nil
}
