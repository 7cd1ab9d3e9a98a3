package audit

import (
	"context"

	"github.com/golang/glog"
)

// Options selects the sinks to record to. Empty sections are skipped.
type Options struct {
	Influx InfluxOptions `yaml:"influx"`
	Kafka  KafkaOptions  `yaml:"kafka"`
	Redis  RedisOptions  `yaml:"redis"`
	// MQTT is a broker URL for the live event feed.
	MQTT string `yaml:"mqtt"`
}

// Enabled reports whether any sink is configured.
func (o Options) Enabled() bool {
	return o.Influx.URL != "" || len(o.Kafka.Brokers) > 0 || o.Redis.URL != "" || o.MQTT != ""
}

// Open creates the configured sinks. Sinks opened before a failure are
// closed.
func Open(opts Options) (Multi, error) {
	var sinks Multi
	fail := func(err error) (Multi, error) {
		sinks.Close()
		return nil, err
	}
	if opts.Influx.URL != "" {
		sinks = append(sinks, NewInfluxSink(opts.Influx))
	}
	if len(opts.Kafka.Brokers) > 0 {
		sinks = append(sinks, NewKafkaSink(opts.Kafka))
	}
	if opts.Redis.URL != "" {
		sink, err := NewRedisSink(opts.Redis)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
	}
	if opts.MQTT != "" {
		sink, err := NewMQTTSink(opts.MQTT)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

// LogSink writes events to the log.
type LogSink struct{}

// Record implements Sink.
func (LogSink) Record(_ context.Context, ev *Event) error {
	glog.Infof("AUDIT %s", ev)
	return nil
}

// Close implements Sink.
func (LogSink) Close() error { return nil }
