package audit

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisNamespace prefixes the per-vehicle hash keys.
const DefaultRedisNamespace = "alcolock:vehicle"

// RedisOptions configures RedisSink.
type RedisOptions struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
}

// RedisSink keeps the latest ignition state and telemetry of each
// vehicle in a hash, for dashboards polling current status.
type RedisSink struct {
	Client    *redis.Client
	Namespace string
}

// NewRedisSink creates a RedisSink from a redis:// URL.
func NewRedisSink(opts RedisOptions) (*RedisSink, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultRedisNamespace
	}
	return &RedisSink{Client: redis.NewClient(ro), Namespace: ns}, nil
}

// Key is the hash key of a vehicle.
func (s *RedisSink) Key(vehicle string) string {
	return s.Namespace + ":" + vehicle
}

// Record implements Sink.
func (s *RedisSink) Record(ctx context.Context, ev *Event) error {
	fields := RedisFields(ev)
	if len(fields) == 0 {
		return nil
	}
	return s.Client.HSet(ctx, s.Key(ev.Vehicle), fields).Err()
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	return s.Client.Close()
}

// RedisFields are the hash fields updated by an event.
func RedisFields(ev *Event) map[string]interface{} {
	ts := strconv.FormatInt(ev.TimeMs, 10)
	switch {
	case ev.Decision != nil:
		d := ev.Decision
		fields := map[string]interface{}{
			"permission":  d.Permission,
			"cause":       d.Cause,
			"tamper":      strconv.FormatBool(d.Tamper),
			"warning":     strconv.FormatBool(d.Warning),
			"decision_at": ts,
			"decision_id": ev.ID,
		}
		if d.HasBac {
			fields["bac"] = strconv.FormatFloat(float64(d.Bac), 'f', 4, 32)
		}
		return fields
	case ev.Telemetry != nil:
		t := ev.Telemetry
		return map[string]interface{}{
			"device_status":      strconv.Itoa(int(t.DeviceStatus)),
			"battery_level":      strconv.FormatFloat(float64(t.BatteryLevel), 'f', 1, 32),
			"connection_quality": strconv.Itoa(int(t.ConnectionQuality)),
			"device_tamper":      strconv.FormatBool(t.Tamper),
			"telemetry_at":       ts,
		}
	}
	return nil
}
