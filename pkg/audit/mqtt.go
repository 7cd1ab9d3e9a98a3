package audit

import (
	"context"

	"github.com/robotalks/alcolock/pkg/link/mqtt"
)

// MQTTSink publishes protobuf encoded events on <vehicle>/audit.
type MQTTSink struct {
	Queue *mqtt.Queue
}

// AuditTopic is the topic (without prefix) of a vehicle's events.
func AuditTopic(vehicle string) string {
	return vehicle + "/audit"
}

// NewMQTTSink connects to the broker at brokerURL.
func NewMQTTSink(brokerURL string) (*MQTTSink, error) {
	q, err := mqtt.NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	token := q.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &MQTTSink{Queue: q}, nil
}

// Record implements Sink.
func (s *MQTTSink) Record(ctx context.Context, ev *Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	token := s.Queue.Pub(AuditTopic(ev.Vehicle), data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Sink.
func (s *MQTTSink) Close() error {
	return s.Queue.Close()
}
