package audit

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaOptions configures KafkaSink.
type KafkaOptions struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// KafkaSink publishes protobuf encoded events keyed by vehicle, so all
// events of a vehicle land in one partition in order.
type KafkaSink struct {
	Writer *kafka.Writer
}

// NewKafkaSink creates a KafkaSink.
func NewKafkaSink(opts KafkaOptions) *KafkaSink {
	return &KafkaSink{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Record implements Sink.
func (s *KafkaSink) Record(ctx context.Context, ev *Event) error {
	msg, err := KafkaMessage(ev)
	if err != nil {
		return err
	}
	return s.Writer.WriteMessages(ctx, msg)
}

// Close implements Sink.
func (s *KafkaSink) Close() error {
	return s.Writer.Close()
}

// KafkaMessage builds the message of an event.
func KafkaMessage(ev *Event) (kafka.Message, error) {
	value, err := ev.Encode()
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.Vehicle),
		Value: value,
		Time:  ev.Time(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind.String())},
			{Key: "event-id", Value: []byte(ev.ID)},
		},
	}, nil
}
