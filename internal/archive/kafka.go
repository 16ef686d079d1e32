package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes one message per archived segment. Messages are
// keyed by capture session so a session's segments stay in order.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a synchronous producer for topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			WriteTimeout:           10 * time.Second,
			ReadTimeout:            10 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

// Notify writes ev to the topic.
func (n *KafkaNotifier) Notify(ctx context.Context, ev Event) error {
	msg, err := eventMessage(ev)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func eventMessage(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal segment event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.Session),
		Value: value,
		Time:  ev.Finalized,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("segment.finalized")},
			{Key: "source", Value: []byte("astrec")},
		},
	}, nil
}
