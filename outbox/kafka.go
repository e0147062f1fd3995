package outbox

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes outbox messages to Kafka, one topic per event type
// unless remapped.
type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
}

func NewKafkaPublisher(brokers []string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("outbox: kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicByEvent: topicByEvent,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	return p.writer.WriteMessages(ctx, toKafkaMessage(msg, p.topicByEvent))
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(msg Message, topicByEvent map[string]string) kafka.Message {
	topic := msg.Topic
	if mapped, ok := topicByEvent[msg.Topic]; ok && mapped != "" {
		topic = mapped
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(msg.PartitionKey),
		Value: msg.Payload,
		Time:  msg.CreatedAt.UTC(),
		Headers: []kafka.Header{
			{Key: "outbox-id", Value: []byte(msg.ID)},
			{Key: "event-type", Value: []byte(msg.Topic)},
		},
	}
}
