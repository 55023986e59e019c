package event

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Kafka{writer: w}
}

func (k *Kafka) Publish(ctx context.Context, action string, body []byte) error {
	msg := kafka.Message{
		Key:     []byte(action),
		Value:   body,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: ActionHeader, Value: []byte(action)}},
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *Kafka) Close() error { return k.writer.Close() }
