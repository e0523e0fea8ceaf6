package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer  *kafka.Writer
	Timeout time.Duration
}

// NewProducer writes to any topic; the topic is chosen per message. Messages
// with the same key land on the same partition, so per-event ordering holds.
func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Timeout: 5 * time.Second}
}

func buildMessage(topic, key string, value []byte) kafka.Message {
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
}

// Publish writes one message and waits for the broker acknowledgement.
func (p *Producer) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	if err := p.Writer.WriteMessages(ctx, buildMessage(topic, key, value)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it.
func (p *Producer) PublishJSON(topic, key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return p.Publish(topic, key, value)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
