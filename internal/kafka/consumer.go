package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/logger"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer reads topic as part of groupID. Every service instance uses its
// own group when it needs to see every message.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{reader: reader, logger: log}
}

// Start blocks, handing each message to handler until ctx is cancelled.
// Handler errors are logged and the message is skipped.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, msg kafka.Message) error) {
	topic := c.reader.Config().Topic
	c.logger.LogKafka("CONSUMER", topic, "started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ctx.Err()) {
				c.logger.LogKafka("CONSUMER", topic, "stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", topic, err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Skipping message %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
