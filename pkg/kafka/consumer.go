// Package kafka wraps segmentio/kafka-go with JSON producers and
// at-least-once consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. A returned error makes the
// consumer retry the same message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// reader is the part of kafka.Reader the consume loop uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer dispatches the messages of one topic to a handler and commits
// each offset only after the handler has succeeded or given up, so a
// partition never advances past an unprocessed message.
type Consumer struct {
	reader  reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewConsumer joins the configured consumer group. A group without a
// committed offset starts from the oldest retained message.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return newReaderConsumer(cfg, cfg.ConsumerGroup, topic, kafka.FirstOffset, handler)
}

// NewGroupConsumer joins an explicit group starting at the newest message.
// Searcher replicas each use their own short-lived group so every replica
// sees every invalidation published while it runs.
func NewGroupConsumer(cfg config.KafkaConfig, group, topic string, handler MessageHandler) *Consumer {
	return newReaderConsumer(cfg, group, topic, kafka.LastOffset, handler)
}

func newReaderConsumer(cfg config.KafkaConfig, group, topic string, start int64, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     group,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: start,
	})
	return newConsumer(r, handler, slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group))
}

func newConsumer(r reader, handler MessageHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: logger,
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}
		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("giving up on message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	name := fmt.Sprintf("message %d/%d", msg.Partition, msg.Offset)
	return resilience.Retry(ctx, name, c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
