package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaReader is the subset of *kafka.Reader the consumer drives.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// KafkaWriter is the subset of *kafka.Writer used for publishing.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

func NewKafkaReader(cfg KafkaConsumerConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
}

// kafkaConsumer commits offsets explicitly. Kafka has no per-message
// requeue: Nack(false) forwards to the dead-letter writer (if any) and
// commits, Nack(true) leaves the offset uncommitted.
type kafkaConsumer struct {
	reader     KafkaReader
	deadLetter KafkaWriter
	logger     zerolog.Logger
}

func NewKafkaConsumer(reader KafkaReader, deadLetter KafkaWriter, logger zerolog.Logger) Consumer {
	return &kafkaConsumer{
		reader:     reader,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

func (c *kafkaConsumer) Consume(ctx context.Context) (<-chan Message, error) {
	output := make(chan Message)

	go func() {
		defer close(output)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					c.logger.Info().Msg("Stopping Kafka consumer")
					return
				}
				c.logger.Error().Err(err).Msg("Error fetching Kafka message")
				select {
				case <-time.After(time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}

			select {
			case output <- c.wrap(ctx, m):
			case <-ctx.Done():
				return
			}
		}
	}()

	c.logger.Info().Msg("Kafka consumer started")
	return output, nil
}

func (c *kafkaConsumer) wrap(ctx context.Context, m kafka.Message) Message {
	commit := func() error {
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.reader.CommitMessages(commitCtx, m); err != nil {
			return fmt.Errorf("failed to commit offset %d: %w", m.Offset, err)
		}
		return nil
	}

	return Message{
		Body:      m.Value,
		Key:       string(m.Key),
		Timestamp: m.Time,
		Ack:       commit,
		Nack: func(requeue bool) error {
			if requeue {
				c.logger.Warn().
					Str("topic", m.Topic).
					Int("partition", m.Partition).
					Int64("offset", m.Offset).
					Msg("Kafka message left uncommitted")
				return nil
			}
			if c.deadLetter != nil {
				dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				err := c.deadLetter.WriteMessages(dlqCtx, kafka.Message{
					Key:   m.Key,
					Value: m.Value,
					Time:  time.Now(),
				})
				if err != nil {
					return fmt.Errorf("failed to dead-letter message: %w", err)
				}
			}
			return commit()
		},
	}
}

func (c *kafkaConsumer) GetQueueLength() (int, error) {
	return int(c.reader.Stats().Lag), nil
}

func (c *kafkaConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}
	if c.deadLetter != nil {
		if err := c.deadLetter.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to close dead-letter writer")
		}
	}

	c.logger.Info().Msg("Kafka consumer closed")
	return nil
}
