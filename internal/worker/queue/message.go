package queue

import (
	"context"
	"time"
)

// Message is a delivery from any transport. Ack settles it; Nack with
// requeue=false hands it to the dead-letter route when one exists.
type Message struct {
	Body      []byte
	Key       string
	Timestamp time.Time
	Ack       func() error
	Nack      func(requeue bool) error
}

type Consumer interface {
	Consume(ctx context.Context) (<-chan Message, error)
	GetQueueLength() (int, error)
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}
