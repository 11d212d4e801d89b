package messaging

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Handler processes a single event. Returning an error nacks the message so
// the transport can redeliver it.
type Handler[T any] func(ctx context.Context, event *T) error

// ConsumerStats counts messages by outcome.
type ConsumerStats struct {
	Processed int64
	Failed    int64
	Malformed int64
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	handlerTimeout time.Duration
}

// WithHandlerTimeout bounds each handler call. Zero leaves it unbounded.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		c.handlerTimeout = d
	}
}

// Consumer decodes JSON messages from one topic and passes them to a typed
// handler, one at a time.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	cfg        consumerConfig
	logger     *zap.Logger

	processed atomic.Int64
	failed    atomic.Int64
	malformed atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a consumer for topic.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	c := &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&c.cfg)
	}

	return c
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Stats returns the message counts so far.
func (c *Consumer[T]) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
		Malformed: c.malformed.Load(),
	}
}

// Start subscribes and consumes in the background until Shutdown is called
// or ctx is cancelled.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.cancel()
		close(c.done)

		return err
	}

	go func() {
		defer close(c.done)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				c.process(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer[T]) process(ctx context.Context, msg *message.Message) {
	fields := []zap.Field{zap.String("message_uuid", msg.UUID)}

	if published, err := time.Parse(time.RFC3339Nano, msg.Metadata.Get(MetadataPublishedAt)); err == nil {
		fields = append(fields, zap.Duration("lag", time.Since(published)))
	}

	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// Redelivery cannot fix a malformed payload.
		c.malformed.Add(1)
		c.logger.Error("dropping malformed event", append(fields, zap.Error(err))...)
		msg.Ack()

		return
	}

	if c.cfg.handlerTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.cfg.handlerTimeout)
		defer cancel()
	}

	if err := c.handler(ctx, &event); err != nil {
		c.failed.Add(1)
		c.logger.Error("failed to handle event", append(fields, zap.Error(err))...)
		msg.Nack()

		return
	}

	c.processed.Add(1)
	msg.Ack()
	c.logger.Debug("processed event", fields...)
}

// Shutdown stops consuming and waits for the in-flight message to finish.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}

	<-c.done

	return nil
}
