package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/shortqr/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	topics     []string
	messages   []*message.Message
	publishErr error
	closeErr   error
	closes     int
}

func (p *recordingPublisher) Publish(topic string, msgs ...*message.Message) error {
	if p.publishErr != nil {
		return p.publishErr
	}

	for _, msg := range msgs {
		p.topics = append(p.topics, topic)
		p.messages = append(p.messages, msg)
	}

	return nil
}

func (p *recordingPublisher) Close() error {
	p.closes++

	return p.closeErr
}

func TestNewPublishFunc(t *testing.T) {
	t.Run("encodes the event with publish metadata", func(t *testing.T) {
		pub := &recordingPublisher{}
		publish := messaging.NewPublishFunc[testEvent](pub, "link.resolved")

		before := time.Now().UTC()
		err := publish(context.Background(), &testEvent{ID: "123", Name: "test"})

		require.NoError(t, err)
		require.Len(t, pub.messages, 1)
		assert.Equal(t, []string{"link.resolved"}, pub.topics)
		assert.JSONEq(t, `{"id":"123","name":"test"}`, string(pub.messages[0].Payload))
		assert.NotEmpty(t, pub.messages[0].UUID)

		published, err := time.Parse(time.RFC3339Nano, pub.messages[0].Metadata.Get(messaging.MetadataPublishedAt))
		require.NoError(t, err)
		assert.False(t, published.Before(before.Truncate(time.Microsecond)))
	})

	t.Run("each event gets its own message id", func(t *testing.T) {
		pub := &recordingPublisher{}
		publish := messaging.NewPublishFunc[testEvent](pub, "link.resolved")

		require.NoError(t, publish(context.Background(), &testEvent{ID: "1"}))
		require.NoError(t, publish(context.Background(), &testEvent{ID: "2"}))

		require.Len(t, pub.messages, 2)
		assert.NotEqual(t, pub.messages[0].UUID, pub.messages[1].UUID)
	})

	t.Run("wraps transport errors with the topic", func(t *testing.T) {
		transportErr := errors.New("connection reset")
		publish := messaging.NewPublishFunc[testEvent](&recordingPublisher{publishErr: transportErr}, "link.resolved")

		err := publish(context.Background(), &testEvent{ID: "123"})

		require.ErrorIs(t, err, transportErr)
		assert.Contains(t, err.Error(), "link.resolved")
	})
}

func TestPublisherGroup(t *testing.T) {
	t.Run("exposes the shared publisher", func(t *testing.T) {
		pub := &recordingPublisher{}

		assert.Same(t, pub, messaging.NewPublisherGroup(pub).Publisher())
	})

	t.Run("closes the publisher once", func(t *testing.T) {
		pub := &recordingPublisher{closeErr: errors.New("close error")}
		group := messaging.NewPublisherGroup(pub)

		first := group.Shutdown()
		second := group.Shutdown()

		require.Error(t, first)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, pub.closes)
	})
}
