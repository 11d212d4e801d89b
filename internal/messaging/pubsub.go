package messaging

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// Transport names accepted by configuration.
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
)

// PubSub bundles a publisher and subscriber for the same transport.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the publisher and the subscriber.
func (p *PubSub) Close() error {
	return errors.Join(p.Publisher.Close(), p.Subscriber.Close())
}

// NewGoChannel returns an in-process pub/sub. Publisher and subscriber share
// a single GoChannel, so events never leave the process.
func NewGoChannel(buffer int64, logger watermill.LoggerAdapter) *PubSub {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
	}, logger)

	return &PubSub{Publisher: ch, Subscriber: ch}
}

// NewRedisStream returns a pub/sub backed by Redis Streams. Subscribers in the
// same consumer group share the stream, each message going to one of them.
func NewRedisStream(client redis.UniversalClient, consumerGroup string, logger watermill.LoggerAdapter) (*PubSub, error) {
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create redis stream publisher: %w", err)
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: consumerGroup,
	}, logger)
	if err != nil {
		_ = pub.Close()

		return nil, fmt.Errorf("create redis stream subscriber: %w", err)
	}

	return &PubSub{Publisher: pub, Subscriber: sub}, nil
}
