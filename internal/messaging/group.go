package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable represents a component that can be started and shutdown.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup starts its members in order and shuts them down in reverse,
// closing the shared subscriber last. Add sinks (e.g. a batching counter)
// before the consumers that feed them so they outlive their producers.
type ConsumerGroup struct {
	members    []Runnable
	subscriber message.Subscriber
	logger     *zap.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewConsumerGroup creates a new consumer group.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a member. Members start in the order they were added.
func (g *ConsumerGroup) Add(member Runnable) {
	g.members = append(g.members, member)
}

// Start starts all members. If one fails, those already started are shut down.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for i, member := range g.members {
		if err := member.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.members[j].Shutdown()
			}

			return fmt.Errorf("start group member %d: %w", i, err)
		}
	}

	g.logger.Info("consumer group started", zap.Int("members", len(g.members)))

	return nil
}

// Shutdown stops all members in reverse order and closes the subscriber.
// Later calls return the result of the first.
func (g *ConsumerGroup) Shutdown() error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down consumer group")

		var errs []error

		for i := len(g.members) - 1; i >= 0; i-- {
			if err := g.members[i].Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}

		if err := g.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}

		g.shutdownErr = errors.Join(errs...)
	})

	return g.shutdownErr
}
