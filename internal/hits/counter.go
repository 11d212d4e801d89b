package hits

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/serroba/shortqr/internal/shortener"
	"go.uber.org/zap"
)

// Counter defaults.
const (
	DefaultBatchSize     = 500
	DefaultFlushInterval = time.Second
)

// Counter aggregates resolved-link events into per-code deltas and flushes
// them to the repository in batches. Increments pending at a crash are lost.
type Counter struct {
	repo      shortener.Repository
	batchSize int
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[shortener.Code]int64
	count   int

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCounter creates a counter flushing every interval or every batchSize events.
func NewCounter(repo shortener.Repository, batchSize int, interval time.Duration, logger *zap.Logger) *Counter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	return &Counter{
		repo:      repo,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
		pending:   make(map[shortener.Code]int64),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Handle records one hit. It matches messaging.Handler and never fails, so
// messages are not redelivered.
func (c *Counter) Handle(_ context.Context, event *LinkResolvedEvent) error {
	c.mu.Lock()
	c.pending[shortener.Code(event.Code)]++
	c.count++
	full := c.count >= c.batchSize
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}

	return nil
}

// Start flushes in the background until Shutdown.
func (c *Counter) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))

	go c.loop(ctx)

	return nil
}

func (c *Counter) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Flush(context.Background())

			return
		case <-ticker.C:
			c.Flush(ctx)
		case <-c.kick:
			c.Flush(ctx)
		}
	}
}

// Flush writes all pending deltas and returns how many codes were updated.
func (c *Counter) Flush(ctx context.Context) int {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[shortener.Code]int64, len(batch))
	c.count = 0
	c.mu.Unlock()

	flushed := 0

	for code, delta := range batch {
		err := c.repo.IncrementHits(ctx, code, delta)

		switch {
		case err == nil:
			flushed++
		case errors.Is(err, shortener.ErrNotFound):
			c.logger.Debug("hit for unknown code", zap.String("code", string(code)))
		default:
			c.logger.Warn("failed to flush hits",
				zap.String("code", string(code)),
				zap.Int64("delta", delta),
				zap.Error(err),
			)
		}
	}

	if flushed > 0 {
		c.logger.Debug("flushed hit counts", zap.Int("codes", flushed))
	}

	return flushed
}

// Shutdown stops the flush loop after a final flush.
func (c *Counter) Shutdown() error {
	if c.cancel == nil {
		c.Flush(context.Background())

		return nil
	}

	c.cancel()
	<-c.done

	return nil
}
