package qr

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single render, including time spent waiting for a worker.
const DefaultTimeout = 5 * time.Second

// Request is a single render request.
type Request struct {
	TargetURL string
	Style     Style
	Logo      []byte
}

// Config configures a Renderer.
type Config struct {
	// Workers bounds concurrent renders. Defaults to GOMAXPROCS.
	Workers int
	// CacheSize is the number of rendered PNGs kept. Zero disables caching.
	CacheSize int
	// ModulePixels is the preferred module size in pixels.
	ModulePixels int
	// Timeout bounds each render.
	Timeout time.Duration
}

// Renderer renders QR codes with bounded concurrency, collapsing identical
// in-flight requests and caching results.
type Renderer struct {
	sem      *semaphore.Weighted
	inflight singleflight.Group
	cache    *lru.Cache[string, []byte]
	modulePx int
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRenderer creates a renderer.
func NewRenderer(cfg Config, logger *zap.Logger) (*Renderer, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r := &Renderer{
		sem:      semaphore.NewWeighted(int64(workers)),
		modulePx: cfg.ModulePixels,
		timeout:  timeout,
		logger:   logger,
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create qr cache: %w", err)
		}

		r.cache = cache
	}

	return r, nil
}

// Render returns the PNG for req. Input errors wrap ErrInvalidStyle or
// ErrEncodingTooLarge; a cancelled or expired ctx returns the context error.
func (r *Renderer) Render(ctx context.Context, req Request) ([]byte, error) {
	if err := req.Style.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(req.TargetURL, req.Style, req.Logo)

	if r.cache != nil {
		if png, ok := r.cache.Get(key); ok {
			return png, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ch := r.inflight.DoChan(key, func() (interface{}, error) {
		return r.render(ctx, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.([]byte), nil
	}
}

func (r *Renderer) render(ctx context.Context, key string, req Request) (png []byte, err error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("qr render panicked", zap.Any("panic", p))
			err = fmt.Errorf("%w: %v", ErrRenderFailure, p)
		}
	}()

	start := time.Now()

	png, err = Render(req.TargetURL, req.Style, req.Logo, r.modulePx)
	if err != nil {
		if !errors.Is(err, ErrInvalidStyle) && !errors.Is(err, ErrEncodingTooLarge) {
			r.logger.Error("qr render failed", zap.Error(err))
		}

		return nil, err
	}

	r.logger.Debug("rendered qr code",
		zap.Int("target_length", len(req.TargetURL)),
		zap.Bool("logo", len(req.Logo) > 0),
		zap.Int("bytes", len(png)),
		zap.Duration("duration", time.Since(start)),
	)

	if r.cache != nil {
		r.cache.Add(key, png)
	}

	return png, nil
}
