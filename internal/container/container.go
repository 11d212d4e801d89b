package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/shortqr/internal/handlers"
	"github.com/serroba/shortqr/internal/health"
	"github.com/serroba/shortqr/internal/hits"
	"github.com/serroba/shortqr/internal/messaging"
	"github.com/serroba/shortqr/internal/middleware"
	"github.com/serroba/shortqr/internal/qr"
	"github.com/serroba/shortqr/internal/shortener"
	"github.com/serroba/shortqr/internal/store"
	"go.uber.org/zap"
)

const (
	schemaTimeout  = 10 * time.Second
	handlerTimeout = 5 * time.Second
)

// RedisClient owns the shared Redis connection pool.
type RedisClient struct {
	*redis.Client
}

// Shutdown closes the pool.
func (c *RedisClient) Shutdown() error {
	return c.Close()
}

// PostgresPool owns the shared PostgreSQL connection pool.
type PostgresPool struct {
	*pgxpool.Pool
}

// Shutdown closes the pool.
func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

// ConfigPackage provides the parsed duration options.
func ConfigPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (Durations, error) {
		return do.MustInvoke[*Options](i).Durations()
	})
}

// LoggerPackage provides a JSON production logger or a console development logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		if do.MustInvoke[*Options](i).LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// RedisPackage provides the Redis client. Connections are opened lazily.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisClient{redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides the PostgreSQL pool.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)

		pool, err := pgxpool.New(context.Background(), opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}

		return &PostgresPool{pool}, nil
	})
}

// RepositoryPackage provides the link store selected by --store. A postgres
// store is fronted by a Redis read-through cache when --cache-ttl is set.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (shortener.Repository, error) {
		opts := do.MustInvoke[*Options](i)
		durations := do.MustInvoke[Durations](i)

		switch opts.Store {
		case StoreMemory:
			return store.NewMemoryStore(), nil
		case StoreRedis:
			return store.NewRedisStore(do.MustInvoke[*RedisClient](i).Client), nil
		case StorePostgres:
			pool, err := do.Invoke[*PostgresPool](i)
			if err != nil {
				return nil, err
			}

			pg := store.NewPostgresStore(pool.Pool)

			ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
			defer cancel()

			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, err
			}

			if durations.CacheTTL > 0 {
				client := do.MustInvoke[*RedisClient](i).Client

				return store.NewRedisCacheRepository(pg, client, durations.CacheTTL), nil
			}

			return pg, nil
		default:
			return nil, fmt.Errorf("unknown store %q (want memory, redis or postgres)", opts.Store)
		}
	})
}

// EventsPackage provides the hit event transport selected by --events.
func EventsPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PubSub, error) {
		opts := do.MustInvoke[*Options](i)
		logger := messaging.NewZapLogger(do.MustInvoke[*zap.Logger](i))

		switch opts.Events {
		case messaging.TransportMemory:
			return messaging.NewGoChannel(int64(opts.HitsQueueSize), logger), nil
		case messaging.TransportRedis:
			return messaging.NewRedisStream(do.MustInvoke[*RedisClient](i).Client, opts.ConsumerGroup, logger)
		default:
			return nil, fmt.Errorf("unknown event transport %q (want memory or redis)", opts.Events)
		}
	})
}

// ConsumerGroupPackage provides the hit counter and the consumer feeding it
// resolved-link events, grouped under one lifecycle.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*hits.Counter, error) {
		opts := do.MustInvoke[*Options](i)
		durations := do.MustInvoke[Durations](i)

		repo, err := do.Invoke[shortener.Repository](i)
		if err != nil {
			return nil, err
		}

		return hits.NewCounter(repo, opts.HitsBatchSize, durations.HitsFlushInterval,
			do.MustInvoke[*zap.Logger](i).Named("hits")), nil
	})

	do.Provide(i, func(i *do.Injector) (*messaging.Consumer[hits.LinkResolvedEvent], error) {
		pubsub, err := do.Invoke[*messaging.PubSub](i)
		if err != nil {
			return nil, err
		}

		counter, err := do.Invoke[*hits.Counter](i)
		if err != nil {
			return nil, err
		}

		return messaging.NewConsumer(pubsub.Subscriber, hits.TopicLinkResolved, counter.Handle,
			do.MustInvoke[*zap.Logger](i), messaging.WithHandlerTimeout(handlerTimeout)), nil
	})

	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		counter, err := do.Invoke[*hits.Counter](i)
		if err != nil {
			return nil, err
		}

		consumer, err := do.Invoke[*messaging.Consumer[hits.LinkResolvedEvent]](i)
		if err != nil {
			return nil, err
		}

		group := messaging.NewConsumerGroup(do.MustInvoke[*messaging.PubSub](i).Subscriber, do.MustInvoke[*zap.Logger](i))
		group.Add(counter)
		group.Add(consumer)

		return group, nil
	})
}

// Hits runs the resolved-link event pipeline of the server: the dispatcher
// publishing events and, with the in-memory transport, the counter consuming
// them in-process.
type Hits struct {
	Dispatcher *hits.Dispatcher

	publishers *messaging.PublisherGroup
	consumers  *messaging.ConsumerGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// Start starts the consumers, if any, then the dispatcher.
func (h *Hits) Start(ctx context.Context) error {
	if h.consumers != nil {
		if err := h.consumers.Start(ctx); err != nil {
			return err
		}
	}

	return h.Dispatcher.Start(ctx)
}

// Shutdown drains the dispatcher before stopping the consumers and closing
// the publisher.
func (h *Hits) Shutdown() error {
	h.shutdownOnce.Do(func() {
		errs := []error{h.Dispatcher.Shutdown()}

		if h.consumers != nil {
			errs = append(errs, h.consumers.Shutdown())
		}

		h.shutdownErr = errors.Join(append(errs, h.publishers.Shutdown())...)
	})

	return h.shutdownErr
}

// HitsPackage provides the server's hit pipeline.
func HitsPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Hits, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		pubsub, err := do.Invoke[*messaging.PubSub](i)
		if err != nil {
			return nil, err
		}

		h := &Hits{publishers: messaging.NewPublisherGroup(pubsub.Publisher)}

		if opts.Events == messaging.TransportMemory {
			if h.consumers, err = do.Invoke[*messaging.ConsumerGroup](i); err != nil {
				return nil, err
			}
		}

		publish := messaging.NewPublishFunc[hits.LinkResolvedEvent](h.publishers.Publisher(), hits.TopicLinkResolved)
		h.Dispatcher = hits.NewDispatcher(publish, opts.HitsQueueSize, logger.Named("hits"))

		return h, nil
	})
}

// QRPackage provides the QR renderer.
func QRPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*qr.Renderer, error) {
		opts := do.MustInvoke[*Options](i)
		durations := do.MustInvoke[Durations](i)

		return qr.NewRenderer(qr.Config{
			Workers:      opts.QRWorkers,
			CacheSize:    opts.QRCacheSize,
			ModulePixels: opts.QRModulePx,
			Timeout:      durations.RenderTimeout,
		}, do.MustInvoke[*zap.Logger](i).Named("qr"))
	})
}

// HTTPPackage provides the chi router and the huma API. Invoking the API
// registers every route on the router.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*chi.Mux, error) {
		opts := do.MustInvoke[*Options](i)

		router := chi.NewMux()
		router.Use(
			chimiddleware.RequestID,
			chimiddleware.Recoverer,
			cors.Handler(cors.Options{
				AllowedOrigins: opts.Origins(),
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				ExposedHeaders: []string{"Location"},
				MaxAge:         300,
			}),
		)

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		durations := do.MustInvoke[Durations](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)

		repo, err := do.Invoke[shortener.Repository](i)
		if err != nil {
			return nil, err
		}

		pipeline, err := do.Invoke[*Hits](i)
		if err != nil {
			return nil, err
		}

		renderer, err := do.Invoke[*qr.Renderer](i)
		if err != nil {
			return nil, err
		}

		urlHandler, err := newURLHandler(opts, durations, repo, pipeline.Dispatcher, logger)
		if err != nil {
			return nil, err
		}

		if opts.QRTarget != handlers.QRTargetShort && opts.QRTarget != handlers.QRTargetLong {
			return nil, fmt.Errorf("unknown qr target %q (want short or long)", opts.QRTarget)
		}

		qrHandler := handlers.NewQRHandler(repo, renderer, opts.PublicBaseURL(), opts.QRTarget, logger)

		checker, ok := repo.(health.Checker)
		if !ok {
			checker = health.PingFunc(func(context.Context) error { return nil })
		}

		api := humachi.New(router, huma.DefaultConfig("ShortQR", "1.0.0"))
		api.UseMiddleware(middleware.RequestMeta(api), middleware.AccessLog(logger))

		health.RegisterRoutes(api, health.NewHandler(checker, opts.Store))
		handlers.RegisterRoutes(api, urlHandler, qrHandler)

		return api, nil
	})
}

func newURLHandler(
	opts *Options,
	durations Durations,
	repo shortener.Repository,
	recorder handlers.HitRecorder,
	logger *zap.Logger,
) (*handlers.URLHandler, error) {
	generator, err := shortener.NewGenerator(opts.CodeLength)
	if err != nil {
		return nil, err
	}

	strategies := map[handlers.Strategy]shortener.Strategy{
		handlers.StrategyToken: shortener.NewTokenStrategy(repo, generator),
		handlers.StrategyHash:  shortener.NewHashStrategy(repo, generator),
	}

	defaultStrategy := handlers.Strategy(opts.DefaultStrategy)
	if _, ok := strategies[defaultStrategy]; !ok {
		return nil, fmt.Errorf("unknown default strategy %q (want hash or token)", opts.DefaultStrategy)
	}

	validator := shortener.URLValidator{}
	if opts.BlockPrivateTargets {
		validator.Resolver = net.DefaultResolver
	}

	return handlers.NewURLHandler(repo, opts.PublicBaseURL(), strategies, recorder, logger,
		handlers.WithDefaultStrategy(defaultStrategy),
		handlers.WithValidator(validator),
		handlers.WithResolveTimeout(durations.ResolveTimeout),
	), nil
}
