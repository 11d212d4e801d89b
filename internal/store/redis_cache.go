package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/shortqr/internal/shortener"
)

// RedisCacheRepository wraps a Repository with Redis caching for reads.
// Cache failures are never surfaced; the underlying store stays authoritative.
type RedisCacheRepository struct {
	store   shortener.Repository
	client  *redis.Client
	prefix  string
	hashKey string
	ttl     time.Duration
}

// NewRedisCacheRepository creates a new Redis-cached repository decorator.
func NewRedisCacheRepository(
	store shortener.Repository, client *redis.Client, ttl time.Duration,
) *RedisCacheRepository {
	return &RedisCacheRepository{
		store:   store,
		client:  client,
		prefix:  "cache:" + linkPrefix,
		hashKey: "cache:" + linkHashesKey,
		ttl:     ttl,
	}
}

// PutIfAbsent stores a link in the underlying store and caches it if it was created.
func (r *RedisCacheRepository) PutIfAbsent(ctx context.Context, link *shortener.ShortLink) (bool, error) {
	ok, err := r.store.PutIfAbsent(ctx, link)
	if err != nil || !ok {
		return ok, err
	}

	r.cacheLink(ctx, link)

	return true, nil
}

// GetByCode retrieves a link by its code, checking cache first.
func (r *RedisCacheRepository) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortLink, error) {
	if link, ok := r.getFromCache(ctx, code); ok {
		return link, nil
	}

	link, err := r.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.cacheLink(ctx, link)

	return link, nil
}

// GetByHash retrieves a link by its URL hash, checking cache first.
func (r *RedisCacheRepository) GetByHash(ctx context.Context, hash shortener.URLHash) (*shortener.ShortLink, error) {
	code, err := r.client.HGet(ctx, r.hashKey, string(hash)).Result()
	if err == nil {
		if link, ok := r.getFromCache(ctx, shortener.Code(code)); ok {
			return link, nil
		}
	}

	link, err := r.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	r.cacheLink(ctx, link)

	return link, nil
}

// IncrementHits goes straight to the underlying store. Cached entries do not
// carry hit counts.
func (r *RedisCacheRepository) IncrementHits(ctx context.Context, code shortener.Code, delta int64) error {
	return r.store.IncrementHits(ctx, code, delta)
}

// Ping checks the underlying store when it supports it.
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	if p, ok := r.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}

	return nil
}

func (r *RedisCacheRepository) getFromCache(ctx context.Context, code shortener.Code) (*shortener.ShortLink, bool) {
	fields, err := r.client.HGetAll(ctx, r.prefix+string(code)).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}

	link := linkFromHash(fields)
	link.HitCount = 0

	return link, true
}

func (r *RedisCacheRepository) cacheLink(ctx context.Context, link *shortener.ShortLink) {
	pipe := r.client.Pipeline()
	key := r.prefix + string(link.Code)

	pipe.HSet(ctx, key, map[string]interface{}{
		"code":       string(link.Code),
		"long_url":   link.LongURL,
		"url_hash":   string(link.URLHash),
		"created_at": link.CreatedAt.UnixNano(),
	})

	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	if link.URLHash != "" {
		pipe.HSetNX(ctx, r.hashKey, string(link.URLHash), string(link.Code))
	}

	_, _ = pipe.Exec(ctx)
}

// Compile-time check.
var _ shortener.Repository = (*RedisCacheRepository)(nil)
