package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/shortqr/internal/shortener"
)

const (
	linkPrefix    = "link:"
	linkHashesKey = "link_hashes"
)

// putIfAbsent writes the link hash only if the code is free and indexes the
// URL hash for the first link that claims it.
var putIfAbsent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'code', ARGV[1], 'long_url', ARGV[2], 'url_hash', ARGV[3], 'created_at', ARGV[4], 'hits', 0)
if ARGV[3] ~= '' then
	redis.call('HSETNX', KEYS[2], ARGV[3], ARGV[1])
end
return 1
`)

var incrementHits = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'hits', ARGV[1])
`)

// RedisStore is a Redis implementation of shortener.Repository.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	hashKey string
}

// NewRedisStore creates a new Redis-backed link store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  linkPrefix,
		hashKey: linkHashesKey,
	}
}

func (r *RedisStore) PutIfAbsent(ctx context.Context, link *shortener.ShortLink) (bool, error) {
	created, err := putIfAbsent.Run(ctx, r.client,
		[]string{r.prefix + string(link.Code), r.hashKey},
		string(link.Code),
		link.LongURL,
		string(link.URLHash),
		link.CreatedAt.UnixNano(),
	).Int()
	if err != nil {
		return false, unavailable(err)
	}

	return created == 1, nil
}

func (r *RedisStore) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortLink, error) {
	fields, err := r.client.HGetAll(ctx, r.prefix+string(code)).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	if len(fields) == 0 {
		return nil, shortener.ErrNotFound
	}

	return linkFromHash(fields), nil
}

func (r *RedisStore) GetByHash(ctx context.Context, hash shortener.URLHash) (*shortener.ShortLink, error) {
	code, err := r.client.HGet(ctx, r.hashKey, string(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shortener.ErrNotFound
		}

		return nil, unavailable(err)
	}

	return r.GetByCode(ctx, shortener.Code(code))
}

func (r *RedisStore) IncrementHits(ctx context.Context, code shortener.Code, delta int64) error {
	n, err := incrementHits.Run(ctx, r.client, []string{r.prefix + string(code)}, delta).Int64()
	if err != nil {
		return unavailable(err)
	}

	if n < 0 {
		return shortener.ErrNotFound
	}

	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func linkFromHash(fields map[string]string) *shortener.ShortLink {
	link := &shortener.ShortLink{
		Code:    shortener.Code(fields["code"]),
		LongURL: fields["long_url"],
		URLHash: shortener.URLHash(fields["url_hash"]),
	}

	if nanos, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		link.CreatedAt = time.Unix(0, nanos).UTC()
	}

	if hits, err := strconv.ParseInt(fields["hits"], 10, 64); err == nil {
		link.HitCount = hits
	}

	return link
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", shortener.ErrStoreUnavailable, err)
}

var _ shortener.Repository = (*RedisStore)(nil)
