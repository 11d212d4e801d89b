package shortener

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Strategy defines the interface for URL shortening strategies.
type Strategy interface {
	Shorten(ctx context.Context, longURL string) (*ShortLink, error)
}

// TokenStrategy always mints a new code for each URL.
type TokenStrategy struct {
	store     Repository
	generator *Generator
}

// NewTokenStrategy creates a new token-based shortening strategy.
func NewTokenStrategy(store Repository, generator *Generator) *TokenStrategy {
	return &TokenStrategy{
		store:     store,
		generator: generator,
	}
}

func (s *TokenStrategy) Shorten(ctx context.Context, longURL string) (*ShortLink, error) {
	return create(ctx, s.store, s.generator, longURL, "")
}

// HashStrategy deduplicates URLs by returning the same code for equivalent URLs.
type HashStrategy struct {
	store     Repository
	generator *Generator
}

// NewHashStrategy creates a new hash-based shortening strategy.
func NewHashStrategy(store Repository, generator *Generator) *HashStrategy {
	return &HashStrategy{
		store:     store,
		generator: generator,
	}
}

func (s *HashStrategy) Shorten(ctx context.Context, longURL string) (*ShortLink, error) {
	normalizedURL, err := NormalizeURL(longURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, err.Error())
	}

	urlHash := HashURL(normalizedURL)

	existing, err := s.store.GetByHash(ctx, urlHash)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, unavailable(err)
	}

	return create(ctx, s.store, s.generator, longURL, urlHash)
}

func create(ctx context.Context, store Repository, generator *Generator, longURL string, urlHash URLHash) (*ShortLink, error) {
	var link *ShortLink

	_, err := generator.Generate(ctx, func(ctx context.Context, code Code) (bool, error) {
		candidate := &ShortLink{
			Code:      code,
			LongURL:   longURL,
			URLHash:   urlHash,
			CreatedAt: time.Now().UTC(),
		}

		ok, err := store.PutIfAbsent(ctx, candidate)
		if err != nil {
			return false, unavailable(err)
		}

		if ok {
			link = candidate
		}

		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}

func unavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
