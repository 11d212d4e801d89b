package shortener

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no link exists for a code or hash.
	ErrNotFound = errors.New("short link not found")
	// ErrInvalidURL is returned when a long URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidCode is returned when a code is not a base62 token.
	ErrInvalidCode = errors.New("invalid short code")
	// ErrGenerationExhausted is returned when every candidate code collided.
	ErrGenerationExhausted = errors.New("short code generation exhausted")
	// ErrStoreUnavailable wraps backing store failures other than not-found.
	ErrStoreUnavailable = errors.New("link store unavailable")
)

// Repository defines the Link Store contract.
type Repository interface {
	// PutIfAbsent atomically creates the link. It returns false, without
	// modifying anything, when the code is already taken.
	PutIfAbsent(ctx context.Context, link *ShortLink) (bool, error)

	// GetByCode returns ErrNotFound when the code was never issued.
	GetByCode(ctx context.Context, code Code) (*ShortLink, error)

	// GetByHash returns the link created for a normalized URL hash, used by
	// the hash strategy for deduplication. Returns ErrNotFound if none exists.
	GetByHash(ctx context.Context, hash URLHash) (*ShortLink, error)

	// IncrementHits adds delta to the hit counter. Best-effort: callers never
	// block a redirect on it.
	IncrementHits(ctx context.Context, code Code, delta int64) error
}
