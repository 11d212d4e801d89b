package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/shortqr/internal/shortener"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS short_links (
	code       VARCHAR(16) PRIMARY KEY,
	long_url   TEXT        NOT NULL,
	url_hash   CHAR(64),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	hit_count  BIGINT      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_short_links_url_hash ON short_links (url_hash) WHERE url_hash IS NOT NULL;
`

// PostgresStore is a PostgreSQL implementation of shortener.Repository.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed link store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the short_links table and its indexes if missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return unavailable(err)
	}

	return nil
}

func (p *PostgresStore) PutIfAbsent(ctx context.Context, link *shortener.ShortLink) (bool, error) {
	query := `
		INSERT INTO short_links (code, long_url, url_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query,
		string(link.Code),
		link.LongURL,
		nullableString(link.URLHash),
		link.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}

		return false, unavailable(err)
	}

	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortLink, error) {
	query := `
		SELECT code, long_url, url_hash, created_at, hit_count
		FROM short_links
		WHERE code = $1
	`

	return p.scanOne(ctx, query, string(code))
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash shortener.URLHash) (*shortener.ShortLink, error) {
	query := `
		SELECT code, long_url, url_hash, created_at, hit_count
		FROM short_links
		WHERE url_hash = $1
		ORDER BY created_at
		LIMIT 1
	`

	return p.scanOne(ctx, query, string(hash))
}

func (p *PostgresStore) IncrementHits(ctx context.Context, code shortener.Code, delta int64) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE short_links SET hit_count = hit_count + $2 WHERE code = $1`,
		string(code), delta,
	)
	if err != nil {
		return unavailable(err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}

	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) scanOne(ctx context.Context, query string, arg string) (*shortener.ShortLink, error) {
	var (
		link    shortener.ShortLink
		code    string
		urlHash *string
	)

	err := p.pool.QueryRow(ctx, query, arg).Scan(
		&code,
		&link.LongURL,
		&urlHash,
		&link.CreatedAt,
		&link.HitCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, unavailable(err)
	}

	link.Code = shortener.Code(code)

	if urlHash != nil {
		link.URLHash = shortener.URLHash(*urlHash)
	}

	return &link, nil
}

func nullableString(s shortener.URLHash) *string {
	if s == "" {
		return nil
	}

	str := string(s)

	return &str
}

var _ shortener.Repository = (*PostgresStore)(nil)
