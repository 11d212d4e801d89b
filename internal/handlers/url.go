package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortqr/internal/hits"
	"github.com/serroba/shortqr/internal/middleware"
	"github.com/serroba/shortqr/internal/shortener"
	"go.uber.org/zap"
)

// DefaultResolveTimeout bounds a redirect lookup.
const DefaultResolveTimeout = 2 * time.Second

// HitRecorder accepts resolved-link events without blocking.
type HitRecorder interface {
	Record(event hits.LinkResolvedEvent) bool
}

// URLHandler handles URL shortening and redirect operations.
type URLHandler struct {
	strategies      map[Strategy]shortener.Strategy
	defaultStrategy Strategy
	validator       shortener.URLValidator
	store           shortener.Repository
	baseURL         string
	hits            HitRecorder
	resolveTimeout  time.Duration
	logger          *zap.Logger
}

// URLHandlerOption configures a URLHandler.
type URLHandlerOption func(*URLHandler)

// WithDefaultStrategy sets the strategy used when a request names none.
func WithDefaultStrategy(s Strategy) URLHandlerOption {
	return func(h *URLHandler) {
		h.defaultStrategy = s
	}
}

// WithValidator replaces the URL validator.
func WithValidator(v shortener.URLValidator) URLHandlerOption {
	return func(h *URLHandler) {
		h.validator = v
	}
}

// WithResolveTimeout bounds redirect lookups.
func WithResolveTimeout(d time.Duration) URLHandlerOption {
	return func(h *URLHandler) {
		if d > 0 {
			h.resolveTimeout = d
		}
	}
}

// NewURLHandler creates a new URL handler with injected strategies.
func NewURLHandler(
	store shortener.Repository,
	baseURL string,
	strategies map[Strategy]shortener.Strategy,
	recorder HitRecorder,
	logger *zap.Logger,
	opts ...URLHandlerOption,
) *URLHandler {
	h := &URLHandler{
		strategies:      strategies,
		defaultStrategy: StrategyHash,
		store:           store,
		baseURL:         baseURL,
		hits:            recorder,
		resolveTimeout:  DefaultResolveTimeout,
		logger:          logger,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *URLHandler) CreateShortURL(ctx context.Context, req *ShortenRequest) (*ShortenResponse, error) {
	body, err := decodeShortenBody(req.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	strategyName := body.Strategy
	if strategyName == "" {
		strategyName = h.defaultStrategy
	}

	strategy, ok := h.strategies[strategyName]
	if !ok {
		return nil, huma.Error400BadRequest("invalid strategy: must be 'token' or 'hash'")
	}

	longURL, err := h.validator.Validate(ctx, body.URL)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	link, err := strategy.Shorten(ctx, longURL)
	if err != nil {
		return nil, toHTTPError(h.logger, err,
			zap.String("strategy", string(strategyName)),
			zap.Int("url_length", len(longURL)),
		)
	}

	shortURL := h.shortURL(link.Code)

	resp := &ShortenResponse{}
	resp.Location = shortURL
	resp.Body.ShortCode = string(link.Code)
	resp.Body.ShortURL = shortURL
	resp.Body.LongURL = link.LongURL

	return resp, nil
}

func (h *URLHandler) RedirectToURL(ctx context.Context, req *RedirectRequest) (*RedirectResponse, error) {
	code := shortener.Code(req.Code)
	if !code.Valid() {
		return nil, huma.Error404NotFound("short link not found")
	}

	ctx, cancel := context.WithTimeout(ctx, h.resolveTimeout)
	defer cancel()

	link, err := h.store.GetByCode(ctx, code)
	if err != nil {
		return nil, toHTTPError(h.logger, err, zap.String("code", req.Code))
	}

	info := middleware.ClientInfoFrom(ctx)
	h.hits.Record(hits.LinkResolvedEvent{
		Code:       req.Code,
		ResolvedAt: time.Now().UTC(),
		ClientIP:   info.ClientIP,
		UserAgent:  info.UserAgent,
		Referrer:   info.Referrer,
	})

	return &RedirectResponse{
		Status:       http.StatusFound,
		Location:     link.LongURL,
		CacheControl: "private, max-age=0",
	}, nil
}

func decodeShortenBody(raw []byte) (ShortenBody, error) {
	var body ShortenBody

	if len(bytes.TrimSpace(raw)) == 0 {
		return body, fmt.Errorf("%w: url is required", shortener.ErrInvalidURL)
	}

	if err := json.Unmarshal(raw, &body); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return body, fmt.Errorf("%w: %s must be a string", shortener.ErrInvalidURL, typeErr.Field)
		}

		return body, fmt.Errorf("%w: body must be a JSON object", shortener.ErrInvalidURL)
	}

	return body, nil
}

func (h *URLHandler) shortURL(code shortener.Code) string {
	return fmt.Sprintf("%s/%s", h.baseURL, code)
}
