package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortqr/internal/handlers"
	"github.com/serroba/shortqr/internal/middleware"
	"github.com/serroba/shortqr/internal/shortener"
	"github.com/serroba/shortqr/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testBaseURL = "http://localhost:8888"

func newTestHandler(t *testing.T, s shortener.Repository, opts ...handlers.URLHandlerOption) (*handlers.URLHandler, *recordingHits) {
	t.Helper()

	gen, err := shortener.NewGenerator(shortener.DefaultCodeLength)
	require.NoError(t, err)

	strategies := map[handlers.Strategy]shortener.Strategy{
		handlers.StrategyToken: shortener.NewTokenStrategy(s, gen),
		handlers.StrategyHash:  shortener.NewHashStrategy(s, gen),
	}

	recorder := &recordingHits{}

	return handlers.NewURLHandler(s, testBaseURL, strategies, recorder, zap.NewNop(), opts...), recorder
}

func statusOf(t *testing.T, err error) int {
	t.Helper()

	var se huma.StatusError
	require.ErrorAs(t, err, &se)

	return se.GetStatus()
}

func shortenRequest(url string, strategy handlers.Strategy) *handlers.ShortenRequest {
	raw, _ := json.Marshal(handlers.ShortenBody{URL: url, Strategy: strategy})

	return &handlers.ShortenRequest{RawBody: raw}
}

func TestCreateShortURL(t *testing.T) {
	t.Run("creates short url successfully", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore())

		resp, err := handler.CreateShortURL(context.Background(), shortenRequest("https://example.com/very/long/path", ""))

		require.NoError(t, err)
		assert.Len(t, resp.Body.ShortCode, shortener.DefaultCodeLength)
		assert.Equal(t, "https://example.com/very/long/path", resp.Body.LongURL)
		assert.Equal(t, testBaseURL+"/"+resp.Body.ShortCode, resp.Body.ShortURL)
		assert.Equal(t, resp.Body.ShortURL, resp.Location)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore())

		resp, err := handler.CreateShortURL(context.Background(), shortenRequest("  https://example.com/x  ", ""))

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/x", resp.Body.LongURL)
	})

	t.Run("returns 400 for invalid strategy", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore())

		resp, err := handler.CreateShortURL(context.Background(), shortenRequest(testURL, "invalid"))

		assert.Nil(t, resp)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})

	t.Run("returns 400 for invalid urls", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore())

		for _, url := range []string{"", "not a url", "ftp://example.com", "/relative", "http://localhost/admin"} {
			resp, err := handler.CreateShortURL(context.Background(), shortenRequest(url, ""))

			assert.Nil(t, resp, url)
			assert.Equal(t, http.StatusBadRequest, statusOf(t, err), url)
		}
	})

	t.Run("returns 400 for a missing or mistyped url", func(t *testing.T) {
		router, _ := newRouter(t, store.NewMemoryStore(), handlers.QRTargetShort)

		for _, body := range []string{``, `{}`, `{"url":123}`, `{"url":null,"strategy":"hash"}`, `{"url":["https://example.com"]}`, `not json`} {
			req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})

	t.Run("token strategy creates new code for same URL", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore())
		req := shortenRequest(testURL, handlers.StrategyToken)

		resp1, err1 := handler.CreateShortURL(context.Background(), req)
		resp2, err2 := handler.CreateShortURL(context.Background(), req)

		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.NotEqual(t, resp1.Body.ShortCode, resp2.Body.ShortCode)
	})

	t.Run("hash strategy returns same code for equivalent URLs", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore())

		resp1, err1 := handler.CreateShortURL(context.Background(), shortenRequest("https://example.com/path", handlers.StrategyHash))
		resp2, err2 := handler.CreateShortURL(context.Background(), shortenRequest("https://EXAMPLE.com/path/", handlers.StrategyHash))

		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, resp1.Body.ShortCode, resp2.Body.ShortCode)
	})

	t.Run("defaults to hash strategy when not specified", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore())
		req := shortenRequest(testURL, "")

		resp1, err1 := handler.CreateShortURL(context.Background(), req)
		resp2, err2 := handler.CreateShortURL(context.Background(), req)

		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, resp1.Body.ShortCode, resp2.Body.ShortCode)
	})

	t.Run("default strategy is configurable", func(t *testing.T) {
		handler, _ := newTestHandler(t, store.NewMemoryStore(), handlers.WithDefaultStrategy(handlers.StrategyToken))
		req := shortenRequest(testURL, "")

		resp1, _ := handler.CreateShortURL(context.Background(), req)
		resp2, _ := handler.CreateShortURL(context.Background(), req)

		assert.NotEqual(t, resp1.Body.ShortCode, resp2.Body.ShortCode)
	})
}

func TestCreateShortURL_ErrorPaths(t *testing.T) {
	t.Run("returns 503 when the store fails on save", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockStore{putErr: errMock, getByHashErr: shortener.ErrNotFound})

		resp, err := handler.CreateShortURL(context.Background(), shortenRequest(testURL, handlers.StrategyToken))

		assert.Nil(t, resp)
		assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
		assert.NotContains(t, err.Error(), errMock.Error())
	})

	t.Run("returns 503 on unexpected GetByHash error", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockStore{getByHashErr: errMock})

		resp, err := handler.CreateShortURL(context.Background(), shortenRequest(testURL, handlers.StrategyHash))

		assert.Nil(t, resp)
		assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
	})

	t.Run("returns 503 when generation is exhausted", func(t *testing.T) {
		s := store.NewMemoryStore()
		_, _ = s.PutIfAbsent(context.Background(), &shortener.ShortLink{Code: "taken01", LongURL: "https://a.com"})
		_, _ = s.PutIfAbsent(context.Background(), &shortener.ShortLink{Code: "taken001", LongURL: "https://b.com"})

		gen, err := shortener.NewGenerator(7, shortener.WithCodeGenerators(
			func() string { return "taken01" },
			func() string { return "taken001" },
		))
		require.NoError(t, err)

		strategies := map[handlers.Strategy]shortener.Strategy{
			handlers.StrategyToken: shortener.NewTokenStrategy(s, gen),
		}
		handler := handlers.NewURLHandler(s, testBaseURL, strategies, &recordingHits{}, zap.NewNop(),
			handlers.WithDefaultStrategy(handlers.StrategyToken))

		_, err = handler.CreateShortURL(context.Background(), shortenRequest(testURL, ""))

		assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
	})
}

func TestRedirectToURL(t *testing.T) {
	seeded := func(t *testing.T) *store.MemoryStore {
		t.Helper()

		s := store.NewMemoryStore()
		_, err := s.PutIfAbsent(context.Background(), &shortener.ShortLink{Code: "aZ3kQ1x", LongURL: testURL})
		require.NoError(t, err)

		return s
	}

	t.Run("redirects to long url with 302", func(t *testing.T) {
		handler, _ := newTestHandler(t, seeded(t))

		resp, err := handler.RedirectToURL(context.Background(), &handlers.RedirectRequest{Code: "aZ3kQ1x"})

		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, resp.Status)
		assert.Equal(t, testURL, resp.Location)
		assert.Equal(t, "private, max-age=0", resp.CacheControl)
	})

	t.Run("codes are case sensitive", func(t *testing.T) {
		handler, _ := newTestHandler(t, seeded(t))

		_, err := handler.RedirectToURL(context.Background(), &handlers.RedirectRequest{Code: "az3kq1x"})

		assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	})

	t.Run("returns 404 when code not found", func(t *testing.T) {
		handler, recorder := newTestHandler(t, store.NewMemoryStore())

		resp, err := handler.RedirectToURL(context.Background(), &handlers.RedirectRequest{Code: "notfound"})

		assert.Nil(t, resp)
		assert.Equal(t, http.StatusNotFound, statusOf(t, err))
		assert.Empty(t, recorder.recorded())
	})

	t.Run("returns 404 for codes outside the alphabet without touching the store", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockStore{getByCodeErr: errors.New("store must not be called")})

		for _, code := range []string{"abc-123", "abc.def", "a_b", "ünï"} {
			_, err := handler.RedirectToURL(context.Background(), &handlers.RedirectRequest{Code: code})

			assert.Equal(t, http.StatusNotFound, statusOf(t, err), code)
		}
	})

	t.Run("returns 503 on store error", func(t *testing.T) {
		handler, _ := newTestHandler(t, &mockStore{getByCodeErr: errors.Join(shortener.ErrStoreUnavailable, errMock)})

		resp, err := handler.RedirectToURL(context.Background(), &handlers.RedirectRequest{Code: "aZ3kQ1x"})

		assert.Nil(t, resp)
		assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
	})

	t.Run("bounds the lookup with the resolve timeout", func(t *testing.T) {
		handler, _ := newTestHandler(t, &slowStore{}, handlers.WithResolveTimeout(20*time.Millisecond))

		start := time.Now()
		_, err := handler.RedirectToURL(context.Background(), &handlers.RedirectRequest{Code: "aZ3kQ1x"})

		assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("records a hit with request metadata", func(t *testing.T) {
		handler, recorder := newTestHandler(t, seeded(t))

		ctx := middleware.WithClientInfo(context.Background(), middleware.ClientInfo{
			ClientIP:  "192.168.1.1",
			UserAgent: "TestAgent/1.0",
			Referrer:  "https://referrer.com",
		})

		_, err := handler.RedirectToURL(ctx, &handlers.RedirectRequest{Code: "aZ3kQ1x"})
		require.NoError(t, err)

		events := recorder.recorded()
		require.Len(t, events, 1)
		assert.Equal(t, "aZ3kQ1x", events[0].Code)
		assert.Equal(t, "192.168.1.1", events[0].ClientIP)
		assert.Equal(t, "TestAgent/1.0", events[0].UserAgent)
		assert.Equal(t, "https://referrer.com", events[0].Referrer)
		assert.False(t, events[0].ResolvedAt.IsZero())
	})
}
