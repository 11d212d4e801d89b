package handlers_test

import (
	"context"
	"errors"
	"sync"

	"github.com/serroba/shortqr/internal/hits"
	"github.com/serroba/shortqr/internal/shortener"
)

var errMock = errors.New("mock error")

const testURL = "https://example.com"

// mockStore is a test double for shortener.Repository that can be configured to return errors.
type mockStore struct {
	putErr       error
	getByCodeErr error
	getByHashErr error
	link         *shortener.ShortLink
}

func (m *mockStore) PutIfAbsent(_ context.Context, _ *shortener.ShortLink) (bool, error) {
	if m.putErr != nil {
		return false, m.putErr
	}

	return true, nil
}

func (m *mockStore) GetByCode(_ context.Context, _ shortener.Code) (*shortener.ShortLink, error) {
	if m.getByCodeErr != nil {
		return nil, m.getByCodeErr
	}

	return m.link, nil
}

func (m *mockStore) GetByHash(_ context.Context, _ shortener.URLHash) (*shortener.ShortLink, error) {
	if m.getByHashErr != nil {
		return nil, m.getByHashErr
	}

	return m.link, nil
}

func (m *mockStore) IncrementHits(_ context.Context, _ shortener.Code, _ int64) error {
	return nil
}

// slowStore blocks lookups until the context is done.
type slowStore struct {
	mockStore
}

func (s *slowStore) GetByCode(ctx context.Context, _ shortener.Code) (*shortener.ShortLink, error) {
	<-ctx.Done()

	return nil, ctx.Err()
}

// recordingHits captures resolved-link events.
type recordingHits struct {
	mu     sync.Mutex
	events []hits.LinkResolvedEvent
}

func (r *recordingHits) Record(event hits.LinkResolvedEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return true
}

func (r *recordingHits) recorded() []hits.LinkResolvedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]hits.LinkResolvedEvent(nil), r.events...)
}
