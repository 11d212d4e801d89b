package store

import (
	"context"
	"sync"

	"github.com/serroba/shortqr/internal/shortener"
)

// MemoryStore is an in-memory implementation of shortener.Repository.
type MemoryStore struct {
	mu     sync.RWMutex
	links  map[shortener.Code]shortener.ShortLink
	hashes map[shortener.URLHash]shortener.Code
}

// NewMemoryStore creates a new in-memory link store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:  make(map[shortener.Code]shortener.ShortLink),
		hashes: make(map[shortener.URLHash]shortener.Code),
	}
}

func (m *MemoryStore) PutIfAbsent(_ context.Context, link *shortener.ShortLink) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.links[link.Code]; taken {
		return false, nil
	}

	m.links[link.Code] = *link

	if link.URLHash != "" {
		if _, indexed := m.hashes[link.URLHash]; !indexed {
			m.hashes[link.URLHash] = link.Code
		}
	}

	return true, nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code shortener.Code) (*shortener.ShortLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[code]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	return &link, nil
}

func (m *MemoryStore) GetByHash(_ context.Context, hash shortener.URLHash) (*shortener.ShortLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	code, ok := m.hashes[hash]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	link := m.links[code]

	return &link, nil
}

func (m *MemoryStore) IncrementHits(_ context.Context, code shortener.Code, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[code]
	if !ok {
		return shortener.ErrNotFound
	}

	link.HitCount += delta
	m.links[code] = link

	return nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

var _ shortener.Repository = (*MemoryStore)(nil)
