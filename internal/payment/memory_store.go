package payment

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	links   map[string]*Link // by link ID
	byQuote map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:   make(map[string]*Link),
		byQuote: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, link *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *link
	m.links[link.ID] = &cp
	m.byQuote[link.QuoteID] = link.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *MemoryStore) GetByQuote(ctx context.Context, quoteID string) (*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byQuote[quoteID]
	if !ok {
		return nil, ErrLinkNotFound
	}
	cp := *m.links[id]
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status LinkStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[id]
	if !ok {
		return ErrLinkNotFound
	}
	link.Status = status
	link.UpdatedAt = time.Now()
	return nil
}
