package quote

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	quotes map[string]*Quote
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotes: make(map[string]*Quote)}
}

// clone deep-copies a quote so callers never share the stored history slice.
func clone(q *Quote) *Quote {
	cp := *q
	cp.History = make([]HistoryEntry, len(q.History))
	copy(cp.History, q.History)
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, q *Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.ID] = clone(q)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	return clone(q), nil
}

func (m *MemoryStore) Update(ctx context.Context, q *Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quotes[q.ID]; !ok {
		return ErrQuoteNotFound
	}
	m.quotes[q.ID] = clone(q)
	return nil
}

func (m *MemoryStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(q *Quote) bool { return q.CustomerID == customerID }, limit), nil
}

func (m *MemoryStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(q *Quote) bool { return q.OwnerID == ownerID }, limit), nil
}

func (m *MemoryStore) list(match func(*Quote) bool, limit int) []*Quote {
	var out []*Quote
	for _, q := range m.quotes {
		if match(q) {
			out = append(out, clone(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
