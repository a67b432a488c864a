package catalog

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory catalog for demo/development mode.
type MemoryStore struct {
	products map[string]*Product
	users    map[string]*User
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*Product),
		users:    make(map[string]*User),
	}
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// PutProduct seeds a product. Used by tests and demo mode.
func (m *MemoryStore) PutProduct(p *Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
}

// PutUser seeds a user. Used by tests and demo mode.
func (m *MemoryStore) PutUser(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}
