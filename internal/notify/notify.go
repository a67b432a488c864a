// Package notify delivers quote lifecycle notifications.
//
// Delivery is best-effort: a state transition must never fail or roll
// back because an email or in-app notification could not be sent.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sharemart/sharemart/internal/idgen"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification is an in-app message for one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	QuoteID   string    `json:"quoteId,omitempty"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewNotification builds a notification with a fresh id.
func NewNotification(userID, quoteID, subject, message string) *Notification {
	return &Notification{
		ID:        idgen.WithPrefix("ntf_"),
		UserID:    userID,
		QuoteID:   quoteID,
		Subject:   subject,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// MemoryStore is an in-memory notification store for demo/development mode.
type MemoryStore struct {
	byID map[string]*Notification
	all  []*Notification
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Notification)}
}

func (m *MemoryStore) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.byID[cp.ID] = &cp
	m.all = append(m.all, &cp)
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for i := len(m.all) - 1; i >= 0 && len(out) < limit; i-- {
		if m.all[i].UserID == userID {
			cp := *m.all[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.byID[id]
	if !ok {
		return ErrNotificationNotFound
	}
	n.Read = true
	return nil
}
