package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	wallets map[string]*Wallet
	txns    []*Transaction
	byID    map[string]*Transaction
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*Wallet),
		txns:    make([]*Transaction, 0),
		byID:    make(map[string]*Transaction),
	}
}

func (m *MemoryStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if w, ok := m.wallets[userID]; ok {
		cp := *w
		return &cp, nil
	}
	return &Wallet{
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}, nil
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, amount decimal.Decimal, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.walletLocked(userID)
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now()

	m.recordLocked(txn)
	return nil
}

func (m *MemoryStore) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// An absent wallet is a zero-balance wallet, same as GetWallet.
	from, ok := m.wallets[fromUserID]
	if !ok || from.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	to := m.walletLocked(toUserID)
	from.Balance = from.Balance.Sub(amount)
	from.UpdatedAt = time.Now()
	to.Balance = to.Balance.Add(amount)
	to.UpdatedAt = time.Now()

	m.recordLocked(txn)
	return nil
}

func (m *MemoryStore) InsertTransaction(ctx context.Context, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recordLocked(txn)
	return nil
}

func (m *MemoryStore) UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.byID[id]
	if !ok {
		return ErrTransactionNotFound
	}
	txn.Status = status
	txn.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

func (m *MemoryStore) FindByRemarks(ctx context.Context, remarks string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first
	for i := len(m.txns) - 1; i >= 0; i-- {
		if m.txns[i].Remarks == remarks {
			cp := *m.txns[i]
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryStore) History(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for i := len(m.txns) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.txns[i]
		if t.FromUserID == userID || t.ToUserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// walletLocked returns the wallet for userID, creating it if absent.
// Caller must hold m.mu.
func (m *MemoryStore) walletLocked(userID string) *Wallet {
	w, ok := m.wallets[userID]
	if !ok {
		w = &Wallet{
			UserID:    userID,
			Balance:   decimal.Zero,
			CreatedAt: time.Now(),
		}
		m.wallets[userID] = w
	}
	return w
}

// recordLocked stores a copy of txn. Updating an existing id replaces it
// so Credit can finalize a previously inserted INITIATED transaction.
// Caller must hold m.mu.
func (m *MemoryStore) recordLocked(txn *Transaction) {
	cp := *txn
	cp.UpdatedAt = time.Now()
	if prev, ok := m.byID[cp.ID]; ok {
		*prev = cp
		m.byID[cp.ID] = prev
		return
	}
	m.byID[cp.ID] = &cp
	m.txns = append(m.txns, &cp)
}
