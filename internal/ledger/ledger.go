// Package ledger tracks user wallet balances and quote settlements.
//
// Flow:
//  1. Customer pays a payment link; the platform escrow wallet is credited
//  2. Funds stay escrowed while the item is with the customer
//  3. On exchange, rent is released from escrow to the owner's wallet
//  4. On return, the deposit is released back to the customer's wallet
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharemart/sharemart/internal/idgen"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAlreadySettled      = errors.New("transaction already settled")
)

// TransactionType distinguishes money entering a wallet from money leaving it.
type TransactionType string

const (
	TypeCredit TransactionType = "CREDIT"
	TypeDebit  TransactionType = "DEBIT"
)

// TransactionMode records where the money moved.
type TransactionMode string

const (
	ModeWallet TransactionMode = "WALLET" // wallet-to-wallet settlement
	ModeBank   TransactionMode = "BANK"   // external payment via provider link
)

// TransactionStatus is the lifecycle of a transaction.
type TransactionStatus string

const (
	StatusInitiated TransactionStatus = "INITIATED"
	StatusInProcess TransactionStatus = "IN_PROCESS"
	StatusFailed    TransactionStatus = "FAILED"
	StatusCompleted TransactionStatus = "COMPLETED"
)

// IsTerminal returns true if the status cannot change further.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusCompleted
}

// Wallet is a user's balance on the platform.
type Wallet struct {
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Transaction records a single money movement.
type Transaction struct {
	ID         string            `json:"id"`
	Amount     decimal.Decimal   `json:"amount"`
	Type       TransactionType   `json:"type"`
	Mode       TransactionMode   `json:"mode"`
	Status     TransactionStatus `json:"status"`
	Remarks    string            `json:"remarks,omitempty"` // payment link id or quote id
	FromUserID string            `json:"fromUserId,omitempty"`
	ToUserID   string            `json:"toUserId"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Store persists wallets and transactions.
type Store interface {
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	// Credit adds funds to a wallet, creating it if absent, and records txn atomically.
	Credit(ctx context.Context, userID string, amount decimal.Decimal, txn *Transaction) error
	// Transfer moves funds between wallets and records txn atomically.
	// Returns ErrInsufficientFunds when the source wallet cannot cover amount.
	Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, txn *Transaction) error
	InsertTransaction(ctx context.Context, txn *Transaction) error
	UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// FindByRemarks returns the most recent transaction tagged with remarks.
	FindByRemarks(ctx context.Context, remarks string) (*Transaction, error)
	History(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}

// Ledger manages wallet balances and the platform escrow account.
type Ledger struct {
	store      Store
	platformID string
}

// New creates a ledger. platformID is the escrow wallet that holds
// in-flight quote payments.
func New(store Store, platformID string) *Ledger {
	return &Ledger{store: store, platformID: platformID}
}

// PlatformAccount returns the escrow wallet's user ID.
func (l *Ledger) PlatformAccount() string {
	return l.platformID
}

// Balance returns a user's current wallet.
func (l *Ledger) Balance(ctx context.Context, userID string) (*Wallet, error) {
	return l.store.GetWallet(ctx, userID)
}

// History returns a user's transaction history, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.History(ctx, userID, limit)
}

// OpenEscrow records an INITIATED bank transaction toward the platform
// wallet, tagged with the payment link id. No balance moves until the
// provider confirms payment.
func (l *Ledger) OpenEscrow(ctx context.Context, amount decimal.Decimal, linkID string) (*Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	txn := &Transaction{
		ID:        idgen.NewEntityID(),
		Amount:    amount,
		Type:      TypeCredit,
		Mode:      ModeBank,
		Status:    StatusInitiated,
		Remarks:   linkID,
		ToUserID:  l.platformID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := l.store.InsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("open escrow: %w", err)
	}
	return txn, nil
}

// SettleEscrow credits the platform wallet after the provider confirms a
// link was paid. The pending transaction is found by its link id and
// marked COMPLETED. Settling an already-terminal transaction returns
// ErrAlreadySettled so duplicate webhook deliveries are harmless.
func (l *Ledger) SettleEscrow(ctx context.Context, linkID string, amount decimal.Decimal) (*Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	txn, err := l.store.FindByRemarks(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsTerminal() {
		return txn, ErrAlreadySettled
	}

	txn.Status = StatusCompleted
	txn.Amount = amount
	if err := l.store.Credit(ctx, l.platformID, amount, txn); err != nil {
		return nil, fmt.Errorf("settle escrow %s: %w", linkID, err)
	}
	return txn, nil
}

// FailEscrow marks the pending transaction for a link as FAILED
// (the link expired without payment). No balance moves.
func (l *Ledger) FailEscrow(ctx context.Context, linkID string) error {
	txn, err := l.store.FindByRemarks(ctx, linkID)
	if err != nil {
		return err
	}
	if txn.Status.IsTerminal() {
		return ErrAlreadySettled
	}
	return l.store.UpdateTransactionStatus(ctx, txn.ID, StatusFailed)
}

// Release moves funds out of the platform escrow wallet to a user:
// rent to the owner on exchange, deposit back to the customer on return.
// Records a COMPLETED wallet-to-wallet transaction tagged with the quote id.
func (l *Ledger) Release(ctx context.Context, toUserID string, amount decimal.Decimal, quoteID string) (*Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	txn := &Transaction{
		ID:         idgen.NewEntityID(),
		Amount:     amount,
		Type:       TypeDebit,
		Mode:       ModeWallet,
		Status:     StatusCompleted,
		Remarks:    quoteID,
		FromUserID: l.platformID,
		ToUserID:   toUserID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := l.store.Transfer(ctx, l.platformID, toUserID, amount, txn); err != nil {
		return nil, fmt.Errorf("release to %s: %w", toUserID, err)
	}
	return txn, nil
}

// CanRelease checks whether the escrow wallet covers amount.
func (l *Ledger) CanRelease(ctx context.Context, amount decimal.Decimal) (bool, error) {
	w, err := l.store.GetWallet(ctx, l.platformID)
	if err != nil {
		return false, err
	}
	return w.Balance.GreaterThanOrEqual(amount), nil
}
