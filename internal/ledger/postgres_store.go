package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetWallet retrieves a user's wallet
func (p *PostgresStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	w := &Wallet{UserID: userID}
	var balance string

	err := p.db.QueryRowContext(ctx, `
		SELECT balance, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&balance, &w.CreatedAt, &w.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Wallet{
			UserID:    userID,
			Balance:   decimal.Zero,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	w.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}
	return w, nil
}

// Credit adds funds to a wallet and records the transaction atomically.
func (p *PostgresStore) Credit(ctx context.Context, userID string, amount decimal.Decimal, txn *Transaction) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Upsert balance using native NUMERIC arithmetic
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, created_at, updated_at)
		VALUES ($1, $2::NUMERIC(12,4), NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = wallets.balance + $2::NUMERIC(12,4),
			updated_at = NOW()
	`, userID, amount.String())
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := upsertTransaction(ctx, tx, txn); err != nil {
		return err
	}

	return tx.Commit()
}

// Transfer moves funds between wallets with the CHECK constraint on
// balance >= 0 preventing overdraft at the DB level.
func (p *PostgresStore) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, txn *Transaction) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Debit source. A CHECK violation means insufficient funds; any
	// other failure (connection loss, serialization conflict) must
	// surface as-is so callers don't misread it as an overdraft.
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance    = balance - $2::NUMERIC(12,4),
			updated_at = NOW()
		WHERE user_id = $1
	`, fromUserID, amount.String())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "check_violation" {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("failed to debit source: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// No wallet row models a zero balance, same as GetWallet.
		return ErrInsufficientFunds
	}

	// Credit destination, creating the wallet if needed
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, created_at, updated_at)
		VALUES ($1, $2::NUMERIC(12,4), NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = wallets.balance + $2::NUMERIC(12,4),
			updated_at = NOW()
	`, toUserID, amount.String())
	if err != nil {
		return fmt.Errorf("failed to credit destination: %w", err)
	}

	if err := upsertTransaction(ctx, tx, txn); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertTransaction records a transaction with no balance movement.
func (p *PostgresStore) InsertTransaction(ctx context.Context, txn *Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertTransaction(ctx, tx, txn); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateTransactionStatus changes a transaction's status.
func (p *PostgresStore) UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// GetTransaction retrieves a transaction by id.
func (p *PostgresStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, amount, type, mode, status, remarks, from_user_id, to_user_id, created_at, updated_at
		FROM transactions WHERE id = $1
	`, id)
	return scanTransaction(row)
}

// FindByRemarks returns the newest transaction tagged with remarks.
func (p *PostgresStore) FindByRemarks(ctx context.Context, remarks string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, amount, type, mode, status, remarks, from_user_id, to_user_id, created_at, updated_at
		FROM transactions WHERE remarks = $1
		ORDER BY created_at DESC LIMIT 1
	`, remarks)
	return scanTransaction(row)
}

// History retrieves transactions touching a user's wallet, newest first.
func (p *PostgresStore) History(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, amount, type, mode, status, remarks, from_user_id, to_user_id, created_at, updated_at
		FROM transactions
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func upsertTransaction(ctx context.Context, tx *sql.Tx, txn *Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, amount, type, mode, status, remarks, from_user_id, to_user_id, created_at, updated_at)
		VALUES ($1, $2::NUMERIC(12,4), $3, $4, $5, $6, NULLIF($7, ''), $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			amount     = $2::NUMERIC(12,4),
			status     = $5,
			updated_at = NOW()
	`, txn.ID, txn.Amount.String(), string(txn.Type), string(txn.Mode), string(txn.Status),
		txn.Remarks, txn.FromUserID, txn.ToUserID)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	t := &Transaction{}
	var amount string
	var remarks, fromUser sql.NullString
	err := row.Scan(&t.ID, &amount, &t.Type, &t.Mode, &t.Status, &remarks, &fromUser, &t.ToUserID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Remarks = remarks.String
	t.FromUserID = fromUser.String
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for %s: %w", t.ID, err)
	}
	return t, nil
}
