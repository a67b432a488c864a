package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed payment link store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, link *Link) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_links (id, quote_id, customer_id, provider, url, amount, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		link.ID, link.QuoteID, link.CustomerID, link.Provider, link.URL,
		link.Amount, string(link.Status), link.ExpiresAt, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment link: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Link, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, quote_id, customer_id, provider, url, amount, status, expires_at, created_at, updated_at
		FROM payment_links WHERE id = $1`, id)
	return scanLink(row)
}

func (s *PostgresStore) GetByQuote(ctx context.Context, quoteID string) (*Link, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, quote_id, customer_id, provider, url, amount, status, expires_at, created_at, updated_at
		FROM payment_links WHERE quote_id = $1
		ORDER BY created_at DESC LIMIT 1`, quoteID)
	return scanLink(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status LinkStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_links SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update payment link status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func scanLink(row *sql.Row) (*Link, error) {
	var link Link
	var status string
	err := row.Scan(&link.ID, &link.QuoteID, &link.CustomerID, &link.Provider, &link.URL,
		&link.Amount, &status, &link.ExpiresAt, &link.CreatedAt, &link.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment link: %w", err)
	}
	link.Status = LinkStatus(status)
	return &link, nil
}
