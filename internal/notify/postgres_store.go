package notify

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed notification store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, n *Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, quote_id, subject, message, read, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`, n.ID, n.UserID, n.QuoteID, n.Subject, n.Message, n.Read, n.CreatedAt)
	return err
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, quote_id, subject, message, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		var quoteID sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &quoteID, &n.Subject, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.QuoteID = quoteID.String
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkRead(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
