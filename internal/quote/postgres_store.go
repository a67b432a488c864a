package quote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore is a Store backed by PostgreSQL. The quote row carries
// the state machine; history entries live in a companion table keyed by
// (quote_id, seq).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed quote store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const quoteColumns = `
	id, product_id, customer_id, owner_id, exchange_type, status,
	from_date, to_date, meetup_point, remarks,
	rent_amount, deposit_amount, update_count,
	approved_by_customer, approved_by_owner,
	rejected_by_customer, rejected_by_owner,
	exchanged_by_customer, exchanged_by_owner,
	returned_by_customer, returned_by_owner,
	is_approved, is_exchanged, is_closed, is_rent_paid, is_deposit_paid,
	last_updated_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, q *Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quotes (`+quoteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`,
		q.ID, q.ProductID, q.CustomerID, q.OwnerID, string(q.ExchangeType), string(q.Status),
		q.FromDate, q.ToDate, q.MeetupPoint, q.Remarks,
		q.RentAmount, q.DepositAmount, q.UpdateCount,
		q.ApprovedByCustomer, q.ApprovedByOwner,
		q.RejectedByCustomer, q.RejectedByOwner,
		q.ExchangedByCustomer, q.ExchangedByOwner,
		q.ReturnedByCustomer, q.ReturnedByOwner,
		q.IsApproved, q.IsExchanged, q.IsClosed, q.IsRentPaid, q.IsDepositPaid,
		string(q.LastUpdatedBy), q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}

	if err := insertHistory(ctx, tx, q); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Update(ctx context.Context, q *Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE quotes SET
			exchange_type = $2, status = $3,
			from_date = $4, to_date = $5, meetup_point = $6, remarks = $7,
			rent_amount = $8, deposit_amount = $9, update_count = $10,
			approved_by_customer = $11, approved_by_owner = $12,
			rejected_by_customer = $13, rejected_by_owner = $14,
			exchanged_by_customer = $15, exchanged_by_owner = $16,
			returned_by_customer = $17, returned_by_owner = $18,
			is_approved = $19, is_exchanged = $20, is_closed = $21,
			is_rent_paid = $22, is_deposit_paid = $23,
			last_updated_by = $24, updated_at = $25
		WHERE id = $1`,
		q.ID, string(q.ExchangeType), string(q.Status),
		q.FromDate, q.ToDate, q.MeetupPoint, q.Remarks,
		q.RentAmount, q.DepositAmount, q.UpdateCount,
		q.ApprovedByCustomer, q.ApprovedByOwner,
		q.RejectedByCustomer, q.RejectedByOwner,
		q.ExchangedByCustomer, q.ExchangedByOwner,
		q.ReturnedByCustomer, q.ReturnedByOwner,
		q.IsApproved, q.IsExchanged, q.IsClosed,
		q.IsRentPaid, q.IsDepositPaid,
		string(q.LastUpdatedBy), q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrQuoteNotFound
	}

	if err := insertHistory(ctx, tx, q); err != nil {
		return err
	}
	return tx.Commit()
}

// insertHistory appends any new audit entries. Existing (quote_id, seq)
// rows are left untouched so re-persisting a quote never rewrites history.
func insertHistory(ctx context.Context, tx *sql.Tx, q *Quote) error {
	for _, h := range q.History {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO quote_history (quote_id, seq, event, actor_id, exchange_type, remarks, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (quote_id, seq) DO NOTHING`,
			q.ID, h.Seq, h.Event, h.ActorID, string(h.ExchangeType), h.Remarks, h.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert quote history: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Quote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
	q, err := scanQuote(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Quote, error) {
	return s.list(ctx, `customer_id`, customerID, limit)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Quote, error) {
	return s.list(ctx, `owner_id`, ownerID, limit)
}

func (s *PostgresStore) list(ctx context.Context, column, value string, limit int) ([]*Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+quoteColumns+` FROM quotes
		WHERE `+column+` = $1
		ORDER BY created_at DESC LIMIT $2`, value, limit)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var out []*Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadHistory(ctx context.Context, q *Quote) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event, actor_id, exchange_type, remarks, created_at
		FROM quote_history WHERE quote_id = $1 ORDER BY seq`, q.ID)
	if err != nil {
		return fmt.Errorf("load quote history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h HistoryEntry
		var exchangeType string
		if err := rows.Scan(&h.Seq, &h.Event, &h.ActorID, &exchangeType, &h.Remarks, &h.CreatedAt); err != nil {
			return fmt.Errorf("scan quote history: %w", err)
		}
		h.ExchangeType = ExchangeType(exchangeType)
		q.History = append(q.History, h)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (*Quote, error) {
	var q Quote
	var exchangeType, status, lastUpdatedBy string
	err := row.Scan(
		&q.ID, &q.ProductID, &q.CustomerID, &q.OwnerID, &exchangeType, &status,
		&q.FromDate, &q.ToDate, &q.MeetupPoint, &q.Remarks,
		&q.RentAmount, &q.DepositAmount, &q.UpdateCount,
		&q.ApprovedByCustomer, &q.ApprovedByOwner,
		&q.RejectedByCustomer, &q.RejectedByOwner,
		&q.ExchangedByCustomer, &q.ExchangedByOwner,
		&q.ReturnedByCustomer, &q.ReturnedByOwner,
		&q.IsApproved, &q.IsExchanged, &q.IsClosed, &q.IsRentPaid, &q.IsDepositPaid,
		&lastUpdatedBy, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan quote: %w", err)
	}
	q.ExchangeType = ExchangeType(exchangeType)
	q.Status = Status(status)
	q.LastUpdatedBy = Role(lastUpdatedBy)
	return &q, nil
}
