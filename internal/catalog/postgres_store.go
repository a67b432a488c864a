package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	prod := &Product{}
	var rent string
	var description sql.NullString

	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner_id, rent, created_at
		FROM products WHERE id = $1
	`, id).Scan(&prod.ID, &prod.Name, &description, &prod.OwnerID, &rent, &prod.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	prod.Description = description.String
	prod.Rent, err = decimal.NewFromString(rent)
	if err != nil {
		return nil, fmt.Errorf("corrupt rent for %s: %w", id, err)
	}
	return prod, nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	var phone sql.NullString

	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &phone)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Phone = phone.String
	return u, nil
}
