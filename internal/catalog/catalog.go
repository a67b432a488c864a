// Package catalog provides read access to products and users.
//
// Listings and accounts are owned by the main marketplace service;
// this service only reads them to price quotes and address notifications.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Product is a shareable listing.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	OwnerID     string          `json:"ownerId"`
	Rent        decimal.Decimal `json:"rent"` // monthly rent price
	CreatedAt   time.Time       `json:"createdAt"`
}

// User is a marketplace account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Store reads products and users.
type Store interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetUser(ctx context.Context, id string) (*User, error)
}
