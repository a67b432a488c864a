// Package payment creates provider-hosted checkout links for approved
// quotes and processes the provider webhooks that confirm their outcome.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrProvider wraps any failure talking to the payment provider.
	ErrProvider = errors.New("payment provider error")

	ErrLinkNotFound = errors.New("payment link not found")
)

// LinkStatus tracks the outcome of a payment link.
type LinkStatus string

const (
	LinkActive  LinkStatus = "ACTIVE"
	LinkPaid    LinkStatus = "PAID"
	LinkExpired LinkStatus = "EXPIRED"
)

// Terminal reports whether the link has reached a final status.
func (s LinkStatus) Terminal() bool {
	return s == LinkPaid || s == LinkExpired
}

// LinkRequest carries everything a provider needs to build a checkout link.
type LinkRequest struct {
	QuoteID       string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Purpose       string
	Amount        decimal.Decimal
	FromDate      time.Time
}

// Link is a persisted payment link for one quote.
type Link struct {
	ID         string          `json:"id"`
	QuoteID    string          `json:"quoteId"`
	CustomerID string          `json:"customerId"`
	Provider   string          `json:"provider"`
	URL        string          `json:"url"`
	Amount     decimal.Decimal `json:"amount"`
	Status     LinkStatus      `json:"status"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Provider is a hosted-checkout backend.
type Provider interface {
	Name() string
	// CreateLink registers linkID with the provider and returns the URL
	// the customer pays at.
	CreateLink(ctx context.Context, linkID string, req LinkRequest, expiresAt time.Time) (string, error)
}

// Store persists payment links.
type Store interface {
	Create(ctx context.Context, link *Link) error
	Get(ctx context.Context, id string) (*Link, error)
	GetByQuote(ctx context.Context, quoteID string) (*Link, error)
	UpdateStatus(ctx context.Context, id string, status LinkStatus) error
}
