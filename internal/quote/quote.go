// Package quote implements the quote lifecycle between a customer and a
// product owner.
//
// Flow:
//  1. Customer places a quote against a product → PLACED
//  2. Parties negotiate terms, bounded revisions → UPDATED
//  3. Both parties approve → APPROVED, settlement path runs
//  4. SHARE needs no payment; RENT/DEPOSIT get a payment link → IN_TRANSIT
//  5. Both confirm exchange; rent released to owner
//  6. Both confirm return; deposit released to customer, quote closed
package quote

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharemart/sharemart/internal/money"
)

var (
	ErrQuoteNotFound      = errors.New("quote not found")
	ErrInvalidActor       = errors.New("actor is not a party to this quote")
	ErrUpdateLimitReached = errors.New("quote update limit reached")
	ErrQuoteClosed        = errors.New("quote is closed")
	ErrInvalidStatus      = errors.New("invalid quote status for this operation")
	ErrInvalidDate        = errors.New("invalid date, want DD/MM/YYYY")
	ErrInvalidExchange    = errors.New("unknown exchange type")
)

// MaxUpdates bounds negotiation rounds per quote.
const MaxUpdates = 5

// DateLayout is the wire format for from/to dates.
const DateLayout = "02/01/2006"

// Status represents the state of a quote.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusUpdated   Status = "UPDATED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusInTransit Status = "IN_TRANSIT"
)

// ExchangeType determines what the customer pays.
type ExchangeType string

const (
	ExchangeShare   ExchangeType = "SHARE"   // no payment
	ExchangeRent    ExchangeType = "RENT"    // rent + deposit
	ExchangeDeposit ExchangeType = "DEPOSIT" // deposit only
)

// Valid reports whether t is a known exchange type.
func (t ExchangeType) Valid() bool {
	switch t {
	case ExchangeShare, ExchangeRent, ExchangeDeposit:
		return true
	}
	return false
}

// Role identifies which side of the quote an actor is on.
// Resolved once at the boundary; anyone else is rejected with ErrInvalidActor.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleOwner    Role = "OWNER"
)

// HistoryEntry is one step of a quote's audit trail.
type HistoryEntry struct {
	Seq          int          `json:"seq"`
	Event        string       `json:"event"` // PLACED, UPDATED, APPROVED_BY_CUSTOMER, ...
	ActorID      string       `json:"actorId,omitempty"`
	ExchangeType ExchangeType `json:"exchangeType"`
	Remarks      string       `json:"remarks,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// History event names.
const (
	EventPlaced             = "PLACED"
	EventUpdated            = "UPDATED"
	EventApprovedByCustomer = "APPROVED_BY_CUSTOMER"
	EventApprovedByOwner    = "APPROVED_BY_OWNER"
	EventRejectedByCustomer = "REJECTED_BY_CUSTOMER"
	EventRejectedByOwner    = "REJECTED_BY_OWNER"
	EventPaymentReceived    = "PAYMENT_RECEIVED"
	EventPaymentExpired     = "PAYMENT_EXPIRED"
	EventExchanged          = "EXCHANGED"
	EventReturned           = "RETURNED"
)

// Quote is one negotiation instance between a customer and a product owner.
type Quote struct {
	ID           string       `json:"id"`
	ProductID    string       `json:"productId"`
	CustomerID   string       `json:"customerId"`
	OwnerID      string       `json:"ownerId"`
	ExchangeType ExchangeType `json:"exchangeType"`
	Status       Status       `json:"status"`

	FromDate    time.Time `json:"fromDate"`
	ToDate      time.Time `json:"toDate"`
	MeetupPoint string    `json:"meetupPoint,omitempty"`
	Remarks     string    `json:"remarks,omitempty"`

	RentAmount    decimal.Decimal `json:"rentAmount"`
	DepositAmount decimal.Decimal `json:"depositAmount"`

	UpdateCount int `json:"updateCount"`

	ApprovedByCustomer  bool `json:"approvedByCustomer"`
	ApprovedByOwner     bool `json:"approvedByOwner"`
	RejectedByCustomer  bool `json:"rejectedByCustomer"`
	RejectedByOwner     bool `json:"rejectedByOwner"`
	ExchangedByCustomer bool `json:"exchangedByCustomer"`
	ExchangedByOwner    bool `json:"exchangedByOwner"`
	ReturnedByCustomer  bool `json:"returnedByCustomer"`
	ReturnedByOwner     bool `json:"returnedByOwner"`

	IsApproved    bool `json:"isApproved"`
	IsExchanged   bool `json:"isExchanged"`
	IsClosed      bool `json:"isClosed"`
	IsRentPaid    bool `json:"isRentPaid"`
	IsDepositPaid bool `json:"isDepositPaid"`

	LastUpdatedBy Role `json:"lastUpdatedBy,omitempty"`

	History []HistoryEntry `json:"history,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoleOf resolves an actor's side of the quote, or ErrInvalidActor.
func (q *Quote) RoleOf(actorID string) (Role, error) {
	switch actorID {
	case q.CustomerID:
		return RoleCustomer, nil
	case q.OwnerID:
		return RoleOwner, nil
	}
	return "", ErrInvalidActor
}

// Counterparty returns the user on the other side from role.
func (q *Quote) Counterparty(role Role) string {
	if role == RoleCustomer {
		return q.OwnerID
	}
	return q.CustomerID
}

// PayableAmount is what the customer owes for this quote:
// rent + deposit for RENT, deposit for DEPOSIT, zero for SHARE.
func (q *Quote) PayableAmount() decimal.Decimal {
	switch q.ExchangeType {
	case ExchangeRent:
		return q.RentAmount.Add(q.DepositAmount)
	case ExchangeDeposit:
		return q.DepositAmount
	}
	return decimal.Zero
}

// appendHistory adds an entry with the next sequence number.
func (q *Quote) appendHistory(event, actorID, remarks string, at time.Time) {
	q.History = append(q.History, HistoryEntry{
		Seq:          len(q.History) + 1,
		Event:        event,
		ActorID:      actorID,
		ExchangeType: q.ExchangeType,
		Remarks:      remarks,
		CreatedAt:    at,
	})
}

// computeAmounts derives rent and deposit from the product price and
// exchange type: SHARE costs nothing, DEPOSIT skips rent, everything
// else pays rent plus a 25% deposit.
func computeAmounts(exchangeType ExchangeType, productRent decimal.Decimal) (rent, deposit decimal.Decimal) {
	if exchangeType == ExchangeShare {
		return money.Zero(), money.Zero()
	}
	deposit = money.Deposit(productRent)
	if exchangeType == ExchangeDeposit {
		return money.Zero(), deposit
	}
	return productRent.Round(money.Places), deposit
}

// ParseDate parses a DD/MM/YYYY wire date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Store persists quotes.
type Store interface {
	Create(ctx context.Context, q *Quote) error
	Get(ctx context.Context, id string) (*Quote, error)
	Update(ctx context.Context, q *Quote) error
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Quote, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Quote, error)
}
