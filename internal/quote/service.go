package quote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sharemart/sharemart/internal/catalog"
	"github.com/sharemart/sharemart/internal/idgen"
	"github.com/sharemart/sharemart/internal/ledger"
	"github.com/sharemart/sharemart/internal/metrics"
	"github.com/sharemart/sharemart/internal/money"
	"github.com/sharemart/sharemart/internal/notify"
	"github.com/sharemart/sharemart/internal/payment"
	"github.com/sharemart/sharemart/internal/traces"

	"github.com/shopspring/decimal"
)

// LinkCreator asks the payment adapter for a provider-hosted checkout link.
type LinkCreator interface {
	CreateLink(ctx context.Context, req payment.LinkRequest) (*payment.Link, error)
}

// Settler releases escrowed funds from the platform wallet.
type Settler interface {
	Release(ctx context.Context, toUserID string, amount decimal.Decimal, quoteID string) (*ledger.Transaction, error)
}

// PlaceRequest contains the parameters for placing a quote.
type PlaceRequest struct {
	ProductID    string `json:"productId" binding:"required"`
	CustomerID   string `json:"customerId" binding:"required"`
	ExchangeType string `json:"exchangeType" binding:"required"`
	FromDate     string `json:"fromDate" binding:"required"` // DD/MM/YYYY
	ToDate       string `json:"toDate" binding:"required"`   // DD/MM/YYYY
	MeetupPoint  string `json:"meetupPoint"`
	Remarks      string `json:"remarks"`
}

// UpdateRequest contains the parameters for renegotiating a quote.
// Omitted fields keep their prior values; remarks is mandatory.
type UpdateRequest struct {
	ActorID      string `json:"actorId" binding:"required"`
	ExchangeType string `json:"exchangeType"`
	FromDate     string `json:"fromDate"`
	ToDate       string `json:"toDate"`
	MeetupPoint  string `json:"meetupPoint"`
	Remarks      string `json:"remarks" binding:"required"`
}

// Service implements the quote state machine.
type Service struct {
	store    Store
	catalog  catalog.Store
	settler  Settler
	links    LinkCreator // nil = payment links disabled
	notifier *notify.Emitter
	logger   *slog.Logger
	locks    sync.Map // per-quote ID locks to serialize state transitions
}

// NewService creates a new quote service.
func NewService(store Store, cat catalog.Store, settler Settler, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		settler: settler,
		logger:  logger,
	}
}

// WithLinkCreator adds a payment-link adapter for RENT/DEPOSIT settlement.
func (s *Service) WithLinkCreator(lc LinkCreator) *Service {
	s.links = lc
	return s
}

// WithNotifier adds a notification emitter.
func (s *Service) WithNotifier(n *notify.Emitter) *Service {
	s.notifier = n
	return s
}

// quoteLock returns a mutex for the given quote ID.
// This prevents concurrent approvals from racing the settlement path.
func (s *Service) quoteLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Place creates a quote in PLACED and notifies the product owner.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Quote, error) {
	ctx, span := traces.StartSpan(ctx, "quote.place",
		traces.ProductID(req.ProductID), traces.UserID(req.CustomerID))
	defer span.End()

	exchangeType := ExchangeType(req.ExchangeType)
	if !exchangeType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExchange, req.ExchangeType)
	}

	fromDate, err := ParseDate(req.FromDate)
	if err != nil {
		return nil, err
	}
	toDate, err := ParseDate(req.ToDate)
	if err != nil {
		return nil, err
	}
	if toDate.Before(fromDate) {
		return nil, fmt.Errorf("%w: to_date before from_date", ErrInvalidDate)
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.OwnerID == req.CustomerID {
		return nil, ErrInvalidActor
	}

	rent, deposit := computeAmounts(exchangeType, product.Rent)

	now := time.Now()
	q := &Quote{
		ID:            idgen.NewEntityID(),
		ProductID:     product.ID,
		CustomerID:    req.CustomerID,
		OwnerID:       product.OwnerID,
		ExchangeType:  exchangeType,
		Status:        StatusPlaced,
		FromDate:      fromDate,
		ToDate:        toDate,
		MeetupPoint:   req.MeetupPoint,
		Remarks:       req.Remarks,
		RentAmount:    rent,
		DepositAmount: deposit,
		LastUpdatedBy: RoleCustomer,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	q.appendHistory(EventPlaced, req.CustomerID, req.Remarks, now)

	if err := s.store.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}

	metrics.QuotesPlacedTotal.WithLabelValues(string(exchangeType)).Inc()

	customerName := req.CustomerID
	if customer, err := s.catalog.GetUser(ctx, req.CustomerID); err == nil {
		customerName = customer.Name
	}
	s.notifier.QuotePlaced(q.OwnerID, q.ID, product.Name, customerName)

	return q, nil
}

// Update renegotiates terms. Bounded at MaxUpdates rounds.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Quote, error) {
	ctx, span := traces.StartSpan(ctx, "quote.update", traces.QuoteID(id))
	defer span.End()

	mu := s.quoteLock(id)
	mu.Lock()
	defer mu.Unlock()

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role, err := q.RoleOf(req.ActorID)
	if err != nil {
		return nil, err
	}
	if q.IsClosed {
		return nil, ErrQuoteClosed
	}
	if q.Status != StatusPlaced && q.Status != StatusUpdated {
		return nil, ErrInvalidStatus
	}
	if q.UpdateCount >= MaxUpdates {
		return nil, ErrUpdateLimitReached
	}

	if req.ExchangeType != "" {
		t := ExchangeType(req.ExchangeType)
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidExchange, req.ExchangeType)
		}
		q.ExchangeType = t
	}
	if req.FromDate != "" {
		if q.FromDate, err = ParseDate(req.FromDate); err != nil {
			return nil, err
		}
	}
	if req.ToDate != "" {
		if q.ToDate, err = ParseDate(req.ToDate); err != nil {
			return nil, err
		}
	}
	if req.MeetupPoint != "" {
		q.MeetupPoint = req.MeetupPoint
	}
	q.Remarks = req.Remarks

	// Exchange type may have changed, so amounts are derived again
	product, err := s.catalog.GetProduct(ctx, q.ProductID)
	if err != nil {
		return nil, err
	}
	q.RentAmount, q.DepositAmount = computeAmounts(q.ExchangeType, product.Rent)

	now := time.Now()
	q.Status = StatusUpdated
	q.UpdateCount++
	q.LastUpdatedBy = role
	q.UpdatedAt = now
	q.appendHistory(EventUpdated, req.ActorID, req.Remarks, now)

	if err := s.store.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	metrics.QuoteTransitionsTotal.WithLabelValues(string(StatusUpdated)).Inc()
	s.notifier.QuoteUpdated(q.Counterparty(role), q.ID, product.Name)

	return q, nil
}

// Approve records one party's approval. When both parties have approved,
// the settlement path runs: SHARE moves straight to IN_TRANSIT, RENT and
// DEPOSIT first request a payment link. A provider failure leaves the
// quote in APPROVED so approval can be retried.
func (s *Service) Approve(ctx context.Context, id, actorID, remarks string) (*Quote, error) {
	ctx, span := traces.StartSpan(ctx, "quote.approve", traces.QuoteID(id), traces.UserID(actorID))
	defer span.End()

	mu := s.quoteLock(id)
	mu.Lock()
	defer mu.Unlock()

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role, err := q.RoleOf(actorID)
	if err != nil {
		return nil, err
	}
	if q.IsClosed {
		return nil, ErrQuoteClosed
	}

	retrying := false
	switch role {
	case RoleCustomer:
		if q.ApprovedByCustomer {
			if !q.IsApproved {
				return q, nil // repeated approval before counterparty acts is a no-op
			}
			retrying = true
		}
		q.ApprovedByCustomer = true
	case RoleOwner:
		if q.ApprovedByOwner {
			if !q.IsApproved {
				return q, nil
			}
			retrying = true
		}
		q.ApprovedByOwner = true
	}

	// A repeated approval on an already-approved quote is only meaningful
	// as a retry of a failed settlement (quote stuck in APPROVED).
	if retrying && q.Status != StatusApproved {
		return nil, ErrInvalidStatus
	}

	now := time.Now()
	q.LastUpdatedBy = role
	q.UpdatedAt = now
	if !retrying {
		event := EventApprovedByCustomer
		if role == RoleOwner {
			event = EventApprovedByOwner
		}
		q.appendHistory(event, actorID, remarks, now)
	}

	if !(q.ApprovedByCustomer && q.ApprovedByOwner) {
		if err := s.store.Update(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to update quote: %w", err)
		}
		product, _ := s.catalog.GetProduct(ctx, q.ProductID)
		s.notifier.QuoteApproved(q.Counterparty(role), q.ID, productName(product, q.ProductID))
		return q, nil
	}

	// Both sides approved: persist APPROVED first so a provider failure
	// below leaves a retryable state behind.
	if !q.IsApproved {
		q.Status = StatusApproved
		q.IsApproved = true
		if err := s.store.Update(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to update quote: %w", err)
		}
		metrics.QuoteTransitionsTotal.WithLabelValues(string(StatusApproved)).Inc()
		metrics.QuoteApprovalDuration.Observe(now.Sub(q.CreatedAt).Seconds())
	}

	if err := s.settle(ctx, q); err != nil {
		return q, err
	}

	q.Status = StatusInTransit
	q.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}
	metrics.QuoteTransitionsTotal.WithLabelValues(string(StatusInTransit)).Inc()

	return q, nil
}

// settle runs the approved-quote settlement path for q's exchange type.
func (s *Service) settle(ctx context.Context, q *Quote) error {
	product, err := s.catalog.GetProduct(ctx, q.ProductID)
	if err != nil {
		return err
	}

	if q.ExchangeType == ExchangeShare {
		s.notifier.MeetupRequested(q.CustomerID, q.ID, product.Name)
		s.notifier.MeetupRequested(q.OwnerID, q.ID, product.Name)
		return nil
	}

	if s.links == nil {
		return fmt.Errorf("%w: no link adapter configured", payment.ErrProvider)
	}

	customer, err := s.catalog.GetUser(ctx, q.CustomerID)
	if err != nil {
		return err
	}

	amount := q.PayableAmount()
	_, err = s.links.CreateLink(ctx, payment.LinkRequest{
		QuoteID:       q.ID,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
		Purpose:       fmt.Sprintf("%s for %s", q.ExchangeType, product.Name),
		Amount:        amount,
		FromDate:      q.FromDate,
	})
	if err != nil {
		return err
	}

	formatted := money.Format(amount)
	s.notifier.PaymentRequested(q.CustomerID, q.ID, product.Name, formatted)
	s.notifier.PaymentRequested(q.OwnerID, q.ID, product.Name, formatted)
	return nil
}

// Reject closes the quote. A single party's rejection is final. Only a
// quote still under negotiation can be rejected: once both parties have
// approved, settlement is in motion and the customer may already have
// paid, so rejection would strand funds in escrow.
func (s *Service) Reject(ctx context.Context, id, actorID, remarks string) (*Quote, error) {
	ctx, span := traces.StartSpan(ctx, "quote.reject", traces.QuoteID(id), traces.UserID(actorID))
	defer span.End()

	mu := s.quoteLock(id)
	mu.Lock()
	defer mu.Unlock()

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role, err := q.RoleOf(actorID)
	if err != nil {
		return nil, err
	}
	if q.IsClosed {
		return nil, ErrQuoteClosed
	}
	if q.Status != StatusPlaced && q.Status != StatusUpdated {
		return nil, fmt.Errorf("%w: cannot reject a %s quote", ErrInvalidStatus, q.Status)
	}

	now := time.Now()
	event := EventRejectedByCustomer
	if role == RoleOwner {
		q.RejectedByOwner = true
		event = EventRejectedByOwner
	} else {
		q.RejectedByCustomer = true
	}
	q.Status = StatusRejected
	q.IsClosed = true
	q.LastUpdatedBy = role
	q.UpdatedAt = now
	q.appendHistory(event, actorID, remarks, now)

	if err := s.store.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	metrics.QuoteTransitionsTotal.WithLabelValues(string(StatusRejected)).Inc()
	product, _ := s.catalog.GetProduct(ctx, q.ProductID)
	s.notifier.QuoteRejected(q.Counterparty(role), q.ID, productName(product, q.ProductID))

	return q, nil
}

// MarkExchanged records one party's exchange confirmation. When both have
// confirmed, rent is released from escrow to the owner for RENT quotes.
func (s *Service) MarkExchanged(ctx context.Context, id, actorID string) (*Quote, error) {
	ctx, span := traces.StartSpan(ctx, "quote.exchange", traces.QuoteID(id), traces.UserID(actorID))
	defer span.End()

	mu := s.quoteLock(id)
	mu.Lock()
	defer mu.Unlock()

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role, err := q.RoleOf(actorID)
	if err != nil {
		return nil, err
	}
	if q.IsClosed {
		return nil, ErrQuoteClosed
	}
	if !q.IsApproved {
		return nil, ErrInvalidStatus
	}

	if role == RoleCustomer {
		if q.ExchangedByCustomer {
			return q, nil
		}
		q.ExchangedByCustomer = true
	} else {
		if q.ExchangedByOwner {
			return q, nil
		}
		q.ExchangedByOwner = true
	}

	now := time.Now()
	q.LastUpdatedBy = role
	q.UpdatedAt = now

	if !(q.ExchangedByCustomer && q.ExchangedByOwner) {
		if err := s.store.Update(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to update quote: %w", err)
		}
		return q, nil
	}

	// Both confirmed. For RENT, move rent from escrow to the owner before
	// persisting: the quote must not advance if the fund movement failed.
	if q.ExchangeType == ExchangeRent {
		if _, err := s.settler.Release(ctx, q.OwnerID, q.RentAmount, q.ID); err != nil {
			return nil, fmt.Errorf("rent settlement: %w", err)
		}
		metrics.SettlementsTotal.WithLabelValues("rent").Inc()
	}

	q.IsExchanged = true
	q.appendHistory(EventExchanged, actorID, "", now)

	if err := s.store.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	product, _ := s.catalog.GetProduct(ctx, q.ProductID)
	name := productName(product, q.ProductID)
	s.notifier.ExchangeConfirmed(q.CustomerID, q.ID, name)
	s.notifier.ExchangeConfirmed(q.OwnerID, q.ID, name)
	if q.ExchangeType == ExchangeRent {
		s.notifier.RentSettled(q.OwnerID, q.ID, name, money.Format(q.RentAmount))
	}

	return q, nil
}

// MarkReturned records one party's return confirmation. When both have
// confirmed, the deposit is refunded to the customer for RENT/DEPOSIT
// quotes and the quote closes.
func (s *Service) MarkReturned(ctx context.Context, id, actorID string) (*Quote, error) {
	ctx, span := traces.StartSpan(ctx, "quote.return", traces.QuoteID(id), traces.UserID(actorID))
	defer span.End()

	mu := s.quoteLock(id)
	mu.Lock()
	defer mu.Unlock()

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role, err := q.RoleOf(actorID)
	if err != nil {
		return nil, err
	}
	if q.IsClosed {
		return nil, ErrQuoteClosed
	}
	if !q.IsExchanged {
		return nil, ErrInvalidStatus
	}

	if role == RoleCustomer {
		if q.ReturnedByCustomer {
			return q, nil
		}
		q.ReturnedByCustomer = true
	} else {
		if q.ReturnedByOwner {
			return q, nil
		}
		q.ReturnedByOwner = true
	}

	now := time.Now()
	q.LastUpdatedBy = role
	q.UpdatedAt = now

	if !(q.ReturnedByCustomer && q.ReturnedByOwner) {
		if err := s.store.Update(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to update quote: %w", err)
		}
		return q, nil
	}

	// Both confirmed. Deposit goes back to the customer before the close
	// is persisted, same atomicity rule as the exchange settlement.
	refundsDeposit := q.ExchangeType == ExchangeRent || q.ExchangeType == ExchangeDeposit
	if refundsDeposit {
		if _, err := s.settler.Release(ctx, q.CustomerID, q.DepositAmount, q.ID); err != nil {
			return nil, fmt.Errorf("deposit refund: %w", err)
		}
		metrics.SettlementsTotal.WithLabelValues("deposit").Inc()
	}

	q.IsClosed = true
	q.appendHistory(EventReturned, actorID, "", now)

	if err := s.store.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	product, _ := s.catalog.GetProduct(ctx, q.ProductID)
	name := productName(product, q.ProductID)
	s.notifier.ReturnConfirmed(q.CustomerID, q.ID, name)
	s.notifier.ReturnConfirmed(q.OwnerID, q.ID, name)
	if refundsDeposit {
		s.notifier.DepositRefunded(q.CustomerID, q.ID, name, money.Format(q.DepositAmount))
	}

	return q, nil
}

// MarkPaid applies a confirmed payment to the quote: RENT marks both rent
// and deposit paid, DEPOSIT marks the deposit only. Called by the payment
// adapter after the ledger credit succeeds.
func (s *Service) MarkPaid(ctx context.Context, id string, amount decimal.Decimal) error {
	mu := s.quoteLock(id)
	mu.Lock()
	defer mu.Unlock()

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	switch q.ExchangeType {
	case ExchangeRent:
		q.IsRentPaid = true
		q.IsDepositPaid = true
	case ExchangeDeposit:
		q.IsDepositPaid = true
	}

	now := time.Now()
	q.LastUpdatedBy = RoleCustomer
	q.UpdatedAt = now
	q.appendHistory(EventPaymentReceived, q.CustomerID, "", now)

	if err := s.store.Update(ctx, q); err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}

	product, _ := s.catalog.GetProduct(ctx, q.ProductID)
	name := productName(product, q.ProductID)
	formatted := money.Format(amount)
	s.notifier.PaymentReceived(q.CustomerID, q.ID, name, formatted)
	s.notifier.PaymentReceived(q.OwnerID, q.ID, name, formatted)
	return nil
}

// CloseExpired closes the quote after its payment link lapsed unpaid.
// Idempotent: closing an already-closed quote is a no-op.
func (s *Service) CloseExpired(ctx context.Context, id string) error {
	mu := s.quoteLock(id)
	mu.Lock()
	defer mu.Unlock()

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if q.IsClosed {
		return nil
	}

	now := time.Now()
	q.IsClosed = true
	q.UpdatedAt = now
	q.appendHistory(EventPaymentExpired, "", "", now)

	if err := s.store.Update(ctx, q); err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}

	product, _ := s.catalog.GetProduct(ctx, q.ProductID)
	name := productName(product, q.ProductID)
	s.notifier.PaymentExpired(q.CustomerID, q.ID, name)
	s.notifier.PaymentExpired(q.OwnerID, q.ID, name)
	return nil
}

// Get returns a quote by ID.
func (s *Service) Get(ctx context.Context, id string) (*Quote, error) {
	return s.store.Get(ctx, id)
}

// ListByCustomer returns quotes placed by a customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Quote, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByCustomer(ctx, customerID, limit)
}

// ListByOwner returns quotes against an owner's products.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Quote, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByOwner(ctx, ownerID, limit)
}

func productName(p *catalog.Product, fallback string) string {
	if p != nil {
		return p.Name
	}
	return fallback
}
