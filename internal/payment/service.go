package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharemart/sharemart/internal/idgen"
	"github.com/sharemart/sharemart/internal/ledger"
	"github.com/sharemart/sharemart/internal/metrics"
	"github.com/sharemart/sharemart/internal/money"
	"github.com/sharemart/sharemart/internal/traces"
)

// Escrow holds customer funds in the platform wallet between payment
// and settlement. Implemented by ledger.Ledger.
type Escrow interface {
	OpenEscrow(ctx context.Context, amount decimal.Decimal, linkID string) (*ledger.Transaction, error)
	SettleEscrow(ctx context.Context, linkID string, amount decimal.Decimal) (*ledger.Transaction, error)
	FailEscrow(ctx context.Context, linkID string) error
}

// QuoteTransitions is the slice of the quote service the webhook path
// drives: crediting a paid quote or closing an expired one.
type QuoteTransitions interface {
	MarkPaid(ctx context.Context, quoteID string, amount decimal.Decimal) error
	CloseExpired(ctx context.Context, quoteID string) error
}

// Service issues payment links and applies provider webhooks.
type Service struct {
	store     Store
	provider  Provider
	escrow    Escrow
	quotes    QuoteTransitions
	expiryLoc *time.Location
	logger    *slog.Logger
}

// NewService creates a payment service. expiryLoc is the timezone in
// which link expiry times are anchored.
func NewService(store Store, provider Provider, escrow Escrow, expiryLoc *time.Location, logger *slog.Logger) *Service {
	if expiryLoc == nil {
		expiryLoc = time.UTC
	}
	return &Service{
		store:     store,
		provider:  provider,
		escrow:    escrow,
		expiryLoc: expiryLoc,
		logger:    logger,
	}
}

// WithQuotes wires the quote service in. Set after construction because
// the quote service needs this service as its link creator.
func (s *Service) WithQuotes(q QuoteTransitions) *Service {
	s.quotes = q
	return s
}

// CreateLink creates a payment link for an approved quote, persists it,
// and opens an escrow record for the expected amount. If an active link
// already exists for the quote it is returned as-is, so a retried
// approval never double-bills the customer.
func (s *Service) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	ctx, span := traces.StartSpan(ctx, "payment.create_link",
		traces.QuoteID(req.QuoteID), traces.Amount(money.Format(req.Amount)))
	defer span.End()

	if existing, err := s.store.GetByQuote(ctx, req.QuoteID); err == nil && existing.Status == LinkActive {
		return existing, nil
	}

	linkID := idgen.WithPrefix("pl_")
	expiresAt := linkExpiry(req.FromDate, s.expiryLoc)

	url, err := s.provider.CreateLink(ctx, linkID, req, expiresAt)
	if err != nil {
		metrics.PaymentLinksTotal.WithLabelValues(s.provider.Name(), "error").Inc()
		return nil, err
	}

	now := time.Now()
	link := &Link{
		ID:         linkID,
		QuoteID:    req.QuoteID,
		CustomerID: req.CustomerID,
		Provider:   s.provider.Name(),
		URL:        url,
		Amount:     req.Amount,
		Status:     LinkActive,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to persist payment link: %w", err)
	}

	if _, err := s.escrow.OpenEscrow(ctx, req.Amount, linkID); err != nil {
		return nil, fmt.Errorf("failed to open escrow: %w", err)
	}

	metrics.PaymentLinksTotal.WithLabelValues(s.provider.Name(), "created").Inc()
	s.logger.Info("payment link created",
		"link_id", linkID, "quote_id", req.QuoteID, "expires_at", expiresAt)
	return link, nil
}

// GetByQuote returns the payment link for a quote.
func (s *Service) GetByQuote(ctx context.Context, quoteID string) (*Link, error) {
	return s.store.GetByQuote(ctx, quoteID)
}

// linkExpiry anchors expiry at 01:00 local time on the quote's start
// date: the customer must pay before the rental period begins.
func linkExpiry(fromDate time.Time, loc *time.Location) time.Time {
	return time.Date(fromDate.Year(), fromDate.Month(), fromDate.Day(), 1, 0, 0, 0, loc)
}

// webhookEnvelope accepts both payload shapes providers send: the flat
// link form and the nested order form with the link ID in order tags.
type webhookEnvelope struct {
	Type string `json:"type"`
	Data struct {
		LinkID     string          `json:"link_id"`
		LinkStatus string          `json:"link_status"`
		LinkAmount json.Number     `json:"link_amount"`
		Order      struct {
			OrderTags struct {
				LinkID string `json:"link_id"`
			} `json:"order_tags"`
		} `json:"order"`
		Payment struct {
			PaymentStatus string `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

func (e *webhookEnvelope) linkID() string {
	if e.Data.LinkID != "" {
		return e.Data.LinkID
	}
	return e.Data.Order.OrderTags.LinkID
}

func (e *webhookEnvelope) status() string {
	if e.Data.LinkStatus != "" {
		return strings.ToUpper(e.Data.LinkStatus)
	}
	return strings.ToUpper(e.Data.Payment.PaymentStatus)
}

// HandleWebhook applies one provider webhook event. Redelivery is safe:
// a link already in a terminal status is left untouched.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte) error {
	ctx, span := traces.StartSpan(ctx, "payment.webhook")
	defer span.End()

	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("malformed webhook payload: %w", err)
	}

	linkID := env.linkID()
	if linkID == "" {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return errors.New("webhook payload has no link id")
	}

	link, err := s.store.Get(ctx, linkID)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown_link").Inc()
		return err
	}

	if link.Status.Terminal() {
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("webhook for settled link ignored", "link_id", linkID, "status", link.Status)
		return nil
	}

	switch env.status() {
	case "PAID", "SUCCESS":
		return s.applyPaid(ctx, link, env.Data.LinkAmount)
	case "EXPIRED", "FAILED", "CANCELLED":
		return s.applyExpired(ctx, link)
	default:
		metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		s.logger.Info("webhook status ignored", "link_id", linkID, "status", env.status())
		return nil
	}
}

func (s *Service) applyPaid(ctx context.Context, link *Link, rawAmount json.Number) error {
	// When the provider echoes the amount it takes precedence over the
	// stored one; otherwise settle what the link was issued for.
	amount := link.Amount
	if rawAmount != "" {
		parsed, err := decimal.NewFromString(rawAmount.String())
		if err != nil {
			return fmt.Errorf("malformed webhook amount %q: %w", rawAmount, err)
		}
		amount = parsed
	}

	// The link goes terminal only after the escrow and the quote are
	// settled. A failure part-way leaves it ACTIVE, so the provider's
	// redelivery re-runs the remaining steps instead of being dropped
	// by the duplicate guard.
	if _, err := s.escrow.SettleEscrow(ctx, link.ID, amount); err != nil && !errors.Is(err, ledger.ErrAlreadySettled) {
		return fmt.Errorf("failed to settle escrow: %w", err)
	}
	if err := s.quotes.MarkPaid(ctx, link.QuoteID, amount); err != nil {
		return fmt.Errorf("failed to mark quote paid: %w", err)
	}
	if err := s.store.UpdateStatus(ctx, link.ID, LinkPaid); err != nil {
		return fmt.Errorf("failed to update link status: %w", err)
	}

	metrics.WebhookEventsTotal.WithLabelValues("paid").Inc()
	s.logger.Info("payment confirmed", "link_id", link.ID, "quote_id", link.QuoteID, "amount", amount)
	return nil
}

func (s *Service) applyExpired(ctx context.Context, link *Link) error {
	if err := s.escrow.FailEscrow(ctx, link.ID); err != nil && !errors.Is(err, ledger.ErrAlreadySettled) {
		return fmt.Errorf("failed to fail escrow: %w", err)
	}
	if err := s.quotes.CloseExpired(ctx, link.QuoteID); err != nil {
		return fmt.Errorf("failed to close expired quote: %w", err)
	}
	// Terminal status last, for the same redelivery reason as applyPaid.
	if err := s.store.UpdateStatus(ctx, link.ID, LinkExpired); err != nil {
		return fmt.Errorf("failed to update link status: %w", err)
	}

	metrics.WebhookEventsTotal.WithLabelValues("expired").Inc()
	s.logger.Info("payment link expired", "link_id", link.ID, "quote_id", link.QuoteID)
	return nil
}
