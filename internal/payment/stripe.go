package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"github.com/sharemart/sharemart/internal/money"
)

// StripeConfig configures the Stripe Checkout provider.
type StripeConfig struct {
	APIKey     string
	SuccessURL string
}

// Stripe creates hosted Checkout sessions as payment links.
type Stripe struct {
	successURL string
}

// NewStripe builds a Stripe provider. The API key is process-global,
// matching how stripe-go manages credentials.
func NewStripe(cfg StripeConfig) *Stripe {
	stripe.Key = cfg.APIKey
	return &Stripe{successURL: cfg.SuccessURL}
}

func (s *Stripe) Name() string { return "stripe" }

// CreateLink opens a Checkout session for the quoted amount and returns
// its hosted URL. The link ID travels as the client reference so the
// webhook can map the session back to our records.
func (s *Stripe) CreateLink(ctx context.Context, linkID string, req LinkRequest, expiresAt time.Time) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(linkID),
		SuccessURL:        stripe.String(s.successURL),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("inr"),
					UnitAmount: stripe.Int64(money.MinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Purpose),
					},
				},
			},
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if sess.URL == "" {
		return "", fmt.Errorf("%w: checkout session has no URL", ErrProvider)
	}
	return sess.URL, nil
}
