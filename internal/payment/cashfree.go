package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sharemart/sharemart/internal/money"
	"github.com/sharemart/sharemart/internal/retry"
	"github.com/sharemart/sharemart/internal/security"
)

const (
	cashfreeAPIVersion  = "2022-09-01"
	cashfreeMaxAttempts = 3
	cashfreeRetryDelay  = 250 * time.Millisecond
)

// CashfreeConfig configures the Cashfree payment-links client.
type CashfreeConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Cashfree creates hosted payment links through the Cashfree links API.
type Cashfree struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewCashfree builds a Cashfree client. The base URL is validated up
// front so a misconfigured endpoint can never point the service at
// internal infrastructure.
func NewCashfree(cfg CashfreeConfig) (*Cashfree, error) {
	if err := security.ValidateProviderURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("cashfree base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Cashfree{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

func (c *Cashfree) Name() string { return "cashfree" }

type cashfreeCustomer struct {
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

type cashfreeNotify struct {
	SendEmail bool `json:"send_email"`
	SendSMS   bool `json:"send_sms"`
}

type cashfreeLinkRequest struct {
	LinkID          string           `json:"link_id"`
	LinkAmount      int64            `json:"link_amount"`
	LinkCurrency    string           `json:"link_currency"`
	LinkPurpose     string           `json:"link_purpose"`
	CustomerDetails cashfreeCustomer `json:"customer_details"`
	LinkExpiryTime  string           `json:"link_expiry_time"`
	LinkNotify      cashfreeNotify   `json:"link_notify"`
}

type cashfreeLinkResponse struct {
	LinkURL string `json:"link_url"`
	Message string `json:"message"`
}

// CreateLink registers a payment link with Cashfree and returns its URL.
// Transient failures are retried; link IDs are idempotent on the Cashfree
// side so a retry can never mint a second link.
func (c *Cashfree) CreateLink(ctx context.Context, linkID string, req LinkRequest, expiresAt time.Time) (string, error) {
	var url string
	err := retry.Do(ctx, cashfreeMaxAttempts, cashfreeRetryDelay, func() error {
		var err error
		url, err = c.createLink(ctx, linkID, req, expiresAt)
		return err
	})
	return url, err
}

func (c *Cashfree) createLink(ctx context.Context, linkID string, req LinkRequest, expiresAt time.Time) (string, error) {
	body := cashfreeLinkRequest{
		LinkID:       linkID,
		LinkAmount:   money.MinorUnits(req.Amount),
		LinkCurrency: "INR",
		LinkPurpose:  req.Purpose,
		CustomerDetails: cashfreeCustomer{
			CustomerPhone: req.CustomerPhone,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
		},
		LinkExpiryTime: expiresAt.Format(time.RFC3339),
		LinkNotify:     cashfreeNotify{SendEmail: true},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("%w: encode request: %v", ErrProvider, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/links", bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("%w: %v", ErrProvider, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-version", cashfreeAPIVersion)
	httpReq.Header.Set("x-client-id", c.clientID)
	httpReq.Header.Set("x-client-secret", c.clientSecret)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		failure := fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, truncate(string(raw), 200))
		if resp.StatusCode < 500 {
			// Bad credentials or a rejected request; retrying cannot help.
			return "", retry.Permanent(failure)
		}
		return "", failure
	}

	var linkResp cashfreeLinkResponse
	if err := json.Unmarshal(raw, &linkResp); err != nil {
		return "", retry.Permanent(fmt.Errorf("%w: decode response: %v", ErrProvider, err))
	}
	if linkResp.LinkURL == "" {
		return "", retry.Permanent(fmt.Errorf("%w: response missing link_url", ErrProvider))
	}
	return linkResp.LinkURL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
