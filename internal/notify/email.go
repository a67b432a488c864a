package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Emailer sends a single email.
type Emailer interface {
	Send(ctx context.Context, toEmail, toName, subject, plainText string) error
}

// SendGridEmailer sends email through SendGrid.
type SendGridEmailer struct {
	apiKey    string
	fromEmail string
	fromName  string
}

// NewSendGridEmailer creates a SendGrid-backed emailer.
func NewSendGridEmailer(apiKey, fromEmail, fromName string) *SendGridEmailer {
	return &SendGridEmailer{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridEmailer) Send(ctx context.Context, toEmail, toName, subject, plainText string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(toName, toEmail)

	message := mail.NewSingleEmail(from, subject, recipient, plainText,
		fmt.Sprintf("<html><body><p>%s</p></body></html>", plainText))

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
