package transport

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// resendEmails is the subset of the Resend emails service used for sending
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendDeliverer sends through the Resend HTTP API
type ResendDeliverer struct {
	emails resendEmails
}

// NewResendDeliverer creates a Resend deliverer
func NewResendDeliverer(apiKey string) *ResendDeliverer {
	return &ResendDeliverer{
		emails: resend.NewClient(apiKey).Emails,
	}
}

// Name implements Deliverer
func (d *ResendDeliverer) Name() string {
	return "resend"
}

// Deliver implements Deliverer
func (d *ResendDeliverer) Deliver(ctx context.Context, msg *Message) (string, error) {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if msg.ReplyTo != "" {
		req.ReplyTo = msg.ReplyTo
	}

	resp, err := d.emails.SendWithContext(ctx, req)
	if err != nil {
		return "", &SendError{
			Temporary: true,
			Message:   fmt.Sprintf("resend: failed to send email: %v", err),
		}
	}
	return resp.Id, nil
}
