// Package transport delivers rendered newsletters through a mail provider.
//
// A Transport wraps one Deliverer (SMTP relay, Amazon SES, Resend or the
// log-only dry run) and reports every attempt as a Result value. Nothing in
// this package retries.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/foxzi/letterpress/internal/config"
	"github.com/foxzi/letterpress/internal/metrics"
)

// Message is a single outbound email
type Message struct {
	From    string // formatted From header value
	ReplyTo string
	To      string
	Subject string
	HTML    string
}

// Result is the outcome of a single send
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Deliverer hands a message to a provider and returns its message ID
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) (string, error)
	Name() string
}

// SendError represents a provider error with type information
type SendError struct {
	Temporary bool
	Message   string
}

func (e *SendError) Error() string {
	return e.Message
}

// IsTemporaryError checks if the error is temporary
func IsTemporaryError(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Temporary
	}
	return true
}

// DefaultTimeout bounds a single send when none is configured
const DefaultTimeout = 30 * time.Second

// Transport sends newsletters through a configured Deliverer
type Transport struct {
	deliverer Deliverer
	from      string
	replyTo   string
	timeout   time.Duration
	setupErr  error
	logger    *slog.Logger
}

// New builds the transport selected by cfg.Type. Configuration problems do
// not stop startup: the returned transport fails every send with the setup
// error, which Err also reports.
func New(ctx context.Context, cfg config.TransportConfig, logger *slog.Logger) *Transport {
	logger = logger.With("component", "transport", "type", cfg.Type)

	t := &Transport{
		from:    formatFrom(cfg.FromName, cfg.From),
		replyTo: cfg.ReplyTo,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}

	d, err := newDeliverer(ctx, cfg, logger)
	if err != nil {
		logger.Error("mail transport misconfigured, all sends will fail", "error", err)
		t.setupErr = err
		return t
	}
	t.deliverer = d
	return t
}

// NewWithDeliverer wraps an existing deliverer
func NewWithDeliverer(d Deliverer, from string, logger *slog.Logger) *Transport {
	return &Transport{
		deliverer: d,
		from:      from,
		timeout:   DefaultTimeout,
		logger:    logger.With("component", "transport", "type", d.Name()),
	}
}

func newDeliverer(ctx context.Context, cfg config.TransportConfig, logger *slog.Logger) (Deliverer, error) {
	switch cfg.Type {
	case config.TransportSMTP:
		var signer *DKIMSigner
		if cfg.DKIM.Enabled {
			s, err := LoadDKIMSigner(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
			if err != nil {
				return nil, err
			}
			signer = s
		}
		return NewSMTPDeliverer(SMTPOptions{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			Security:           cfg.SMTP.Security,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			HelloName:          cfg.SMTP.HelloName,
			Timeout:            cfg.Timeout,
		}, signer, logger), nil
	case config.TransportSES:
		return NewSESDeliverer(ctx, cfg.SES)
	case config.TransportResend:
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("resend api_key is required")
		}
		return NewResendDeliverer(cfg.Resend.APIKey), nil
	case config.TransportLog:
		return NewLogDeliverer(logger), nil
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// Err returns the configuration error, if any
func (t *Transport) Err() error {
	return t.setupErr
}

// Name returns the provider name used in metrics and logs
func (t *Transport) Name() string {
	if t.deliverer == nil {
		return "unconfigured"
	}
	return t.deliverer.Name()
}

// Send delivers one HTML email within the transport timeout. Failures are
// reported in the Result.
func (t *Transport) Send(ctx context.Context, to, subject, html string) Result {
	if t.setupErr != nil {
		metrics.IncMessagesFailed(t.Name(), "config")
		return Result{Error: fmt.Sprintf("transport not configured: %v", t.setupErr)}
	}

	to = strings.TrimSpace(to)
	if _, err := mail.ParseAddress(to); err != nil {
		metrics.IncMessagesFailed(t.Name(), "permanent")
		return Result{Error: fmt.Sprintf("invalid recipient address %q", to)}
	}

	msg := &Message{
		From:    t.from,
		ReplyTo: t.replyTo,
		To:      to,
		Subject: subject,
		HTML:    html,
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	id, err := t.deliverer.Deliver(ctx, msg)
	if err != nil {
		errType := "permanent"
		if IsTemporaryError(err) {
			errType = "temporary"
		}
		metrics.IncMessagesFailed(t.Name(), errType)
		t.logger.Debug("send failed", "to", to, "error", err)
		return Result{Error: err.Error()}
	}

	metrics.IncMessagesSent(t.Name())
	return Result{Success: true, MessageID: id}
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}

// senderAddress extracts the bare address from a formatted From value
func senderAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return from
	}
	return addr.Address
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 {
		return address[i+1:]
	}
	return "localhost"
}
