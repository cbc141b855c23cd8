package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTP connection security modes
const (
	SecurityNone     = "none"
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls" // implicit TLS, usually port 465
)

// SMTPOptions configures an SMTP relay
type SMTPOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Security           string
	InsecureSkipVerify bool
	HelloName          string
	Timeout            time.Duration
}

// SMTPDeliverer submits messages to an SMTP relay, one connection per message
type SMTPDeliverer struct {
	opts   SMTPOptions
	signer *DKIMSigner
	logger *slog.Logger
}

// NewSMTPDeliverer creates a new SMTP deliverer. signer may be nil.
func NewSMTPDeliverer(opts SMTPOptions, signer *DKIMSigner, logger *slog.Logger) *SMTPDeliverer {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Security == "" {
		opts.Security = SecurityStartTLS
	}
	if opts.HelloName == "" {
		opts.HelloName = "localhost"
	}
	return &SMTPDeliverer{
		opts:   opts,
		signer: signer,
		logger: logger,
	}
}

// Name implements Deliverer
func (d *SMTPDeliverer) Name() string {
	return "smtp"
}

func (d *SMTPDeliverer) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         d.opts.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: d.opts.InsecureSkipVerify,
	}
}

// Deliver implements Deliverer
func (d *SMTPDeliverer) Deliver(ctx context.Context, msg *Message) (string, error) {
	messageID := newMessageID(msg.From)
	data, err := buildMessage(msg, messageID, time.Now())
	if err != nil {
		return "", &SendError{Temporary: false, Message: err.Error()}
	}

	if d.signer != nil {
		signed, err := d.signer.Sign(data)
		if err != nil {
			d.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", d.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	addr := net.JoinHostPort(d.opts.Host, strconv.Itoa(d.opts.Port))
	dialer := &net.Dialer{Timeout: d.opts.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", &SendError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}
	// go-smtp manages its own per-command deadlines, so the overall
	// timeout is enforced by closing the connection.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if d.opts.Security == SecurityTLS {
		tlsConn := tls.Client(conn, d.tlsConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return "", &SendError{
				Temporary: true,
				Message:   fmt.Sprintf("TLS handshake with %s failed: %v", addr, err),
			}
		}
		conn = tlsConn
	}

	client, err := d.newClient(conn, addr)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if d.opts.Username != "" {
		auth := sasl.NewPlainClient("", d.opts.Username, d.opts.Password)
		if err := client.Auth(auth); err != nil {
			return "", categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(senderAddress(msg.From), nil); err != nil {
		return "", categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(msg.To, nil); err != nil {
		return "", categorizeError(err, "RCPT TO "+msg.To)
	}

	wc, err := client.Data()
	if err != nil {
		return "", categorizeError(err, "DATA")
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return "", &SendError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return "", categorizeError(err, "DATA close")
	}

	if err := client.Quit(); err != nil {
		d.logger.Debug("QUIT failed after successful delivery", "error", err)
	}

	return messageID, nil
}

// newClient greets the server. In STARTTLS mode the connection is upgraded
// first and EHLO is repeated with the configured name over TLS.
func (d *SMTPDeliverer) newClient(conn net.Conn, addr string) (*smtp.Client, error) {
	var client *smtp.Client
	if d.opts.Security == SecurityStartTLS {
		c, err := smtp.NewClientStartTLS(conn, d.tlsConfig())
		if err != nil {
			conn.Close()
			if strings.Contains(err.Error(), "doesn't support STARTTLS") {
				return nil, &SendError{
					Temporary: false,
					Message:   fmt.Sprintf("%s does not support STARTTLS", addr),
				}
			}
			return nil, categorizeError(err, "STARTTLS")
		}
		client = c
	} else {
		client = smtp.NewClient(conn)
	}
	client.CommandTimeout = d.opts.Timeout
	client.SubmissionTimeout = d.opts.Timeout

	if err := client.Hello(d.opts.HelloName); err != nil {
		client.Close()
		return nil, categorizeError(err, "EHLO")
	}
	return client, nil
}

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *SendError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &SendError{
			Temporary: smtpErr.Code < 500,
			Message:   msg,
		}
	}

	// Network errors and anything unrecognised count as temporary
	return &SendError{
		Temporary: true,
		Message:   msg,
	}
}
