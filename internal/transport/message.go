package transport

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"time"

	"github.com/google/uuid"
)

// newMessageID returns an RFC 5322 Message-ID for the sender's domain
func newMessageID(from string) string {
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(senderAddress(from)))
}

// buildMessage renders msg as an RFC 5322 message with a quoted-printable
// HTML body and CRLF line endings.
func buildMessage(msg *Message, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	header := func(name, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}

	header("From", msg.From)
	header("To", msg.To)
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")
	header("Content-Type", "text/html; charset=utf-8")
	header("Content-Transfer-Encoding", "quoted-printable")
	header("X-Mailer", "Letterpress")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	buf.WriteString("\r\n")

	return buf.Bytes(), nil
}
