package transport

import (
	"context"
	"log/slog"
)

// LogDeliverer logs messages instead of sending them. Used for dry runs.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a log-only deliverer
func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

// Name implements Deliverer
func (d *LogDeliverer) Name() string {
	return "log"
}

// Deliver implements Deliverer
func (d *LogDeliverer) Deliver(ctx context.Context, msg *Message) (string, error) {
	id := newMessageID(msg.From)
	d.logger.Info("message not sent (log transport)",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"size", len(msg.HTML),
	)
	return id, nil
}
