// Package store persists newsletters, subscribers and analytics events.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/foxzi/letterpress/internal/config"
	"github.com/foxzi/letterpress/internal/newsletter"
)

// NewsletterStore persists newsletters and their aggregate counters
type NewsletterStore interface {
	// CreateNewsletter stores a new newsletter
	CreateNewsletter(ctx context.Context, n *newsletter.Newsletter) error

	// GetNewsletter returns newsletter.ErrNotFound for unknown IDs
	GetNewsletter(ctx context.Context, id string) (*newsletter.Newsletter, error)

	// ListNewsletters returns newsletters newest first
	ListNewsletters(ctx context.Context, filter newsletter.ListFilter) ([]*newsletter.Newsletter, error)

	// MarkSent moves a newsletter to the terminal sent state in one write.
	// Returns newsletter.ErrAlreadySent if it is already sent.
	MarkSent(ctx context.Context, id string, sentAt time.Time, sentTo []string) (*newsletter.Newsletter, error)
}

// EventStore persists analytics events
type EventStore interface {
	// RecordEvent appends the event and increments the newsletter's counter
	// for its type as a single atomic write. Returns newsletter.ErrNotFound
	// if the newsletter does not exist; nothing is written in that case.
	RecordEvent(ctx context.Context, ev *newsletter.Event) error

	// ListEvents returns matching events oldest first
	ListEvents(ctx context.Context, filter newsletter.EventFilter) ([]*newsletter.Event, error)
}

// SubscriberStore persists subscribers
type SubscriberStore interface {
	// CreateSubscriber returns newsletter.ErrSubscriberExists if the email is taken
	CreateSubscriber(ctx context.Context, s *newsletter.Subscriber) error
	GetSubscriber(ctx context.Context, id string) (*newsletter.Subscriber, error)
	GetSubscriberByEmail(ctx context.Context, email string) (*newsletter.Subscriber, error)
	UpdateSubscriber(ctx context.Context, s *newsletter.Subscriber) error
	DeleteSubscriber(ctx context.Context, id string) error

	// ListSubscribers returns subscribers in subscription order
	ListSubscribers(ctx context.Context, filter newsletter.SubscriberFilter) ([]*newsletter.Subscriber, error)
}

// Store is the full persistence surface
type Store interface {
	NewsletterStore
	EventStore
	SubscriberStore

	// Close closes the storage connection
	Close() error
}

// Open opens the store selected by cfg
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case config.StorageBolt, "":
		return NewBoltStore(cfg.Path)
	case config.StorageRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

func matchSubscriber(s *newsletter.Subscriber, filter newsletter.SubscriberFilter) bool {
	if filter.ActiveOnly && !s.Active {
		return false
	}
	if filter.Audience != "" && !filter.Audience.Matches(s.Audience) {
		return false
	}
	return true
}

// page applies offset/limit to an already filtered slice
func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
