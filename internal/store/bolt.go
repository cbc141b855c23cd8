package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/letterpress/internal/newsletter"
)

var (
	bucketNewsletters      = []byte("newsletters")
	bucketNewsletterIndex  = []byte("newsletters_by_created")
	bucketEvents           = []byte("events")
	bucketSubscribers      = []byte("subscribers")
	bucketSubscriberIndex  = []byte("subscribers_by_created")
	bucketSubscriberEmails = []byte("subscriber_emails")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) a BoltDB store
func NewBoltStore(path string) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketNewsletters, bucketNewsletterIndex, bucketEvents,
			bucketSubscribers, bucketSubscriberIndex, bucketSubscriberEmails,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// CreateNewsletter stores a new newsletter
func (s *BoltStore) CreateNewsletter(ctx context.Context, n *newsletter.Newsletter) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNewsletters)
		if b.Get([]byte(n.ID)) != nil {
			return fmt.Errorf("newsletter %s already exists", n.ID)
		}
		if err := putJSON(b, n.ID, n); err != nil {
			return fmt.Errorf("failed to store newsletter: %w", err)
		}
		return tx.Bucket(bucketNewsletterIndex).Put(makeIndexKey(n.CreatedAt, n.ID), []byte(n.ID))
	})
}

// GetNewsletter retrieves a newsletter by ID
func (s *BoltStore) GetNewsletter(ctx context.Context, id string) (*newsletter.Newsletter, error) {
	var n *newsletter.Newsletter
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = getNewsletter(tx, id)
		return err
	})
	return n, err
}

// ListNewsletters returns newsletters newest first
func (s *BoltStore) ListNewsletters(ctx context.Context, filter newsletter.ListFilter) ([]*newsletter.Newsletter, error) {
	var list []*newsletter.Newsletter

	err := s.db.View(func(tx *bolt.Tx) error {
		nb := tx.Bucket(bucketNewsletters)
		c := tx.Bucket(bucketNewsletterIndex).Cursor()

		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			data := nb.Get(v)
			if data == nil {
				continue
			}

			var n newsletter.Newsletter
			if err := json.Unmarshal(data, &n); err != nil {
				continue
			}

			if filter.Status != "" && n.Status != filter.Status {
				continue
			}

			if skipped < filter.Offset {
				skipped++
				continue
			}

			list = append(list, &n)
			if filter.Limit > 0 && len(list) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return list, err
}

// MarkSent sets the sent state of a newsletter
func (s *BoltStore) MarkSent(ctx context.Context, id string, sentAt time.Time, sentTo []string) (*newsletter.Newsletter, error) {
	var n *newsletter.Newsletter

	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		n, err = getNewsletter(tx, id)
		if err != nil {
			return err
		}
		if n.IsSent() {
			return newsletter.ErrAlreadySent
		}

		n.Status = newsletter.StatusSent
		n.SentAt = &sentAt
		n.SentToEmails = append([]string(nil), sentTo...)
		n.SentToCount = len(sentTo)
		n.UpdatedAt = sentAt

		return putJSON(tx.Bucket(bucketNewsletters), n.ID, n)
	})
	if err != nil {
		return nil, err
	}

	return n, nil
}

// RecordEvent appends an event and bumps the matching counter
func (s *BoltStore) RecordEvent(ctx context.Context, ev *newsletter.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		n, err := getNewsletter(tx, ev.NewsletterID)
		if err != nil {
			return err
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := tx.Bucket(bucketEvents).Put(makeIndexKey(ev.CreatedAt, ev.ID), data); err != nil {
			return fmt.Errorf("failed to store event: %w", err)
		}

		n.Counters.Add(ev.Type, 1)
		return putJSON(tx.Bucket(bucketNewsletters), n.ID, n)
	})
}

// ListEvents returns matching events oldest first
func (s *BoltStore) ListEvents(ctx context.Context, filter newsletter.EventFilter) ([]*newsletter.Event, error) {
	var events []*newsletter.Event

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()

		var k, v []byte
		if filter.Since.IsZero() {
			k, v = c.First()
		} else {
			k, v = c.Seek(timePrefix(filter.Since))
		}

		for ; k != nil; k, v = c.Next() {
			var ev newsletter.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				continue
			}
			if filter.Match(&ev) {
				events = append(events, &ev)
			}
		}
		return nil
	})

	return events, err
}

// CreateSubscriber stores a new subscriber
func (s *BoltStore) CreateSubscriber(ctx context.Context, sub *newsletter.Subscriber) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(bucketSubscriberEmails)
		if emails.Get([]byte(sub.Email)) != nil {
			return newsletter.ErrSubscriberExists
		}
		if err := emails.Put([]byte(sub.Email), []byte(sub.ID)); err != nil {
			return err
		}
		if err := putJSON(tx.Bucket(bucketSubscribers), sub.ID, sub); err != nil {
			return fmt.Errorf("failed to store subscriber: %w", err)
		}
		return tx.Bucket(bucketSubscriberIndex).Put(makeIndexKey(sub.CreatedAt, sub.ID), []byte(sub.ID))
	})
}

// GetSubscriber retrieves a subscriber by ID
func (s *BoltStore) GetSubscriber(ctx context.Context, id string) (*newsletter.Subscriber, error) {
	var sub *newsletter.Subscriber
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		sub, err = getSubscriber(tx, id)
		return err
	})
	return sub, err
}

// GetSubscriberByEmail retrieves a subscriber by normalized email
func (s *BoltStore) GetSubscriberByEmail(ctx context.Context, email string) (*newsletter.Subscriber, error) {
	var sub *newsletter.Subscriber
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketSubscriberEmails).Get([]byte(email))
		if id == nil {
			return newsletter.ErrNotFound
		}
		var err error
		sub, err = getSubscriber(tx, string(id))
		return err
	})
	return sub, err
}

// UpdateSubscriber replaces a stored subscriber. The email is immutable.
func (s *BoltStore) UpdateSubscriber(ctx context.Context, sub *newsletter.Subscriber) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		old, err := getSubscriber(tx, sub.ID)
		if err != nil {
			return err
		}
		if old.Email != sub.Email {
			return fmt.Errorf("subscriber email cannot be changed")
		}
		return putJSON(tx.Bucket(bucketSubscribers), sub.ID, sub)
	})
}

// DeleteSubscriber removes a subscriber and its indexes
func (s *BoltStore) DeleteSubscriber(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sub, err := getSubscriber(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketSubscriberEmails).Delete([]byte(sub.Email)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketSubscriberIndex).Delete(makeIndexKey(sub.CreatedAt, sub.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketSubscribers).Delete([]byte(id))
	})
}

// ListSubscribers returns subscribers in subscription order
func (s *BoltStore) ListSubscribers(ctx context.Context, filter newsletter.SubscriberFilter) ([]*newsletter.Subscriber, error) {
	var list []*newsletter.Subscriber

	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSubscribers)
		c := tx.Bucket(bucketSubscriberIndex).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			data := sb.Get(v)
			if data == nil {
				continue
			}
			var sub newsletter.Subscriber
			if err := json.Unmarshal(data, &sub); err != nil {
				continue
			}
			if matchSubscriber(&sub, filter) {
				list = append(list, &sub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return page(list, filter.Offset, filter.Limit), nil
}

// Close closes the database connection
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func getNewsletter(tx *bolt.Tx, id string) (*newsletter.Newsletter, error) {
	data := tx.Bucket(bucketNewsletters).Get([]byte(id))
	if data == nil {
		return nil, newsletter.ErrNotFound
	}
	n := &newsletter.Newsletter{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("failed to decode newsletter %s: %w", id, err)
	}
	return n, nil
}

func getSubscriber(tx *bolt.Tx, id string) (*newsletter.Subscriber, error) {
	data := tx.Bucket(bucketSubscribers).Get([]byte(id))
	if data == nil {
		return nil, newsletter.ErrNotFound
	}
	sub := &newsletter.Subscriber{}
	if err := json.Unmarshal(data, sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscriber %s: %w", id, err)
	}
	return sub, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// timePrefix encodes t as a fixed-width big-endian key so byte order matches time order
func timePrefix(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}

// makeIndexKey creates a sortable key from timestamp and ID
func makeIndexKey(t time.Time, id string) []byte {
	return append(timePrefix(t), id...)
}
