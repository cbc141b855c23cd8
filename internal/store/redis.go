package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foxzi/letterpress/internal/newsletter"
)

// markSentRetries bounds optimistic-lock retries in MarkSent
const markSentRetries = 5

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore implements Store on Redis. Newsletter documents are JSON strings;
// aggregate counters live in a per-newsletter hash updated with HINCRBY so
// concurrent recorders never read-modify-write the document.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, opts.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) newsletterKey(id string) string { return s.prefix + "newsletter:" + id }
func (s *RedisStore) countersKey(id string) string   { return s.prefix + "newsletter:" + id + ":counters" }
func (s *RedisStore) newslettersKey() string         { return s.prefix + "newsletters" }
func (s *RedisStore) eventKey(id string) string      { return s.prefix + "event:" + id }
func (s *RedisStore) eventsKey() string              { return s.prefix + "events" }
func (s *RedisStore) eventsByNewsletterKey(id string) string {
	return s.prefix + "events:newsletter:" + id
}
func (s *RedisStore) eventsByRecipientKey(id string) string {
	return s.prefix + "events:recipient:" + id
}
func (s *RedisStore) subscriberKey(id string) string { return s.prefix + "subscriber:" + id }
func (s *RedisStore) subscribersKey() string         { return s.prefix + "subscribers" }
func (s *RedisStore) emailKey(email string) string   { return s.prefix + "subscriber:email:" + email }

// CreateNewsletter stores a new newsletter
func (s *RedisStore) CreateNewsletter(ctx context.Context, n *newsletter.Newsletter) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal newsletter: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.newsletterKey(n.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store newsletter: %w", err)
	}
	if !ok {
		return fmt.Errorf("newsletter %s already exists", n.ID)
	}

	return s.client.ZAdd(ctx, s.newslettersKey(), redis.Z{
		Score:  float64(n.CreatedAt.UnixNano()),
		Member: n.ID,
	}).Err()
}

// GetNewsletter retrieves a newsletter by ID with its live counters
func (s *RedisStore) GetNewsletter(ctx context.Context, id string) (*newsletter.Newsletter, error) {
	data, err := s.client.Get(ctx, s.newsletterKey(id)).Bytes()
	if err == redis.Nil {
		return nil, newsletter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get newsletter: %w", err)
	}

	n := &newsletter.Newsletter{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("failed to decode newsletter %s: %w", id, err)
	}

	counters, err := s.client.HGetAll(ctx, s.countersKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}
	n.Counters = newsletter.Counters{}
	for field, value := range counters {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		n.Counters.Add(newsletter.EventType(field), v)
	}

	return n, nil
}

// ListNewsletters returns newsletters newest first
func (s *RedisStore) ListNewsletters(ctx context.Context, filter newsletter.ListFilter) ([]*newsletter.Newsletter, error) {
	ids, err := s.client.ZRevRange(ctx, s.newslettersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list newsletters: %w", err)
	}

	var list []*newsletter.Newsletter
	for _, id := range ids {
		n, err := s.GetNewsletter(ctx, id)
		if errors.Is(err, newsletter.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		list = append(list, n)
	}

	return page(list, filter.Offset, filter.Limit), nil
}

// MarkSent sets the sent state of a newsletter under WATCH so a concurrent
// MarkSent cannot also succeed
func (s *RedisStore) MarkSent(ctx context.Context, id string, sentAt time.Time, sentTo []string) (*newsletter.Newsletter, error) {
	key := s.newsletterKey(id)

	for i := 0; i < markSentRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return newsletter.ErrNotFound
			}
			if err != nil {
				return err
			}

			var n newsletter.Newsletter
			if err := json.Unmarshal(data, &n); err != nil {
				return fmt.Errorf("failed to decode newsletter %s: %w", id, err)
			}
			if n.IsSent() {
				return newsletter.ErrAlreadySent
			}

			n.Status = newsletter.StatusSent
			n.SentAt = &sentAt
			n.SentToEmails = append([]string(nil), sentTo...)
			n.SentToCount = len(sentTo)
			n.UpdatedAt = sentAt

			updated, err := json.Marshal(&n)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.GetNewsletter(ctx, id)
	}

	return nil, fmt.Errorf("failed to mark newsletter %s sent: too much contention", id)
}

// RecordEvent appends the event and increments its counter in one MULTI block
func (s *RedisStore) RecordEvent(ctx context.Context, ev *newsletter.Event) error {
	exists, err := s.client.Exists(ctx, s.newsletterKey(ev.NewsletterID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check newsletter: %w", err)
	}
	if exists == 0 {
		return newsletter.ErrNotFound
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	member := redis.Z{Score: float64(ev.CreatedAt.UnixNano()), Member: ev.ID}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.eventKey(ev.ID), data, 0)
		pipe.ZAdd(ctx, s.eventsKey(), member)
		pipe.ZAdd(ctx, s.eventsByNewsletterKey(ev.NewsletterID), member)
		if ev.RecipientID != "" {
			pipe.ZAdd(ctx, s.eventsByRecipientKey(ev.RecipientID), member)
		}
		pipe.HIncrBy(ctx, s.countersKey(ev.NewsletterID), string(ev.Type), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEvents returns matching events oldest first
func (s *RedisStore) ListEvents(ctx context.Context, filter newsletter.EventFilter) ([]*newsletter.Event, error) {
	index := s.eventsKey()
	switch {
	case filter.NewsletterID != "":
		index = s.eventsByNewsletterKey(filter.NewsletterID)
	case filter.RecipientID != "":
		index = s.eventsByRecipientKey(filter.RecipientID)
	}

	minScore := "-inf"
	if !filter.Since.IsZero() {
		minScore = strconv.FormatInt(filter.Since.UnixNano(), 10)
	}

	ids, err := s.client.ZRangeByScore(ctx, index, &redis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.eventKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	var events []*newsletter.Event
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ev newsletter.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		if filter.Match(&ev) {
			events = append(events, &ev)
		}
	}

	return events, nil
}

// CreateSubscriber stores a new subscriber, claiming its email with SETNX
func (s *RedisStore) CreateSubscriber(ctx context.Context, sub *newsletter.Subscriber) error {
	ok, err := s.client.SetNX(ctx, s.emailKey(sub.Email), sub.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim subscriber email: %w", err)
	}
	if !ok {
		return newsletter.ErrSubscriberExists
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.subscriberKey(sub.ID), data, 0)
		pipe.ZAdd(ctx, s.subscribersKey(), redis.Z{
			Score:  float64(sub.CreatedAt.UnixNano()),
			Member: sub.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store subscriber: %w", err)
	}
	return nil
}

// GetSubscriber retrieves a subscriber by ID
func (s *RedisStore) GetSubscriber(ctx context.Context, id string) (*newsletter.Subscriber, error) {
	data, err := s.client.Get(ctx, s.subscriberKey(id)).Bytes()
	if err == redis.Nil {
		return nil, newsletter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}

	sub := &newsletter.Subscriber{}
	if err := json.Unmarshal(data, sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscriber %s: %w", id, err)
	}
	return sub, nil
}

// GetSubscriberByEmail retrieves a subscriber by normalized email
func (s *RedisStore) GetSubscriberByEmail(ctx context.Context, email string) (*newsletter.Subscriber, error) {
	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if err == redis.Nil {
		return nil, newsletter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up subscriber email: %w", err)
	}
	return s.GetSubscriber(ctx, id)
}

// UpdateSubscriber replaces a stored subscriber. The email is immutable.
func (s *RedisStore) UpdateSubscriber(ctx context.Context, sub *newsletter.Subscriber) error {
	old, err := s.GetSubscriber(ctx, sub.ID)
	if err != nil {
		return err
	}
	if old.Email != sub.Email {
		return fmt.Errorf("subscriber email cannot be changed")
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber: %w", err)
	}
	return s.client.Set(ctx, s.subscriberKey(sub.ID), data, 0).Err()
}

// DeleteSubscriber removes a subscriber and its indexes
func (s *RedisStore) DeleteSubscriber(ctx context.Context, id string) error {
	sub, err := s.GetSubscriber(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.subscriberKey(id), s.emailKey(sub.Email))
		pipe.ZRem(ctx, s.subscribersKey(), id)
		return nil
	})
	return err
}

// ListSubscribers returns subscribers in subscription order
func (s *RedisStore) ListSubscribers(ctx context.Context, filter newsletter.SubscriberFilter) ([]*newsletter.Subscriber, error) {
	ids, err := s.client.ZRange(ctx, s.subscribersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	var list []*newsletter.Subscriber
	for _, id := range ids {
		sub, err := s.GetSubscriber(ctx, id)
		if errors.Is(err, newsletter.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if matchSubscriber(sub, filter) {
			list = append(list, sub)
		}
	}

	return page(list, filter.Offset, filter.Limit), nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
