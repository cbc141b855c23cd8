package newsletter

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a newsletter
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
)

// Audience selects which subscribers a newsletter targets
type Audience string

const (
	AudienceAll  Audience = "all"
	AudienceFree Audience = "free"
	AudiencePaid Audience = "paid"
)

// Valid reports whether a is a known audience
func (a Audience) Valid() bool {
	switch a {
	case AudienceAll, AudienceFree, AudiencePaid:
		return true
	}
	return false
}

// Matches reports whether a subscriber with the given tag belongs to the audience
func (a Audience) Matches(tag Audience) bool {
	if a == AudienceAll || a == "" {
		return true
	}
	return a == tag
}

// Counters holds the per-event aggregate counters of a newsletter.
// Values only ever increase.
type Counters struct {
	Sent         int64 `json:"sent"`
	Delivered    int64 `json:"delivered"`
	Opened       int64 `json:"opened"`
	Clicked      int64 `json:"clicked"`
	Bounced      int64 `json:"bounced"`
	Unsubscribed int64 `json:"unsubscribed"`
}

// Get returns the counter for an event type
func (c Counters) Get(t EventType) int64 {
	switch t {
	case EventSent:
		return c.Sent
	case EventDelivered:
		return c.Delivered
	case EventOpened:
		return c.Opened
	case EventClicked:
		return c.Clicked
	case EventBounced:
		return c.Bounced
	case EventUnsubscribed:
		return c.Unsubscribed
	}
	return 0
}

// Add increments the counter for an event type by n
func (c *Counters) Add(t EventType, n int64) {
	switch t {
	case EventSent:
		c.Sent += n
	case EventDelivered:
		c.Delivered += n
	case EventOpened:
		c.Opened += n
	case EventClicked:
		c.Clicked += n
	case EventBounced:
		c.Bounced += n
	case EventUnsubscribed:
		c.Unsubscribed += n
	}
}

// Newsletter is an authored newsletter and its delivery state
type Newsletter struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content,omitempty"` // markdown source
	HTMLContent    string     `json:"html_content"`      // template with {{name}} / {{email}}
	Excerpt        string     `json:"excerpt,omitempty"`
	TargetAudience Audience   `json:"target_audience"`
	Tags           []string   `json:"tags,omitempty"`
	Status         Status     `json:"status"`
	ScheduledFor   *time.Time `json:"scheduled_for,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	SentToCount    int        `json:"sent_to_count"`
	SentToEmails   []string   `json:"sent_to_emails,omitempty"`
	Counters       Counters   `json:"analytics"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsSent reports whether the newsletter reached its terminal state
func (n *Newsletter) IsSent() bool {
	return n.Status == StatusSent
}

// IsDue reports whether a scheduled newsletter should be sent at now
func (n *Newsletter) IsDue(now time.Time) bool {
	return n.Status == StatusScheduled && n.ScheduledFor != nil && !n.ScheduledFor.After(now)
}

// ListFilter represents filter options for listing newsletters
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Subscriber is a person who receives newsletters
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Audience  Audience  `json:"audience"` // free or paid
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recipient returns the dispatch-time snapshot of the subscriber
func (s *Subscriber) Recipient() Recipient {
	return Recipient{
		ID:       s.ID,
		Email:    s.Email,
		Name:     s.Name,
		Audience: s.Audience,
	}
}

// SubscriberFilter represents filter options for listing subscribers
type SubscriberFilter struct {
	Audience   Audience
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Recipient is an immutable snapshot of a subscriber taken at dispatch time
type Recipient struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name,omitempty"`
	Audience Audience `json:"audience,omitempty"`
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
