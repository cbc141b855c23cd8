package newsletter

import "time"

// EventType is the kind of analytics event recorded for a recipient
type EventType string

const (
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventUnsubscribed EventType = "unsubscribed"
)

// EventTypes lists every accepted event type in display order
var EventTypes = []EventType{
	EventSent,
	EventDelivered,
	EventOpened,
	EventClicked,
	EventBounced,
	EventUnsubscribed,
}

// Valid reports whether t is one of the accepted event types
func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// EventData carries request details captured with an event
type EventData struct {
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	ClickedURL string    `json:"clicked_url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event is a single append-only analytics row
type Event struct {
	ID           string    `json:"id"`
	RecipientID  string    `json:"recipient_id"`
	NewsletterID string    `json:"newsletter_id"`
	Type         EventType `json:"event_type"`
	Data         EventData `json:"event_data"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventFilter selects events for analytics queries.
// Zero values mean "any".
type EventFilter struct {
	NewsletterID string
	RecipientID  string
	Types        []EventType
	Since        time.Time
}

// Match reports whether ev satisfies the filter
func (f EventFilter) Match(ev *Event) bool {
	if f.NewsletterID != "" && ev.NewsletterID != f.NewsletterID {
		return false
	}
	if f.RecipientID != "" && ev.RecipientID != f.RecipientID {
		return false
	}
	if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
		return false
	}
	if len(f.Types) > 0 {
		for _, t := range f.Types {
			if ev.Type == t {
				return true
			}
		}
		return false
	}
	return true
}

// SendFailure describes one recipient that could not be sent to
type SendFailure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// DispatchReport summarizes a single dispatch invocation
type DispatchReport struct {
	NewsletterID string        `json:"newsletter_id"`
	Sent         int           `json:"sent"`
	Failed       int           `json:"failed"`
	Batches      int           `json:"batches"`
	Errors       []SendFailure `json:"errors"`
}
