package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/foxzi/letterpress/internal/newsletter"
)

const (
	topNewslettersLimit = 5
	recentSignupsLimit  = 10
)

// engagementWeights score event types; unlisted types weigh zero
var engagementWeights = map[newsletter.EventType]float64{
	newsletter.EventOpened:  1,
	newsletter.EventClicked: 3,
	newsletter.EventBounced: -1,
}

// DayCount holds engagement counts for one UTC day
type DayCount struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Opened  int64  `json:"opened"`
	Clicked int64  `json:"clicked"`
	Bounced int64  `json:"bounced"`
}

// Timeline groups opened, clicked and bounced events by UTC day, oldest first
func Timeline(events []*newsletter.Event) []DayCount {
	byDate := make(map[string]*DayCount)
	for _, ev := range events {
		date := ev.CreatedAt.UTC().Format("2006-01-02")
		day, ok := byDate[date]
		if !ok {
			day = &DayCount{Date: date}
			byDate[date] = day
		}
		switch ev.Type {
		case newsletter.EventOpened:
			day.Opened++
		case newsletter.EventClicked:
			day.Clicked++
		case newsletter.EventBounced:
			day.Bounced++
		}
	}

	out := make([]DayCount, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// EngagementScore averages the event weights and scales to [0, 100]
func EngagementScore(events []*newsletter.Event) float64 {
	if len(events) == 0 {
		return 0
	}

	var total float64
	for _, ev := range events {
		total += engagementWeights[ev.Type]
	}

	score := total / float64(len(events)) * 10
	return max(0, min(100, score))
}

// Engagement describes one recipient's recent activity
type Engagement struct {
	RecipientID string              `json:"recipient_id"`
	Score       float64             `json:"engagement_score"`
	Events      []*newsletter.Event `json:"events"` // newest first
	Timeline    []DayCount          `json:"activity_timeline"`
}

// Engagement returns a recipient's events from the last days and their score
func (r *Recorder) Engagement(ctx context.Context, recipientID string, days int) (*Engagement, error) {
	events, err := r.store.ListEvents(ctx, newsletter.EventFilter{
		RecipientID: recipientID,
		Since:       r.since(days),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	newest := make([]*newsletter.Event, len(events))
	for i, ev := range events {
		newest[len(events)-1-i] = ev
	}

	return &Engagement{
		RecipientID: recipientID,
		Score:       EngagementScore(events),
		Events:      newest,
		Timeline:    Timeline(events),
	}, nil
}

// Overview holds platform totals
type Overview struct {
	TotalSubscribers  int     `json:"total_subscribers"`
	ActiveSubscribers int     `json:"active_subscribers"`
	PaidSubscribers   int     `json:"paid_subscribers"`
	TotalNewsletters  int     `json:"total_newsletters"`
	SentNewsletters   int     `json:"sent_newsletters"`
	ConversionRate    float64 `json:"conversion_rate"` // paid / total
}

// TopNewsletter is a sent newsletter ranked by opens
type TopNewsletter struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	SentAt   *time.Time          `json:"sent_at,omitempty"`
	SentTo   int                 `json:"sent_to"`
	Counters newsletter.Counters `json:"analytics"`
	Rates    Rates               `json:"rates"`
}

// Dashboard is the platform-wide analytics view
type Dashboard struct {
	Days           int                      `json:"days"`
	Overview       Overview                 `json:"overview"`
	EmailStats     Stats                    `json:"email_stats"`
	Trends         []DayCount               `json:"engagement_trends"`
	TopNewsletters []TopNewsletter          `json:"top_newsletters"`
	RecentSignups  []*newsletter.Subscriber `json:"recent_signups"`
}

// Dashboard aggregates subscriber totals, event counts over the last days
// and the best performing sent newsletters
func (r *Recorder) Dashboard(ctx context.Context, days int) (*Dashboard, error) {
	subs, err := r.store.ListSubscribers(ctx, newsletter.SubscriberFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	newsletters, err := r.store.ListNewsletters(ctx, newsletter.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load newsletters: %w", err)
	}

	events, err := r.store.ListEvents(ctx, newsletter.EventFilter{Since: r.since(days)})
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	d := &Dashboard{
		Days:       days,
		EmailStats: countEvents(events),
		Trends:     Timeline(events),
	}

	var recent []*newsletter.Subscriber
	for _, s := range subs {
		d.Overview.TotalSubscribers++
		if s.Active {
			d.Overview.ActiveSubscribers++
			recent = append(recent, s)
			if s.Audience == newsletter.AudiencePaid {
				d.Overview.PaidSubscribers++
			}
		}
	}
	if d.Overview.TotalSubscribers > 0 {
		d.Overview.ConversionRate = float64(d.Overview.PaidSubscribers) / float64(d.Overview.TotalSubscribers)
	}

	// subscribers are listed oldest first
	for i := len(recent) - 1; i >= 0 && len(d.RecentSignups) < recentSignupsLimit; i-- {
		d.RecentSignups = append(d.RecentSignups, recent[i])
	}

	var sent []*newsletter.Newsletter
	for _, n := range newsletters {
		d.Overview.TotalNewsletters++
		if n.IsSent() {
			d.Overview.SentNewsletters++
			sent = append(sent, n)
		}
	}

	sort.SliceStable(sent, func(i, j int) bool {
		return sent[i].Counters.Opened > sent[j].Counters.Opened
	})
	for _, n := range sent {
		if len(d.TopNewsletters) == topNewslettersLimit {
			break
		}
		stats := Stats{
			newsletter.EventOpened:  n.Counters.Opened,
			newsletter.EventClicked: n.Counters.Clicked,
		}
		d.TopNewsletters = append(d.TopNewsletters, TopNewsletter{
			ID:       n.ID,
			Title:    n.Title,
			SentAt:   n.SentAt,
			SentTo:   n.SentToCount,
			Counters: n.Counters,
			Rates:    ComputeRates(stats, n.SentToCount),
		})
	}

	return d, nil
}

func (r *Recorder) since(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return r.now().AddDate(0, 0, -days)
}
