package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/foxzi/letterpress/internal/newsletter"
)

func event(t newsletter.EventType, at time.Time) *newsletter.Event {
	return &newsletter.Event{Type: t, CreatedAt: at}
}

func TestTimeline(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 2, 0, 15, 0, 0, time.UTC)

	got := Timeline([]*newsletter.Event{
		event(newsletter.EventOpened, day2),
		event(newsletter.EventOpened, day1),
		event(newsletter.EventClicked, day1),
		event(newsletter.EventBounced, day2),
		event(newsletter.EventSent, day2),
	})

	if len(got) != 2 {
		t.Fatalf("Timeline() returned %d days, want 2", len(got))
	}
	if got[0].Date != "2025-03-01" || got[0].Opened != 1 || got[0].Clicked != 1 {
		t.Errorf("day1 = %+v", got[0])
	}
	if got[1].Date != "2025-03-02" || got[1].Opened != 1 || got[1].Bounced != 1 {
		t.Errorf("day2 = %+v", got[1])
	}
}

func TestEngagementScore(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		events []newsletter.EventType
		want   float64
	}{
		{"no events", nil, 0},
		{"only opens", []newsletter.EventType{newsletter.EventOpened, newsletter.EventOpened}, 10},
		{"open and click", []newsletter.EventType{newsletter.EventOpened, newsletter.EventClicked}, 20},
		{"bounces clamp at zero", []newsletter.EventType{newsletter.EventBounced, newsletter.EventSent}, 0},
		{"sent counts against", []newsletter.EventType{newsletter.EventSent, newsletter.EventOpened}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []*newsletter.Event
			for _, et := range tt.events {
				events = append(events, event(et, now))
			}
			if got := EngagementScore(events); got != tt.want {
				t.Errorf("EngagementScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngagementScoreUpperBound(t *testing.T) {
	var events []*newsletter.Event
	for i := 0; i < 10; i++ {
		events = append(events, event(newsletter.EventClicked, time.Now()))
	}
	if got := EngagementScore(events); got != 30 {
		t.Errorf("EngagementScore() = %v, want 30", got)
	}
	if got := EngagementScore(events); got > 100 {
		t.Errorf("EngagementScore() = %v exceeds 100", got)
	}
}

func TestEngagement(t *testing.T) {
	r, s := newTestRecorder(t)
	ctx := context.Background()
	createNewsletter(t, s, "nl-1")

	old := testNow.AddDate(0, 0, -40)
	r.now = func() time.Time { return old }
	r.RecordEvent(ctx, "r-1", "nl-1", newsletter.EventOpened, nil)

	r.now = func() time.Time { return testNow.Add(-time.Hour) }
	r.RecordEvent(ctx, "r-1", "nl-1", newsletter.EventOpened, nil)
	r.now = func() time.Time { return testNow }
	r.RecordEvent(ctx, "r-1", "nl-1", newsletter.EventClicked, nil)
	r.RecordEvent(ctx, "r-2", "nl-1", newsletter.EventOpened, nil)

	e, err := r.Engagement(ctx, "r-1", 30)
	if err != nil {
		t.Fatalf("Engagement() error = %v", err)
	}
	if len(e.Events) != 2 {
		t.Fatalf("events = %d, want 2 within window", len(e.Events))
	}
	if e.Events[0].Type != newsletter.EventClicked {
		t.Errorf("events should be newest first, got %s", e.Events[0].Type)
	}
	if e.Score != 20 {
		t.Errorf("Score = %v, want 20", e.Score)
	}
}

func TestDashboard(t *testing.T) {
	r, s := newTestRecorder(t)
	ctx := context.Background()

	for i, aud := range []newsletter.Audience{newsletter.AudienceFree, newsletter.AudiencePaid, newsletter.AudiencePaid} {
		err := s.CreateSubscriber(ctx, &newsletter.Subscriber{
			ID:        fmt.Sprintf("s-%d", i),
			Email:     fmt.Sprintf("u%d@example.com", i),
			Audience:  aud,
			Active:    i != 2,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("nl-%d", i)
		createNewsletter(t, s, id)
		if i == 6 {
			continue // stays draft
		}
		for j := 0; j < i; j++ {
			r.RecordEvent(ctx, "r", id, newsletter.EventOpened, nil)
		}
		if _, err := s.MarkSent(ctx, id, testNow, []string{"u0@example.com", "u1@example.com"}); err != nil {
			t.Fatal(err)
		}
	}

	d, err := r.Dashboard(ctx, 30)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	ov := d.Overview
	if ov.TotalSubscribers != 3 || ov.ActiveSubscribers != 2 || ov.PaidSubscribers != 1 {
		t.Errorf("overview = %+v", ov)
	}
	if ov.TotalNewsletters != 7 || ov.SentNewsletters != 6 {
		t.Errorf("newsletter totals = %+v", ov)
	}
	if len(d.TopNewsletters) != 5 {
		t.Fatalf("top newsletters = %d, want 5", len(d.TopNewsletters))
	}
	if d.TopNewsletters[0].ID != "nl-5" || d.TopNewsletters[0].Counters.Opened != 5 {
		t.Errorf("top newsletter = %+v", d.TopNewsletters[0])
	}
	if d.TopNewsletters[0].Rates.OpenRate != 2.5 {
		t.Errorf("top open rate = %v", d.TopNewsletters[0].Rates.OpenRate)
	}
	if d.EmailStats[newsletter.EventOpened] != 15 || d.EmailStats[newsletter.EventBounced] != 0 {
		t.Errorf("email stats = %v", d.EmailStats)
	}
	if len(d.RecentSignups) != 2 || d.RecentSignups[0].ID != "s-1" {
		t.Errorf("recent signups = %d", len(d.RecentSignups))
	}
}
