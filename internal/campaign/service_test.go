package campaign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/letterpress/internal/analytics"
	"github.com/foxzi/letterpress/internal/dispatch"
	"github.com/foxzi/letterpress/internal/newsletter"
	"github.com/foxzi/letterpress/internal/personalize"
	"github.com/foxzi/letterpress/internal/store"
	"github.com/foxzi/letterpress/internal/tracking"
	"github.com/foxzi/letterpress/internal/transport"
)

type recordingSender struct {
	mu       sync.Mutex
	subjects map[string]string
	bodies   map[string]string
	fail     bool
}

func (r *recordingSender) Send(ctx context.Context, to, subject, html string) transport.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return transport.Result{Error: "relay down"}
	}
	r.subjects[to] = subject
	r.bodies[to] = html
	return transport.Result{Success: true, MessageID: "<id>"}
}

func newTestService(t *testing.T) (*Service, *recordingSender, store.Store) {
	t.Helper()

	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &recordingSender{subjects: map[string]string{}, bodies: map[string]string{}}
	p := personalize.New("https://news.example.com")
	d := dispatch.New(
		sender,
		analytics.NewRecorder(s, logger),
		s,
		p,
		tracking.NewInjector("https://news.example.com"),
		dispatch.Options{BatchSize: 2, BatchDelay: time.Millisecond},
		logger,
	)
	return NewService(s, d, sender, p, logger), sender, s
}

func TestCreateNewsletter(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.CreateNewsletter(ctx, NewsletterInput{
		Title:   "  Weekly SQL  ",
		Content: "# Joins\n\nHi {{name}}, today we cover joins.",
	})
	if err != nil {
		t.Fatalf("CreateNewsletter() error = %v", err)
	}
	if n.Title != "Weekly SQL" || n.Status != newsletter.StatusDraft {
		t.Errorf("newsletter = %+v", n)
	}
	if n.TargetAudience != newsletter.AudienceAll {
		t.Errorf("TargetAudience = %s, want all", n.TargetAudience)
	}
	if !strings.Contains(n.HTMLContent, "<h1>Joins</h1>") || !strings.Contains(n.HTMLContent, "{{name}}") {
		t.Errorf("HTMLContent = %q", n.HTMLContent)
	}
	if n.Excerpt == "" || strings.HasSuffix(n.Excerpt, "...") {
		t.Errorf("Excerpt = %q", n.Excerpt)
	}

	stored, err := svc.GetNewsletter(ctx, n.ID)
	if err != nil || stored.Title != n.Title {
		t.Errorf("GetNewsletter() = %+v, %v", stored, err)
	}
}

func TestCreateNewsletterScheduled(t *testing.T) {
	svc, _, _ := newTestService(t)
	at := time.Now().Add(time.Hour)

	n, err := svc.CreateNewsletter(context.Background(), NewsletterInput{
		Title:          "Later",
		HTMLContent:    "<p>Soon</p>",
		TargetAudience: newsletter.AudiencePaid,
		ScheduledFor:   &at,
	})
	if err != nil {
		t.Fatal(err)
	}
	if n.Status != newsletter.StatusScheduled || n.ScheduledFor == nil {
		t.Errorf("newsletter = %+v", n)
	}
	if n.Excerpt != "Soon" {
		t.Errorf("Excerpt = %q, want text of html", n.Excerpt)
	}
}

func TestCreateNewsletterInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	tests := []struct {
		name string
		in   NewsletterInput
	}{
		{"no title", NewsletterInput{Content: "x"}},
		{"no content", NewsletterInput{Title: "x"}},
		{"bad audience", NewsletterInput{Title: "x", Content: "x", TargetAudience: "vip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateNewsletter(context.Background(), tt.in)
			if !errors.Is(err, newsletter.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, "  Reader@Example.COM ", "Ann", "")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub.Email != "reader@example.com" || sub.Audience != newsletter.AudienceFree || !sub.Active {
		t.Errorf("subscriber = %+v", sub)
	}

	if _, err := svc.Subscribe(ctx, "reader@example.com", "", ""); !errors.Is(err, newsletter.ErrSubscriberExists) {
		t.Errorf("duplicate Subscribe() error = %v", err)
	}

	if _, err := svc.Unsubscribe(ctx, "READER@example.com"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	again, err := svc.Subscribe(ctx, "reader@example.com", "", newsletter.AudiencePaid)
	if err != nil {
		t.Fatalf("re-Subscribe() error = %v", err)
	}
	if again.ID != sub.ID || !again.Active || again.Audience != newsletter.AudiencePaid || again.Name != "Ann" {
		t.Errorf("reactivated subscriber = %+v", again)
	}

	if _, err := svc.Subscribe(ctx, "not-an-email", "", ""); !errors.Is(err, newsletter.ErrInvalidInput) {
		t.Errorf("invalid email error = %v", err)
	}
	if _, err := svc.Unsubscribe(ctx, "ghost@example.com"); !errors.Is(err, newsletter.ErrNotFound) {
		t.Errorf("Unsubscribe(unknown) error = %v", err)
	}
}

func TestResolveRecipients(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	svc.Subscribe(ctx, "free1@example.com", "F1", newsletter.AudienceFree)
	svc.Subscribe(ctx, "paid1@example.com", "P1", newsletter.AudiencePaid)
	svc.Subscribe(ctx, "free2@example.com", "F2", newsletter.AudienceFree)
	svc.Subscribe(ctx, "gone@example.com", "G", newsletter.AudiencePaid)
	svc.Unsubscribe(ctx, "gone@example.com")

	tests := []struct {
		audience newsletter.Audience
		want     []string
	}{
		{newsletter.AudienceAll, []string{"free1@example.com", "paid1@example.com", "free2@example.com"}},
		{newsletter.AudienceFree, []string{"free1@example.com", "free2@example.com"}},
		{newsletter.AudiencePaid, []string{"paid1@example.com"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.audience), func(t *testing.T) {
			rs, err := svc.ResolveRecipients(ctx, &newsletter.Newsletter{TargetAudience: tt.audience})
			if err != nil {
				t.Fatal(err)
			}
			if len(rs) != len(tt.want) {
				t.Fatalf("got %d recipients, want %d", len(rs), len(tt.want))
			}
			for i, r := range rs {
				if r.Email != tt.want[i] {
					t.Errorf("recipient %d = %s, want %s", i, r.Email, tt.want[i])
				}
			}
		})
	}
}

func TestSend(t *testing.T) {
	svc, sender, s := newTestService(t)
	ctx := context.Background()

	svc.Subscribe(ctx, "a@example.com", "Ann", newsletter.AudienceFree)
	svc.Subscribe(ctx, "b@example.com", "", newsletter.AudiencePaid)
	svc.Subscribe(ctx, "c@example.com", "Cy", newsletter.AudienceFree)

	n, _ := svc.CreateNewsletter(ctx, NewsletterInput{
		Title:          "Free tips",
		HTMLContent:    "<p>Hi {{name}}</p>",
		TargetAudience: newsletter.AudienceFree,
	})

	report, err := svc.Send(ctx, n.ID)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if report.Sent != 2 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if _, ok := sender.bodies["b@example.com"]; ok {
		t.Error("paid subscriber received a free newsletter")
	}
	if !strings.Contains(sender.bodies["a@example.com"], "Hi Ann") {
		t.Errorf("body = %q", sender.bodies["a@example.com"])
	}

	stored, _ := s.GetNewsletter(ctx, n.ID)
	if stored.Status != newsletter.StatusSent || stored.SentToCount != 2 {
		t.Errorf("stored = %+v", stored)
	}

	if _, err := svc.Send(ctx, n.ID); !errors.Is(err, newsletter.ErrAlreadySent) {
		t.Errorf("second Send() error = %v", err)
	}
	if _, err := svc.Send(ctx, "ghost"); !errors.Is(err, newsletter.ErrNotFound) {
		t.Errorf("Send(ghost) error = %v", err)
	}
}

func TestSendNoRecipients(t *testing.T) {
	svc, _, s := newTestService(t)
	ctx := context.Background()
	svc.Subscribe(ctx, "a@example.com", "", newsletter.AudienceFree)

	n, _ := svc.CreateNewsletter(ctx, NewsletterInput{
		Title: "Paid only", HTMLContent: "<p>x</p>", TargetAudience: newsletter.AudiencePaid,
	})

	if _, err := svc.Send(ctx, n.ID); !errors.Is(err, newsletter.ErrNoRecipients) {
		t.Fatalf("Send() error = %v, want ErrNoRecipients", err)
	}
	stored, _ := s.GetNewsletter(ctx, n.ID)
	if stored.Status != newsletter.StatusDraft {
		t.Errorf("status = %s, want draft", stored.Status)
	}
}

func TestSendDue(t *testing.T) {
	svc, sender, _ := newTestService(t)
	ctx := context.Background()
	svc.Subscribe(ctx, "a@example.com", "", "")

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	due, _ := svc.CreateNewsletter(ctx, NewsletterInput{Title: "Due", HTMLContent: "<p>d</p>", ScheduledFor: &past})
	svc.CreateNewsletter(ctx, NewsletterInput{Title: "Later", HTMLContent: "<p>l</p>", ScheduledFor: &future})
	svc.CreateNewsletter(ctx, NewsletterInput{Title: "Draft", HTMLContent: "<p>x</p>"})

	results, err := svc.SendDue(ctx)
	if err != nil {
		t.Fatalf("SendDue() error = %v", err)
	}
	if len(results) != 1 || results[0].NewsletterID != due.ID || results[0].Err != nil {
		t.Fatalf("results = %+v", results)
	}
	if sender.subjects["a@example.com"] != "Due" {
		t.Errorf("subject = %q", sender.subjects["a@example.com"])
	}

	again, _ := svc.SendDue(ctx)
	if len(again) != 0 {
		t.Errorf("sent newsletters should not be due again: %+v", again)
	}
}

func TestSendTest(t *testing.T) {
	svc, sender, s := newTestService(t)
	ctx := context.Background()

	n, _ := svc.CreateNewsletter(ctx, NewsletterInput{Title: "Preview", HTMLContent: "<p>Hi {{name}}</p>"})
	if err := svc.SendTest(ctx, n.ID, "Editor@example.com"); err != nil {
		t.Fatalf("SendTest() error = %v", err)
	}

	if sender.subjects["editor@example.com"] != TestSubjectPrefix+"Preview" {
		t.Errorf("subject = %q", sender.subjects["editor@example.com"])
	}
	body := sender.bodies["editor@example.com"]
	if !strings.Contains(body, "Hi there") || tracking.HasPixel(body) {
		t.Errorf("body = %q", body)
	}

	stored, _ := s.GetNewsletter(ctx, n.ID)
	if stored.Status != newsletter.StatusDraft || stored.Counters.Sent != 0 {
		t.Errorf("test send changed newsletter state: %+v", stored)
	}

	sender.fail = true
	if err := svc.SendTest(ctx, n.ID, "editor@example.com"); err == nil {
		t.Error("expected error from failing transport")
	}
}

func TestRemoveSubscriber(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Subscribe(ctx, "a@example.com", "", "")
	svc.Subscribe(ctx, "b@example.com", "", "")

	if err := svc.RemoveSubscriber(ctx, a.ID); err != nil {
		t.Fatalf("RemoveSubscriber(id) error = %v", err)
	}
	if err := svc.RemoveSubscriber(ctx, "B@example.com"); err != nil {
		t.Fatalf("RemoveSubscriber(email) error = %v", err)
	}
	list, _ := svc.ListSubscribers(ctx, newsletter.SubscriberFilter{})
	if len(list) != 0 {
		t.Errorf("subscribers left: %d", len(list))
	}
}
