// Package campaign implements newsletter authoring, subscriptions and sending.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/letterpress/internal/content"
	"github.com/foxzi/letterpress/internal/dispatch"
	"github.com/foxzi/letterpress/internal/newsletter"
	"github.com/foxzi/letterpress/internal/personalize"
	"github.com/foxzi/letterpress/internal/store"
)

// TestSubjectPrefix marks test sends
const TestSubjectPrefix = "[TEST] "

// Dispatcher sends a newsletter to resolved recipients
type Dispatcher interface {
	Dispatch(ctx context.Context, n *newsletter.Newsletter, recipients []newsletter.Recipient) (*newsletter.DispatchReport, error)
}

// Service coordinates storage, rendering and dispatch
type Service struct {
	store        store.Store
	dispatcher   Dispatcher
	sender       dispatch.Sender
	personalizer *personalize.Personalizer
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a new campaign service
func NewService(
	s store.Store,
	dispatcher Dispatcher,
	sender dispatch.Sender,
	personalizer *personalize.Personalizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:        s,
		dispatcher:   dispatcher,
		sender:       sender,
		personalizer: personalizer,
		logger:       logger.With("component", "campaign"),
		now:          time.Now,
	}
}

// NewsletterInput is the authored part of a newsletter
type NewsletterInput struct {
	Title          string
	Content        string // markdown
	HTMLContent    string
	TargetAudience newsletter.Audience
	Tags           []string
	ScheduledFor   *time.Time
}

// CreateNewsletter validates input, renders content and stores a draft or
// scheduled newsletter
func (s *Service) CreateNewsletter(ctx context.Context, in NewsletterInput) (*newsletter.Newsletter, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", newsletter.ErrInvalidInput)
	}

	audience := in.TargetAudience
	if audience == "" {
		audience = newsletter.AudienceAll
	}
	if !audience.Valid() {
		return nil, fmt.Errorf("%w: invalid target audience %q", newsletter.ErrInvalidInput, audience)
	}

	html, err := content.Build(in.Content, in.HTMLContent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", newsletter.ErrInvalidInput, err)
	}

	excerptSource := in.Content
	if strings.TrimSpace(excerptSource) == "" {
		excerptSource = content.PlainText(html)
	}

	now := s.now().UTC()
	n := &newsletter.Newsletter{
		ID:             uuid.New().String(),
		Title:          title,
		Content:        in.Content,
		HTMLContent:    html,
		Excerpt:        content.Excerpt(excerptSource),
		TargetAudience: audience,
		Tags:           in.Tags,
		Status:         newsletter.StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.ScheduledFor != nil {
		at := in.ScheduledFor.UTC()
		n.ScheduledFor = &at
		n.Status = newsletter.StatusScheduled
	}

	if err := s.store.CreateNewsletter(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create newsletter: %w", err)
	}

	s.logger.Info("newsletter created", "newsletter_id", n.ID, "status", n.Status, "audience", n.TargetAudience)
	return n, nil
}

// GetNewsletter returns a newsletter by ID
func (s *Service) GetNewsletter(ctx context.Context, id string) (*newsletter.Newsletter, error) {
	return s.store.GetNewsletter(ctx, id)
}

// ListNewsletters returns newsletters newest first
func (s *Service) ListNewsletters(ctx context.Context, filter newsletter.ListFilter) ([]*newsletter.Newsletter, error) {
	return s.store.ListNewsletters(ctx, filter)
}

// ResolveRecipients returns the active subscribers targeted by n in subscription order
func (s *Service) ResolveRecipients(ctx context.Context, n *newsletter.Newsletter) ([]newsletter.Recipient, error) {
	subs, err := s.store.ListSubscribers(ctx, newsletter.SubscriberFilter{
		Audience:   n.TargetAudience,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	recipients := make([]newsletter.Recipient, 0, len(subs))
	for _, sub := range subs {
		recipients = append(recipients, sub.Recipient())
	}
	return recipients, nil
}

// Send dispatches a stored newsletter to its audience
func (s *Service) Send(ctx context.Context, id string) (*newsletter.DispatchReport, error) {
	n, err := s.store.GetNewsletter(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsSent() {
		return nil, newsletter.ErrAlreadySent
	}

	recipients, err := s.ResolveRecipients(ctx, n)
	if err != nil {
		return nil, err
	}

	return s.dispatcher.Dispatch(ctx, n, recipients)
}

// DueResult is the outcome of sending one scheduled newsletter
type DueResult struct {
	NewsletterID string
	Report       *newsletter.DispatchReport
	Err          error
}

// SendDue sends every scheduled newsletter whose time has come
func (s *Service) SendDue(ctx context.Context) ([]DueResult, error) {
	scheduled, err := s.store.ListNewsletters(ctx, newsletter.ListFilter{Status: newsletter.StatusScheduled})
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled newsletters: %w", err)
	}

	now := s.now()
	var results []DueResult
	for _, n := range scheduled {
		if !n.IsDue(now) {
			continue
		}
		report, err := s.Send(ctx, n.ID)
		results = append(results, DueResult{NewsletterID: n.ID, Report: report, Err: err})
	}
	return results, nil
}

// SendTest sends a personalized copy of a newsletter to one address without
// tracking or analytics
func (s *Service) SendTest(ctx context.Context, id, email string) error {
	n, err := s.store.GetNewsletter(ctx, id)
	if err != nil {
		return err
	}

	r := newsletter.Recipient{Email: newsletter.NormalizeEmail(email)}
	if sub, err := s.store.GetSubscriberByEmail(ctx, r.Email); err == nil {
		r = sub.Recipient()
	}

	html := s.personalizer.Personalize(n.HTMLContent, r)
	res := s.sender.Send(ctx, r.Email, TestSubjectPrefix+n.Title, html)
	if !res.Success {
		return fmt.Errorf("test send failed: %s", res.Error)
	}

	s.logger.Info("test newsletter sent", "newsletter_id", id, "email", r.Email, "message_id", res.MessageID)
	return nil
}

// Subscribe adds a subscriber or reactivates an inactive one
func (s *Service) Subscribe(ctx context.Context, email, name string, audience newsletter.Audience) (*newsletter.Subscriber, error) {
	email = newsletter.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", newsletter.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", newsletter.ErrInvalidInput, email)
	}
	if audience == "" {
		audience = newsletter.AudienceFree
	}
	if audience != newsletter.AudienceFree && audience != newsletter.AudiencePaid {
		return nil, fmt.Errorf("%w: invalid subscription type %q", newsletter.ErrInvalidInput, audience)
	}

	now := s.now().UTC()
	existing, err := s.store.GetSubscriberByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Active {
			return nil, newsletter.ErrSubscriberExists
		}
		existing.Active = true
		existing.Audience = audience
		if name = strings.TrimSpace(name); name != "" {
			existing.Name = name
		}
		existing.UpdatedAt = now
		if err := s.store.UpdateSubscriber(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to reactivate subscriber: %w", err)
		}
		s.logger.Info("subscriber reactivated", "subscriber_id", existing.ID)
		return existing, nil
	case !errors.Is(err, newsletter.ErrNotFound):
		return nil, err
	}

	sub := &newsletter.Subscriber{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Audience:  audience,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSubscriber(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscriber added", "subscriber_id", sub.ID, "audience", sub.Audience)
	return sub, nil
}

// Unsubscribe marks a subscriber inactive
func (s *Service) Unsubscribe(ctx context.Context, email string) (*newsletter.Subscriber, error) {
	sub, err := s.store.GetSubscriberByEmail(ctx, newsletter.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return sub, nil
	}

	sub.Active = false
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to unsubscribe: %w", err)
	}

	s.logger.Info("subscriber unsubscribed", "subscriber_id", sub.ID)
	return sub, nil
}

// GetSubscriber returns a subscriber by ID
func (s *Service) GetSubscriber(ctx context.Context, id string) (*newsletter.Subscriber, error) {
	return s.store.GetSubscriber(ctx, id)
}

// ListSubscribers returns subscribers in subscription order
func (s *Service) ListSubscribers(ctx context.Context, filter newsletter.SubscriberFilter) ([]*newsletter.Subscriber, error) {
	return s.store.ListSubscribers(ctx, filter)
}

// RemoveSubscriber deletes a subscriber by ID or email
func (s *Service) RemoveSubscriber(ctx context.Context, idOrEmail string) error {
	id := idOrEmail
	if strings.Contains(idOrEmail, "@") {
		sub, err := s.store.GetSubscriberByEmail(ctx, newsletter.NormalizeEmail(idOrEmail))
		if err != nil {
			return err
		}
		id = sub.ID
	}
	return s.store.DeleteSubscriber(ctx, id)
}
