package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/resend/resend-go/v3"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestSESDeliverer(t *testing.T) {
	fake := &fakeSES{}
	d := &SESDeliverer{client: fake, configurationSet: "newsletters"}

	id, err := d.Deliver(context.Background(), &Message{
		From:    "News <news@example.com>",
		ReplyTo: "editor@example.com",
		To:      "reader@example.org",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
	})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if id != "ses-123" {
		t.Errorf("message ID = %q", id)
	}

	in := fake.input
	if aws.ToString(in.FromEmailAddress) != "News <news@example.com>" {
		t.Errorf("from = %q", aws.ToString(in.FromEmailAddress))
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "reader@example.org" {
		t.Errorf("to = %v", in.Destination.ToAddresses)
	}
	if aws.ToString(in.Content.Simple.Body.Html.Data) != "<p>Hi</p>" {
		t.Errorf("html body = %q", aws.ToString(in.Content.Simple.Body.Html.Data))
	}
	if aws.ToString(in.ConfigurationSetName) != "newsletters" {
		t.Errorf("configuration set = %q", aws.ToString(in.ConfigurationSetName))
	}
	if len(in.ReplyToAddresses) != 1 {
		t.Errorf("reply-to = %v", in.ReplyToAddresses)
	}
}

func TestSESDelivererErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTemporary bool
	}{
		{"rejected", &types.MessageRejected{Message: aws.String("blocked")}, false},
		{"bad request", &types.BadRequestException{Message: aws.String("bad")}, false},
		{"throttled", &types.TooManyRequestsException{Message: aws.String("slow down")}, true},
		{"network", errors.New("dial tcp: timeout"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &SESDeliverer{client: &fakeSES{err: tt.err}}
			_, err := d.Deliver(context.Background(), &Message{From: "a@example.com", To: "b@example.com"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsTemporaryError(err); got != tt.wantTemporary {
				t.Errorf("temporary = %v, want %v", got, tt.wantTemporary)
			}
		})
	}
}

type fakeResend struct {
	req *resend.SendEmailRequest
	err error
}

func (f *fakeResend) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.req = params
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "re_42"}, nil
}

func TestResendDeliverer(t *testing.T) {
	fake := &fakeResend{}
	d := &ResendDeliverer{emails: fake}

	id, err := d.Deliver(context.Background(), &Message{
		From:    "news@example.com",
		To:      "reader@example.org",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
	})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if id != "re_42" {
		t.Errorf("message ID = %q", id)
	}
	if len(fake.req.To) != 1 || fake.req.To[0] != "reader@example.org" {
		t.Errorf("to = %v", fake.req.To)
	}
	if fake.req.Html != "<p>Hi</p>" || fake.req.Subject != "Hello" {
		t.Errorf("unexpected request %+v", fake.req)
	}

	fake.err = errors.New("api down")
	if _, err := d.Deliver(context.Background(), &Message{To: "x@example.org"}); err == nil {
		t.Error("expected error from failing API")
	}
}

func TestNewResendDelivererWiresClient(t *testing.T) {
	d := NewResendDeliverer("re_test_key")
	if d.emails == nil {
		t.Fatal("emails service not set")
	}
	if d.Name() != "resend" {
		t.Errorf("Name() = %q", d.Name())
	}
}
