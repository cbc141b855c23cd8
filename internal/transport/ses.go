package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/foxzi/letterpress/internal/config"
)

// sesAPI is the subset of the SES v2 client used for sending
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESDeliverer sends through the Amazon SES v2 API
type SESDeliverer struct {
	client           sesAPI
	configurationSet string
}

// NewSESDeliverer creates an SES deliverer. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
func NewSESDeliverer(ctx context.Context, cfg config.SESConfig) (*SESDeliverer, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("ses region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SESDeliverer{
		client:           client,
		configurationSet: cfg.ConfigurationSet,
	}, nil
}

// Name implements Deliverer
func (d *SESDeliverer) Name() string {
	return "ses"
}

// Deliver implements Deliverer
func (d *SESDeliverer) Deliver(ctx context.Context, msg *Message) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if d.configurationSet != "" {
		input.ConfigurationSetName = aws.String(d.configurationSet)
	}

	out, err := d.client.SendEmail(ctx, input)
	if err != nil {
		return "", &SendError{
			Temporary: isTemporarySESError(err),
			Message:   fmt.Sprintf("ses: %v", err),
		}
	}

	return aws.ToString(out.MessageId), nil
}

// isTemporarySESError treats rejected input as permanent and everything else
// (throttling, quota, network) as temporary.
func isTemporarySESError(err error) bool {
	var (
		rejected    *types.MessageRejected
		badInput    *types.BadRequestException
		notVerified *types.MailFromDomainNotVerifiedException
	)
	if errors.As(err, &rejected) || errors.As(err, &badInput) || errors.As(err, &notVerified) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return apiErr.ErrorCode() == "TooManyRequestsException" || apiErr.ErrorCode() == "LimitExceededException"
	}
	return true
}
