package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/logger"
)

type SESConfig struct {
	From            string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Timeout         time.Duration
	// Endpoint overrides the regional SES endpoint. Used by tests and
	// SES-compatible relays.
	Endpoint string
}

// SES sends through Amazon SES v2.
type SES struct {
	from    string
	timeout time.Duration
	client  *sesv2.Client
}

// NewSES builds a client from static credentials when both keys are set,
// otherwise from the default AWS credential chain.
func NewSES(ctx context.Context, cfg SESConfig) (*SES, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("ses: from address is empty")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &SES{from: cfg.From, timeout: cfg.Timeout, client: client}, nil
}

func (s *SES) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("kind"), Value: aws.String("listing_alert")},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", redact(to), err)
	}

	logger.Debug("[notify] ses sent", zap.String("to", redact(to)), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
