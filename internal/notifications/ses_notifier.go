package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	FromAddress     string
	FromName        string
}

// EmailSender is the slice of the SES client the notifier calls.
type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESNotifier struct {
	client EmailSender
	source string
	log    *slog.Logger
}

func NewSESNotifier(cfg SESConfig, log *slog.Logger) (*SESNotifier, error) {
	if cfg.FromAddress == "" {
		return nil, errors.New("ses: from address is required")
	}

	awsCfg := aws.Config{Region: cfg.Region}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		)
	}

	return newSESNotifier(ses.NewFromConfig(awsCfg), cfg, log), nil
}

func newSESNotifier(client EmailSender, cfg SESConfig, log *slog.Logger) *SESNotifier {
	if log == nil {
		log = slog.Default()
	}
	source := cfg.FromAddress
	if cfg.FromName != "" {
		source = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}
	return &SESNotifier{client: client, source: source, log: log}
}

func (n *SESNotifier) SendRegistrationConfirmation(ctx context.Context, in SendRegistrationConfirmationInput) error {
	return n.send(ctx, ConfirmationMessage(in))
}

func (n *SESNotifier) SendCancellationNotice(ctx context.Context, in SendCancellationNoticeInput) error {
	return n.send(ctx, CancellationMessage(in))
}

func (n *SESNotifier) send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("ses: recipient is required")
	}

	out, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.source),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	n.log.InfoContext(ctx, "notification.sent", "provider", "ses", "message_id", aws.ToString(out.MessageId))
	return nil
}
