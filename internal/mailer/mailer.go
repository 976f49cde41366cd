// Package mailer delivers the transactional emails the server sends.
// Production uses Amazon SES; development logs messages instead.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Sender delivers a plain-text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

var (
	_ Sender = (*SESSender)(nil)
	_ Sender = (*LogSender)(nil)
)

// PasswordReset returns the subject and body of the password reset email.
func PasswordReset(code string) (subject, body string) {
	return "Password Reset OTP",
		fmt.Sprintf("Your OTP for password reset is: %s\nThis OTP will expire in 10 minutes.", code)
}

// =========================================================================
// SES
// =========================================================================

// sesAPI is the slice of the SES client SESSender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends through Amazon SES from a verified sender address.
type SESSender struct {
	client sesAPI
	from   string
}

// NewSESSender loads AWS credentials the standard way (environment, shared
// config, instance role) for region and sends as from.
func NewSESSender(ctx context.Context, region, from string) (*SESSender, error) {
	if from == "" {
		return nil, errors.New("mailer: SES sender address is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("mailer: loading AWS config: %w", err)
	}
	return &SESSender{client: ses.NewFromConfig(cfg), from: from}, nil
}

func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.from),
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("mailer: SES send: %w", err)
	}
	return nil
}

// =========================================================================
// LOG
// =========================================================================

// LogSender writes emails to the log instead of sending them. It is the
// development transport: the body, which may hold a reset code, is only
// logged at debug level.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email not sent (log mailer)",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	s.logger.DebugContext(ctx, "email body", slog.String("to", to), slog.String("body", body))
	return nil
}
