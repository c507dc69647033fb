package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/pkg/logger"
)

// NoopLockoutNotifier drops notifications. Used when email is disabled.
type NoopLockoutNotifier struct{}

func (NoopLockoutNotifier) NotifyLockout(ctx context.Context, lockout *models.Lockout, failures int) error {
	return nil
}

// sesSender is the part of the SES client the notifier uses
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier emails the administrator through AWS SES
type SESLockoutNotifier struct {
	client       sesSender
	fromAddress  string
	adminAddress string
	logger       *slog.Logger
}

// NewSESLockoutNotifier creates a notifier using the default AWS credential chain
func NewSESLockoutNotifier(ctx context.Context, region, fromAddress, adminAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESLockoutNotifier(ses.NewFromConfig(cfg), fromAddress, adminAddress, logger), nil
}

func newSESLockoutNotifier(client sesSender, fromAddress, adminAddress string, logger *slog.Logger) *SESLockoutNotifier {
	return &SESLockoutNotifier{
		client:       client,
		fromAddress:  fromAddress,
		adminAddress: adminAddress,
		logger:       logger,
	}
}

// NotifyLockout sends a plain text summary of the lockout
func (n *SESLockoutNotifier) NotifyLockout(ctx context.Context, lockout *models.Lockout, failures int) error {
	subject := "Login lockout placed"
	if lockout.SubjectIP != nil {
		subject = fmt.Sprintf("Login lockout placed for %s", *lockout.SubjectIP)
	}

	var username, ip string
	if lockout.SubjectUsername != nil {
		username = logger.MaskUsername(*lockout.SubjectUsername)
	}
	if lockout.SubjectIP != nil {
		ip = *lockout.SubjectIP
	}

	body := fmt.Sprintf(`A login lockout was placed after repeated failed attempts.

IP address: %s
Username:   %s
Failures:   %d
Locked at:  %s
Unlocks at: %s
Reason:     %s

Clear it early with DELETE /admin/lockouts if this was a legitimate user.
`,
		valueOrDash(ip),
		valueOrDash(username),
		failures,
		lockout.CreatedAt.UTC().Format(time.RFC1123),
		lockout.UnlockAt.UTC().Format(time.RFC1123),
		lockout.Reason,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.adminAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send lockout email: %w", err)
	}

	n.logger.InfoContext(ctx, "lockout notification sent",
		slog.String("lockout_id", lockout.ID),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
