// internal/notify/notifier.go
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"

	"application-sync/internal/common/config"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
)

// Notifier delivers operator alerts for conditions that need human
// follow-up, e.g. an archive sequence that degraded to a partial state.
type Notifier interface {
	NotifyOperator(ctx context.Context, subject, body string) error
}

// AWSNotifier fans an alert out to SNS and/or email per configuration.
type AWSNotifier struct {
	cfg config.NotificationConfig
	sns *SNSClient
	ses *SESClient
	log logger.Logger
}

// NewAWSNotifier creates a notifier; either client may be nil when the
// corresponding channel is disabled.
func NewAWSNotifier(cfg config.NotificationConfig, sns *SNSClient, ses *SESClient, log logger.Logger) *AWSNotifier {
	return &AWSNotifier{cfg: cfg, sns: sns, ses: ses, log: log}
}

func (n *AWSNotifier) NotifyOperator(ctx context.Context, subject, body string) error {
	var firstErr error

	if n.cfg.SNS.Enabled && n.sns != nil {
		_, err := n.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(n.cfg.SNS.TopicARN),
			Subject:  aws.String(subject),
			Message:  aws.String(body),
		})
		if err != nil {
			firstErr = apperrors.NewNotificationFailedError("sns", err)
			n.log.Error("SNS notification failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if n.cfg.Email.Enabled && n.ses != nil {
		_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
			Source: aws.String(n.cfg.Email.FromEmail),
			Destination: &sestypes.Destination{
				ToAddresses: []string{n.cfg.Email.ToEmail},
			},
			Message: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body)},
				},
			},
		})
		if err != nil {
			if firstErr == nil {
				firstErr = apperrors.NewNotificationFailedError("email", err)
			}
			n.log.Error("Email notification failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return firstErr
}

// LogNotifier writes alerts to the log only; used in test and dry-run modes
// and when no delivery channel is configured.
type LogNotifier struct {
	Log logger.Logger
}

func (n *LogNotifier) NotifyOperator(_ context.Context, subject, body string) error {
	n.Log.Warn(fmt.Sprintf("OPERATOR ALERT: %s", subject), map[string]interface{}{
		"detail": body,
	})
	return nil
}
