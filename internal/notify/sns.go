package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes to an SNS topic ARN
type SNSNotifier struct {
	client SNSAPI
	logger *slog.Logger
}

// NewSNSNotifier loads the default AWS configuration for region
func NewSNSNotifier(ctx context.Context, region string, logger *slog.Logger) (*SNSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(cfg), logger), nil
}

func NewSNSNotifierWithClient(client SNSAPI, logger *slog.Logger) *SNSNotifier {
	return &SNSNotifier{client: client, logger: logger}
}

func (n *SNSNotifier) Publish(ctx context.Context, msg Message) (string, error) {
	input := &sns.PublishInput{
		TopicArn: aws.String(msg.Topic),
		Message:  aws.String(msg.Body),
	}
	if msg.Subject != "" {
		input.Subject = aws.String(msg.Subject)
	}

	out, err := n.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to publish to sns topic %s: %w", msg.Topic, err)
	}

	id := aws.ToString(out.MessageId)
	n.logger.Info("Notification published",
		slog.String("message_id", id),
		slog.String("topic", msg.Topic),
		slog.String("subject", msg.Subject),
	)

	return id, nil
}
