// Package notify manages SNS topics and their SMS subscriptions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	awsclient "github.com/gurre/aws-manage/aws"
)

// ProtocolSMS is the subscription protocol for mobile numbers.
const ProtocolSMS = "sms"

// ErrInvalidPhoneNumber is returned for numbers not in E.164 form.
var ErrInvalidPhoneNumber = errors.New("phone number must be in E.164 form, e.g. +15555550100")

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Subscription is one topic subscription.
type Subscription struct {
	ARN      string `json:"subscriptionArn"`
	TopicARN string `json:"topicArn"`
	Protocol string `json:"protocol"`
	Endpoint string `json:"endpoint"`
	Owner    string `json:"owner,omitempty"`
}

// Notifier runs SNS operations against one client.
type Notifier struct {
	client awsclient.SNSClient
	log    zerolog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) {
		n.log = l
	}
}

// New creates a Notifier using the injected client.
func New(client awsclient.SNSClient, opts ...Option) *Notifier {
	n := &Notifier{client: client, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CreateTopic creates the topic, or returns the existing one, by name.
func (n *Notifier) CreateTopic(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("topic name is required")
	}
	out, err := n.client.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to create topic %s: %w", name, err)
	}
	n.log.Info().Str("topic", aws.ToString(out.TopicArn)).Msg("Created topic")
	return aws.ToString(out.TopicArn), nil
}

// ListTopics returns one page of topic ARNs and the token for the next page,
// empty on the last page.
func (n *Notifier) ListTopics(ctx context.Context, nextToken string) ([]string, string, error) {
	input := &sns.ListTopicsInput{}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}
	out, err := n.client.ListTopics(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list topics: %w", err)
	}

	arns := make([]string, 0, len(out.Topics))
	for _, t := range out.Topics {
		arns = append(arns, aws.ToString(t.TopicArn))
	}
	return arns, aws.ToString(out.NextToken), nil
}

// AllTopics returns the ARN of every topic across all pages.
func (n *Notifier) AllTopics(ctx context.Context) ([]string, error) {
	var arns []string
	paginator := sns.NewListTopicsPaginator(n.client, &sns.ListTopicsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list topics: %w", err)
		}
		for _, t := range page.Topics {
			arns = append(arns, aws.ToString(t.TopicArn))
		}
	}
	return arns, nil
}

// ListSubscriptions returns one page of subscriptions and the token for the
// next page, empty on the last page.
func (n *Notifier) ListSubscriptions(ctx context.Context, nextToken string) ([]Subscription, string, error) {
	input := &sns.ListSubscriptionsInput{}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}
	out, err := n.client.ListSubscriptions(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list subscriptions: %w", err)
	}

	subs := make([]Subscription, 0, len(out.Subscriptions))
	for _, s := range out.Subscriptions {
		subs = append(subs, Subscription{
			ARN:      aws.ToString(s.SubscriptionArn),
			TopicARN: aws.ToString(s.TopicArn),
			Protocol: aws.ToString(s.Protocol),
			Endpoint: aws.ToString(s.Endpoint),
			Owner:    aws.ToString(s.Owner),
		})
	}
	return subs, aws.ToString(out.NextToken), nil
}

// Subscribe adds an SMS subscription for phone to the topic and returns the
// subscription ARN.
func (n *Notifier) Subscribe(ctx context.Context, topicARN, phone string) (string, error) {
	if !e164.MatchString(phone) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, phone)
	}
	out, err := n.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(topicARN),
		Protocol:              aws.String(ProtocolSMS),
		Endpoint:              aws.String(phone),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to subscribe to %s: %w", topicARN, err)
	}
	return aws.ToString(out.SubscriptionArn), nil
}

// Publish sends message to every subscriber of the topic and returns the
// message ID.
func (n *Notifier) Publish(ctx context.Context, topicARN, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("message is required")
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(message),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", topicARN, err)
	}
	n.log.Debug().Str("topic", topicARN).Str("messageId", aws.ToString(out.MessageId)).Msg("Published message")
	return aws.ToString(out.MessageId), nil
}

// Unsubscribe removes a subscription.
func (n *Notifier) Unsubscribe(ctx context.Context, subscriptionARN string) error {
	if _, err := n.client.Unsubscribe(ctx, &sns.UnsubscribeInput{SubscriptionArn: aws.String(subscriptionARN)}); err != nil {
		return fmt.Errorf("failed to unsubscribe %s: %w", subscriptionARN, err)
	}
	return nil
}

// DeleteTopic deletes the topic along with all of its subscriptions.
func (n *Notifier) DeleteTopic(ctx context.Context, topicARN string) error {
	if _, err := n.client.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: aws.String(topicARN)}); err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", topicARN, err)
	}
	n.log.Info().Str("topic", topicARN).Msg("Deleted topic")
	return nil
}
