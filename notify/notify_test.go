package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// mockSNSClient serves topics two per page and records requests.
type mockSNSClient struct {
	topics     []string
	subs       []types.Subscription
	subscribes []*sns.SubscribeInput
	publishes  []*sns.PublishInput
	unsubs     []string
	deleted    []string
	err        error
}

func (m *mockSNSClient) CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	arn := "arn:aws:sns:us-east-2:123456789012:" + aws.ToString(params.Name)
	m.topics = append(m.topics, arn)
	return &sns.CreateTopicOutput{TopicArn: aws.String(arn)}, nil
}

func (m *mockSNSClient) ListTopics(ctx context.Context, params *sns.ListTopicsInput, optFns ...func(*sns.Options)) (*sns.ListTopicsOutput, error) {
	start := 0
	if params.NextToken != nil {
		start = 2
	}
	end := min(start+2, len(m.topics))
	out := &sns.ListTopicsOutput{}
	for _, arn := range m.topics[start:end] {
		out.Topics = append(out.Topics, types.Topic{TopicArn: aws.String(arn)})
	}
	if start == 0 && end < len(m.topics) {
		out.NextToken = aws.String("page2")
	}
	return out, nil
}

func (m *mockSNSClient) ListSubscriptions(ctx context.Context, params *sns.ListSubscriptionsInput, optFns ...func(*sns.Options)) (*sns.ListSubscriptionsOutput, error) {
	if params.NextToken != nil {
		return &sns.ListSubscriptionsOutput{}, nil
	}
	return &sns.ListSubscriptionsOutput{Subscriptions: m.subs, NextToken: aws.String("more")}, nil
}

func (m *mockSNSClient) Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error) {
	m.subscribes = append(m.subscribes, params)
	return &sns.SubscribeOutput{SubscriptionArn: aws.String(aws.ToString(params.TopicArn) + ":sub1")}, nil
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.publishes = append(m.publishes, params)
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func (m *mockSNSClient) Unsubscribe(ctx context.Context, params *sns.UnsubscribeInput, optFns ...func(*sns.Options)) (*sns.UnsubscribeOutput, error) {
	m.unsubs = append(m.unsubs, aws.ToString(params.SubscriptionArn))
	return &sns.UnsubscribeOutput{}, nil
}

func (m *mockSNSClient) DeleteTopic(ctx context.Context, params *sns.DeleteTopicInput, optFns ...func(*sns.Options)) (*sns.DeleteTopicOutput, error) {
	m.deleted = append(m.deleted, aws.ToString(params.TopicArn))
	return &sns.DeleteTopicOutput{}, nil
}

func TestTopics(t *testing.T) {
	client := &mockSNSClient{}
	n := New(client)
	ctx := context.Background()

	for _, name := range []string{"alerts", "orders", "billing"} {
		if _, err := n.CreateTopic(ctx, name); err != nil {
			t.Fatalf("failed to create topic %s: %v", name, err)
		}
	}

	arns, next, err := n.ListTopics(ctx, "")
	if err != nil {
		t.Fatalf("failed to list topics: %v", err)
	}
	if len(arns) != 2 || next != "page2" {
		t.Errorf("expected first page of 2 with token, got %d and %q", len(arns), next)
	}

	arns, next, err = n.ListTopics(ctx, next)
	if err != nil {
		t.Fatalf("failed to list second page: %v", err)
	}
	if len(arns) != 1 || next != "" {
		t.Errorf("expected last page of 1 without token, got %d and %q", len(arns), next)
	}

	all, err := n.AllTopics(ctx)
	if err != nil {
		t.Fatalf("failed to list all topics: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 topics, got %d", len(all))
	}

	if _, err := n.CreateTopic(ctx, ""); err == nil {
		t.Error("expected error for empty topic name")
	}
}

func TestListSubscriptionsReturnsToken(t *testing.T) {
	client := &mockSNSClient{subs: []types.Subscription{{
		SubscriptionArn: aws.String("arn:sub"),
		TopicArn:        aws.String("arn:topic"),
		Protocol:        aws.String("sms"),
		Endpoint:        aws.String("+15555550100"),
	}}}

	subs, next, err := New(client).ListSubscriptions(context.Background(), "")
	if err != nil {
		t.Fatalf("failed to list subscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "+15555550100" {
		t.Errorf("unexpected subscriptions: %+v", subs)
	}
	if next != "more" {
		t.Errorf("expected next token 'more', got %q", next)
	}
}

func TestSubscribe(t *testing.T) {
	tests := []struct {
		phone   string
		wantErr bool
	}{
		{"+15555550100", false},
		{"+4670123456", false},
		{"15555550100", true},
		{"+05555550100", true},
		{"+1555555010012345", true},
		{"+1 555 555 0100", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			client := &mockSNSClient{}
			_, err := New(client).Subscribe(context.Background(), "arn:topic", tt.phone)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhoneNumber) {
					t.Errorf("expected ErrInvalidPhoneNumber, got %v", err)
				}
				if len(client.subscribes) != 0 {
					t.Error("expected no request for invalid number")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if aws.ToString(client.subscribes[0].Protocol) != ProtocolSMS {
				t.Errorf("expected sms protocol, got %q", aws.ToString(client.subscribes[0].Protocol))
			}
		})
	}
}

func TestPublishUnsubscribeDelete(t *testing.T) {
	client := &mockSNSClient{}
	n := New(client)
	ctx := context.Background()

	id, err := n.Publish(ctx, "arn:topic", "hello")
	if err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if id != "msg-1" || aws.ToString(client.publishes[0].Message) != "hello" {
		t.Errorf("unexpected publish: id %q", id)
	}
	if _, err := n.Publish(ctx, "arn:topic", ""); err == nil {
		t.Error("expected error for empty message")
	}

	if err := n.Unsubscribe(ctx, "arn:sub"); err != nil {
		t.Fatal(err)
	}
	if err := n.DeleteTopic(ctx, "arn:topic"); err != nil {
		t.Fatal(err)
	}
	if len(client.unsubs) != 1 || len(client.deleted) != 1 {
		t.Error("expected unsubscribe and delete requests")
	}
}

func TestCreateTopicError(t *testing.T) {
	want := errors.New("throttled")
	_, err := New(&mockSNSClient{err: want}).CreateTopic(context.Background(), "x")
	if !errors.Is(err, want) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}
