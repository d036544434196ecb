package logs

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// mockLogsClient serves two pages of groups and events.
type mockLogsClient struct {
	groupCalls  []*cloudwatchlogs.DescribeLogGroupsInput
	filterCalls []*cloudwatchlogs.FilterLogEventsInput
}

func (m *mockLogsClient) DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	m.groupCalls = append(m.groupCalls, params)
	if params.NextToken == nil {
		return &cloudwatchlogs.DescribeLogGroupsOutput{
			LogGroups: []types.LogGroup{{
				LogGroupName:    aws.String("/aws/lambda/orders"),
				StoredBytes:     aws.Int64(2048),
				RetentionInDays: aws.Int32(14),
				CreationTime:    aws.Int64(1700000000000),
			}},
			NextToken: aws.String("next"),
		}, nil
	}
	return &cloudwatchlogs.DescribeLogGroupsOutput{
		LogGroups: []types.LogGroup{{LogGroupName: aws.String("/aws/lambda/billing")}},
	}, nil
}

func (m *mockLogsClient) FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	m.filterCalls = append(m.filterCalls, params)
	event := func(id string) types.FilteredLogEvent {
		return types.FilteredLogEvent{
			EventId:       aws.String(id),
			LogStreamName: aws.String("2024/01/01/[$LATEST]abc"),
			Message:       aws.String("ERROR " + id),
			Timestamp:     aws.Int64(1700000000000),
		}
	}
	if params.NextToken == nil {
		return &cloudwatchlogs.FilterLogEventsOutput{
			Events:    []types.FilteredLogEvent{event("1"), event("2")},
			NextToken: aws.String("next"),
		}, nil
	}
	return &cloudwatchlogs.FilterLogEventsOutput{Events: []types.FilteredLogEvent{event("3")}}, nil
}

func TestGroups(t *testing.T) {
	client := &mockLogsClient{}
	groups, err := New(client).Groups(context.Background(), "/aws/lambda/")
	if err != nil {
		t.Fatalf("failed to list groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups across pages, got %d", len(groups))
	}
	if aws.ToString(client.groupCalls[0].LogGroupNamePrefix) != "/aws/lambda/" {
		t.Error("expected prefix on request")
	}
	g := groups[0]
	if g.RetentionDays != 14 || g.StoredBytes != 2048 {
		t.Errorf("unexpected group: %+v", g)
	}
	if !g.CreationTime.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected creation time %v", g.CreationTime)
	}
	if !groups[1].CreationTime.IsZero() {
		t.Error("expected zero creation time when unset")
	}
}

func TestFilter(t *testing.T) {
	client := &mockLogsClient{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	events, err := New(client).Filter(context.Background(), FilterRequest{
		Group:   "/aws/lambda/orders",
		Streams: []string{"s1"},
		Pattern: "ERROR",
		Start:   start,
		End:     end,
	})
	if err != nil {
		t.Fatalf("failed to filter events: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 events across pages, got %d", len(events))
	}

	in := client.filterCalls[0]
	if aws.ToString(in.FilterPattern) != "ERROR" {
		t.Errorf("expected filter pattern, got %q", aws.ToString(in.FilterPattern))
	}
	if aws.ToInt64(in.StartTime) != start.UnixMilli() || aws.ToInt64(in.EndTime) != end.UnixMilli() {
		t.Error("expected start and end in epoch milliseconds")
	}
	if len(in.LogStreamNames) != 1 {
		t.Error("expected stream names on request")
	}
}

func TestFilterLimit(t *testing.T) {
	client := &mockLogsClient{}
	events, err := New(client).Filter(context.Background(), FilterRequest{Group: "g", Limit: 2})
	if err != nil {
		t.Fatalf("failed to filter events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
	if len(client.filterCalls) != 1 {
		t.Errorf("expected to stop after first page, got %d requests", len(client.filterCalls))
	}
}

func TestFilterValidation(t *testing.T) {
	r := New(&mockLogsClient{})
	if _, err := r.Filter(context.Background(), FilterRequest{}); err == nil {
		t.Error("expected error for missing group")
	}
	now := time.Now()
	if _, err := r.Filter(context.Background(), FilterRequest{Group: "g", Start: now, End: now.Add(-time.Minute)}); err == nil {
		t.Error("expected error for end before start")
	}
}
