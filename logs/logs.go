// Package logs reads CloudWatch Logs groups and events for cwlogs-manage.
package logs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	awsclient "github.com/gurre/aws-manage/aws"
)

// Group is a log group summary.
type Group struct {
	Name          string    `json:"name"`
	ARN           string    `json:"arn"`
	StoredBytes   int64     `json:"storedBytes"`
	RetentionDays int32     `json:"retentionDays,omitempty"`
	CreationTime  time.Time `json:"creationTime"`
}

// Event is one matched log event.
type Event struct {
	Stream    string    `json:"stream"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	EventID   string    `json:"eventId"`
}

// FilterRequest selects events from one group.
type FilterRequest struct {
	Group   string    // Required log group name
	Streams []string  // Optional stream names
	Pattern string    // Optional CloudWatch filter pattern
	Start   time.Time // Optional, inclusive
	End     time.Time // Optional, inclusive
	Limit   int       // Stop after this many events; 0 means all
}

// Reader runs CloudWatch Logs queries.
type Reader struct {
	client awsclient.LogsClient
}

// New creates a Reader.
func New(client awsclient.LogsClient) *Reader {
	return &Reader{client: client}
}

// Groups returns every log group whose name starts with prefix.
func (r *Reader) Groups(ctx context.Context, prefix string) ([]Group, error) {
	input := &cloudwatchlogs.DescribeLogGroupsInput{}
	if prefix != "" {
		input.LogGroupNamePrefix = aws.String(prefix)
	}

	var groups []Group
	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe log groups: %w", err)
		}
		for _, g := range page.LogGroups {
			groups = append(groups, Group{
				Name:          aws.ToString(g.LogGroupName),
				ARN:           aws.ToString(g.Arn),
				StoredBytes:   aws.ToInt64(g.StoredBytes),
				RetentionDays: aws.ToInt32(g.RetentionInDays),
				CreationTime:  fromMillis(aws.ToInt64(g.CreationTime)),
			})
		}
	}
	return groups, nil
}

// Filter returns events matching req, in the order the service returns them.
func (r *Reader) Filter(ctx context.Context, req FilterRequest) ([]Event, error) {
	if req.Group == "" {
		return nil, fmt.Errorf("log group name is required")
	}
	if !req.Start.IsZero() && !req.End.IsZero() && req.End.Before(req.Start) {
		return nil, fmt.Errorf("end time %s is before start time %s", req.End, req.Start)
	}

	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName:   aws.String(req.Group),
		LogStreamNames: req.Streams,
	}
	if req.Pattern != "" {
		input.FilterPattern = aws.String(req.Pattern)
	}
	if !req.Start.IsZero() {
		input.StartTime = aws.Int64(req.Start.UnixMilli())
	}
	if !req.End.IsZero() {
		input.EndTime = aws.Int64(req.End.UnixMilli())
	}

	var events []Event
	paginator := cloudwatchlogs.NewFilterLogEventsPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to filter events in %s: %w", req.Group, err)
		}
		for _, e := range page.Events {
			events = append(events, Event{
				Stream:    aws.ToString(e.LogStreamName),
				Timestamp: fromMillis(aws.ToInt64(e.Timestamp)),
				Message:   aws.ToString(e.Message),
				EventID:   aws.ToString(e.EventId),
			})
			if req.Limit > 0 && len(events) >= req.Limit {
				return events, nil
			}
		}
	}
	return events, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
