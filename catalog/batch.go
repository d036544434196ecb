package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gurre/aws-manage/metrics"
)

// MaxBatchWrite is the DynamoDB limit on requests per BatchWriteItem call.
const MaxBatchWrite = 25

// backoffWait sleeps for an exponentially increasing duration with jitter.
// Returns false if the context is cancelled during the wait.
func backoffWait(ctx context.Context, attempt int) bool {
	// Base delay 50ms, max delay 20s
	base := 50 * time.Millisecond
	maxDelay := 20 * time.Second

	delay := base * time.Duration(1<<uint(min(attempt, 16)))
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(rand.Int64N(int64(delay)))
	delay = delay + jitter

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// PutItems writes items in batches of MaxBatchWrite and returns the number
// of items written. When overwriteKeys names the key attributes, items that
// share a key are collapsed so the last one wins; DynamoDB rejects batches
// holding two writes for the same key.
//
// Unprocessed items returned by the service are resubmitted with backoff
// until they are accepted or ctx ends. Request errors are returned as is;
// the SDK transport has already retried them.
func (s *Store) PutItems(ctx context.Context, items []Item, overwriteKeys []string, m *metrics.Metrics) (int, error) {
	if len(overwriteKeys) > 0 {
		var err error
		items, err = dedupe(items, overwriteKeys)
		if err != nil {
			return 0, err
		}
	}

	written := 0
	for i := 0; i < len(items); i += MaxBatchWrite {
		end := min(i+MaxBatchWrite, len(items))
		batch := items[i:end]

		requests := make([]types.WriteRequest, 0, len(batch))
		for _, item := range batch {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		if err := s.writeBatch(ctx, requests, m); err != nil {
			return written, err
		}
		written += len(batch)
		s.log.Debug().Str("table", s.table).Int("written", written).Int("total", len(items)).Msg("Wrote item batch")
	}

	return written, nil
}

func (s *Store) writeBatch(ctx context.Context, requests []types.WriteRequest, m *metrics.Metrics) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			s.table: requests,
		},
	}

	attempt := 0
	for {
		output, err := s.client.BatchWriteItem(ctx, input)
		if err != nil {
			if m != nil {
				m.RecordError()
			}
			return fmt.Errorf("failed to write batch to %s: %w", s.table, err)
		}

		pending := output.UnprocessedItems[s.table]
		if m != nil {
			m.RecordRequest(len(input.RequestItems[s.table]) - len(pending))
		}
		if len(pending) == 0 {
			return nil
		}

		if m != nil {
			m.RecordRetry()
		}
		input.RequestItems = map[string][]types.WriteRequest{s.table: pending}
		if !backoffWait(ctx, attempt) {
			return ctx.Err()
		}
		attempt++
	}
}

// dedupe keeps the last item for each combination of key attribute values,
// preserving the position of the first occurrence.
func dedupe(items []Item, keys []string) ([]Item, error) {
	index := make(map[string]int, len(items))
	out := make([]Item, 0, len(items))

	for i, item := range items {
		var sb strings.Builder
		for _, k := range keys {
			av, ok := item[k]
			if !ok {
				return nil, fmt.Errorf("item %d is missing key attribute %q", i, k)
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(keyString(av))
			sb.WriteByte(0)
		}
		id := sb.String()

		if pos, seen := index[id]; seen {
			out[pos] = item
			continue
		}
		index[id] = len(out)
		out = append(out, item)
	}
	return out, nil
}

// keyString renders a key attribute value. Key attributes are S, N or B.
func keyString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberB:
		return "B:" + string(v.Value)
	}
	return fmt.Sprintf("%T", av)
}
