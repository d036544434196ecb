package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// QueryRequest selects items by key condition. Filter is applied after the
// key condition by the service.
type QueryRequest struct {
	KeyCondition string                          // Required key condition expression
	Filter       string                          // Optional filter expression
	Values       map[string]types.AttributeValue // Placeholder values for both expressions
	Names        map[string]string               // Placeholder names for both expressions
	Index        string                          // Optional secondary index
	Limit        int                             // Stop after this many items; 0 means all
}

// ScanRequest reads every item, keeping those matching Filter.
type ScanRequest struct {
	Filter string
	Values map[string]types.AttributeValue
	Names  map[string]string
	Limit  int
}

// Query runs the key condition across all result pages.
func (s *Store) Query(ctx context.Context, req QueryRequest) ([]Item, error) {
	if req.KeyCondition == "" {
		return nil, fmt.Errorf("key condition expression is required")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(req.KeyCondition),
		ExpressionAttributeValues: req.Values,
		ExpressionAttributeNames:  req.Names,
	}
	if req.Filter != "" {
		input.FilterExpression = aws.String(req.Filter)
	}
	if req.Index != "" {
		input.IndexName = aws.String(req.Index)
	}

	var items []Item
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
		}
		items = append(items, page.Items...)
		if req.Limit > 0 && len(items) >= req.Limit {
			return items[:req.Limit], nil
		}
	}
	return items, nil
}

// Scan reads the whole table across all result pages. It consumes read
// capacity for every item in the table, matched or not.
func (s *Store) Scan(ctx context.Context, req ScanRequest) ([]Item, error) {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		ExpressionAttributeValues: req.Values,
		ExpressionAttributeNames:  req.Names,
	}
	if req.Filter != "" {
		input.FilterExpression = aws.String(req.Filter)
	}

	var items []Item
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", s.table, err)
		}
		items = append(items, page.Items...)
		if req.Limit > 0 && len(items) >= req.Limit {
			return items[:req.Limit], nil
		}
	}
	return items, nil
}
