// Package catalog manages a DynamoDB product table: table lifecycle, single
// item writes, partial updates, batch loads, queries and scans.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	awsclient "github.com/gurre/aws-manage/aws"
	"github.com/gurre/aws-manage/update"
)

// Default key attribute names of the product table.
const (
	DefaultPartitionKey = "category"
	DefaultSortKey      = "sku"
)

// ErrItemNotFound is returned when a read finds no item for the key.
var ErrItemNotFound = errors.New("item not found")

// Item is a DynamoDB item in wire form.
type Item = map[string]types.AttributeValue

// Store fronts one table.
type Store struct {
	client      awsclient.DynamoDBClient
	table       string
	waitTimeout time.Duration
	log         zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithWaitTimeout bounds the table existence waiters.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.waitTimeout = d
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New creates a Store for table using the injected client.
func New(client awsclient.DynamoDBClient, table string, opts ...Option) *Store {
	s := &Store{
		client:      client,
		table:       table,
		waitTimeout: 5 * time.Minute,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the table name.
func (s *Store) Table() string {
	return s.table
}

// CreateTable creates the table with 5/5 provisioned throughput and waits
// until it is ACTIVE.
func (s *Store) CreateTable(ctx context.Context, keySchema []types.KeySchemaElement, attrDefs []types.AttributeDefinition) (*types.TableDescription, error) {
	if len(keySchema) == 0 {
		return nil, fmt.Errorf("key schema is required")
	}
	if len(attrDefs) == 0 {
		return nil, fmt.Errorf("attribute definitions are required")
	}

	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(s.table),
		KeySchema:            keySchema,
		AttributeDefinitions: attrDefs,
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	s.log.Info().Str("table", s.table).Msg("Waiting for table to become active")
	waiter := dynamodb.NewTableExistsWaiter(s.client)
	out, err := waiter.WaitForOutput(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, s.waitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for table %s: %w", s.table, err)
	}
	return out.Table, nil
}

// Describe returns the table description.
func (s *Store) Describe(ctx context.Context) (*types.TableDescription, error) {
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", s.table, err)
	}
	return out.Table, nil
}

// DeleteTable deletes the table and waits until it no longer exists.
func (s *Store) DeleteTable(ctx context.Context) error {
	if _, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(s.table)}); err != nil {
		return fmt.Errorf("failed to delete table %s: %w", s.table, err)
	}

	s.log.Info().Str("table", s.table).Msg("Waiting for table deletion")
	waiter := dynamodb.NewTableNotExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, s.waitTimeout); err != nil {
		return fmt.Errorf("failed waiting for table %s deletion: %w", s.table, err)
	}
	return nil
}

// CreateProduct writes the product identified by key with attrs and returns
// the stored item read back with a consistent read. An attribute named twice
// is rejected with update.ErrDuplicateAttribute.
func (s *Store) CreateProduct(ctx context.Context, key update.ItemKey, attrs update.AttributeUpdate) (Item, error) {
	keyMap, err := key.Map()
	if err != nil {
		return nil, err
	}

	item := make(Item, len(keyMap)+len(attrs))
	for _, a := range attrs {
		if _, dup := item[a.Name]; dup {
			return nil, fmt.Errorf("%w: %q", update.ErrDuplicateAttribute, a.Name)
		}
		av, err := update.Scalar(a.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		item[a.Name] = av
	}
	// Key attributes win over same-named attributes
	for k, v := range keyMap {
		item[k] = v
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("failed to put product %s: %w", key, err)
	}

	return s.GetProduct(ctx, key)
}

// GetProduct reads one product with a consistent read.
func (s *Store) GetProduct(ctx context.Context, key update.ItemKey) (Item, error) {
	keyMap, err := key.Map()
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyMap,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	return out.Item, nil
}

// UpdateProduct sets attrs on the product identified by key and returns the
// updated item. Attribute names must not be DynamoDB reserved words.
func (s *Store) UpdateProduct(ctx context.Context, key update.ItemKey, attrs update.AttributeUpdate) (Item, error) {
	input, err := update.BuildInput(s.table, key, attrs)
	if err != nil {
		return nil, err
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to update product %s: %w", key, err)
	}
	return out.Attributes, nil
}

// DeleteProduct removes the product identified by key.
func (s *Store) DeleteProduct(ctx context.Context, key update.ItemKey) error {
	keyMap, err := key.Map()
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyMap,
	}); err != nil {
		return fmt.Errorf("failed to delete product %s: %w", key, err)
	}
	return nil
}
