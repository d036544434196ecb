// Package update builds DynamoDB partial-update requests from caller-supplied
// attribute assignments.
//
// Example:
//
//	attrs := update.AttributeUpdate{
//	    {Name: "price", Value: update.Number("19.99")},
//	    {Name: "in_stock", Value: true},
//	}
//	expr, err := update.Build(attrs)
//	// expr.Text   == "SET price=:price, in_stock=:in_stock"
//	// expr.Values == {":price": N(19.99), ":in_stock": BOOL(true)}
package update

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// placeholderPrefix is prepended to an attribute name to form its value token.
const placeholderPrefix = ":"

var (
	// ErrEmptyUpdate is returned when there are no attributes to set.
	ErrEmptyUpdate = errors.New("no attributes to update")
	// ErrEmptyKey is returned when the item key has no attributes.
	ErrEmptyKey = errors.New("item key is empty")
	// ErrDuplicateAttribute is returned when an attribute is assigned twice.
	ErrDuplicateAttribute = errors.New("duplicate attribute")
	// ErrInvalidName is returned for names that cannot form a placeholder token.
	ErrInvalidName = errors.New("invalid attribute name")
	// ErrKeyAttribute is returned when an update targets a key attribute.
	ErrKeyAttribute = errors.New("cannot update key attribute")
)

// namePattern matches names usable unquoted in an update expression: a
// letter followed by letters, digits or underscores.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Attribute is a single name/value pair.
type Attribute struct {
	Name  string
	Value any
}

// AttributeUpdate is an ordered list of attribute assignments. Order is
// preserved in the generated expression.
type AttributeUpdate []Attribute

// ItemKey is the ordered set of partition and sort key attributes that
// identify one item.
type ItemKey []Attribute

// Expression is a SET update expression and its bound placeholder values.
type Expression struct {
	Text   string
	Values map[string]types.AttributeValue
}

// Placeholder returns the value token bound to the named attribute.
func Placeholder(name string) string {
	return placeholderPrefix + name
}

// Build converts attrs into a SET expression with one clause per attribute.
// Clause order follows attrs, and every token in Text has exactly one entry
// in Values.
func Build(attrs AttributeUpdate) (Expression, error) {
	if len(attrs) == 0 {
		return Expression{}, ErrEmptyUpdate
	}

	clauses := make([]string, 0, len(attrs))
	values := make(map[string]types.AttributeValue, len(attrs))

	for _, a := range attrs {
		if !namePattern.MatchString(a.Name) {
			return Expression{}, fmt.Errorf("%w: %q", ErrInvalidName, a.Name)
		}
		token := Placeholder(a.Name)
		if _, dup := values[token]; dup {
			return Expression{}, fmt.Errorf("%w: %q", ErrDuplicateAttribute, a.Name)
		}
		av, err := Scalar(a.Value)
		if err != nil {
			return Expression{}, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		clauses = append(clauses, a.Name+"="+token)
		values[token] = av
	}

	return Expression{
		Text:   "SET " + strings.Join(clauses, ", "),
		Values: values,
	}, nil
}

// Map converts the key into the attribute map DynamoDB expects.
func (k ItemKey) Map() (map[string]types.AttributeValue, error) {
	if len(k) == 0 {
		return nil, ErrEmptyKey
	}
	m := make(map[string]types.AttributeValue, len(k))
	for _, a := range k {
		if a.Name == "" {
			return nil, fmt.Errorf("%w: empty key attribute name", ErrInvalidName)
		}
		if _, dup := m[a.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAttribute, a.Name)
		}
		av, err := Scalar(a.Value)
		if err != nil {
			return nil, fmt.Errorf("key attribute %q: %w", a.Name, err)
		}
		m[a.Name] = av
	}
	return m, nil
}

// Has reports whether name is one of the key attributes.
func (k ItemKey) Has(name string) bool {
	for _, a := range k {
		if a.Name == name {
			return true
		}
	}
	return false
}

// String renders the key as name=value pairs for log and error messages.
func (k ItemKey) String() string {
	parts := make([]string, 0, len(k))
	for _, a := range k {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Name, a.Value))
	}
	return strings.Join(parts, ",")
}

// BuildInput assembles the UpdateItem request for one item. The response is
// requested with ALL_NEW so callers get the updated item back.
func BuildInput(table string, key ItemKey, attrs AttributeUpdate) (*dynamodb.UpdateItemInput, error) {
	keyMap, err := key.Map()
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if key.Has(a.Name) {
			return nil, fmt.Errorf("%w: %q", ErrKeyAttribute, a.Name)
		}
	}

	expr, err := Build(attrs)
	if err != nil {
		return nil, err
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       keyMap,
		UpdateExpression:          aws.String(expr.Text),
		ExpressionAttributeValues: expr.Values,
		ReturnValues:              types.ReturnValueAllNew,
	}, nil
}
