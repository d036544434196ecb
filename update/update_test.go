package update

import (
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestBuildProductScenario(t *testing.T) {
	attrs := AttributeUpdate{
		{Name: "price", Value: 19.99},
		{Name: "in_stock", Value: true},
	}

	expr, err := Build(attrs)
	if err != nil {
		t.Fatalf("failed to build expression: %v", err)
	}

	if want := "SET price=:price, in_stock=:in_stock"; expr.Text != want {
		t.Errorf("expected expression %q, got %q", want, expr.Text)
	}
	if len(expr.Values) != 2 {
		t.Fatalf("expected 2 bound values, got %d", len(expr.Values))
	}
	if price, ok := expr.Values[":price"].(*types.AttributeValueMemberN); !ok || price.Value != "19.99" {
		t.Errorf("expected :price N(19.99), got %#v", expr.Values[":price"])
	}
	if stock, ok := expr.Values[":in_stock"].(*types.AttributeValueMemberBOOL); !ok || !stock.Value {
		t.Errorf("expected :in_stock BOOL(true), got %#v", expr.Values[":in_stock"])
	}
}

func TestBuildOneClausePerAttribute(t *testing.T) {
	testCases := []AttributeUpdate{
		{{Name: "a", Value: "x"}},
		{{Name: "a", Value: "x"}, {Name: "b", Value: 1}},
		{{Name: "name", Value: "Hoodie"}, {Name: "price", Value: Number("44.99")}, {Name: "is_published", Value: false}},
	}

	for _, attrs := range testCases {
		expr, err := Build(attrs)
		if err != nil {
			t.Fatalf("failed to build expression: %v", err)
		}

		clauses := strings.Split(strings.TrimPrefix(expr.Text, "SET "), ", ")
		if len(clauses) != len(attrs) {
			t.Errorf("expected %d clauses, got %d in %q", len(attrs), len(clauses), expr.Text)
		}
		if len(expr.Values) != len(attrs) {
			t.Errorf("expected %d values, got %d", len(attrs), len(expr.Values))
		}
		for i, clause := range clauses {
			name, token, ok := strings.Cut(clause, "=")
			if !ok {
				t.Fatalf("malformed clause %q", clause)
			}
			if name != attrs[i].Name {
				t.Errorf("clause %d: expected attribute %q, got %q", i, attrs[i].Name, name)
			}
			if _, ok := expr.Values[token]; !ok {
				t.Errorf("clause %d: token %q has no bound value", i, token)
			}
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, ErrEmptyUpdate) {
		t.Errorf("expected ErrEmptyUpdate, got %v", err)
	}
	if _, err := Build(AttributeUpdate{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Errorf("expected ErrEmptyUpdate, got %v", err)
	}
}

func TestBuildRejects(t *testing.T) {
	testCases := []struct {
		name  string
		attrs AttributeUpdate
		want  error
	}{
		{"duplicate", AttributeUpdate{{Name: "a", Value: "1"}, {Name: "a", Value: "2"}}, ErrDuplicateAttribute},
		{"dash in name", AttributeUpdate{{Name: "in-stock", Value: true}}, ErrInvalidName},
		{"empty name", AttributeUpdate{{Name: "", Value: true}}, ErrInvalidName},
		{"leading digit", AttributeUpdate{{Name: "1price", Value: true}}, ErrInvalidName},
		{"leading underscore", AttributeUpdate{{Name: "_x", Value: true}}, ErrInvalidName},
		{"list value", AttributeUpdate{{Name: "tags", Value: []string{"a"}}}, ErrUnsupportedValue},
		{"nil value", AttributeUpdate{{Name: "tags", Value: nil}}, ErrUnsupportedValue},
		{"bad number", AttributeUpdate{{Name: "price", Value: Number("abc")}}, ErrUnsupportedValue},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build(tc.attrs); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBuildInput(t *testing.T) {
	key := ItemKey{{Name: "category", Value: "clothing"}, {Name: "sku", Value: "abc"}}
	attrs := AttributeUpdate{{Name: "price", Value: 19.99}, {Name: "in_stock", Value: true}}

	input, err := BuildInput("products", key, attrs)
	if err != nil {
		t.Fatalf("failed to build input: %v", err)
	}

	if input.TableName == nil || *input.TableName != "products" {
		t.Error("expected table name 'products'")
	}
	if cat, ok := input.Key["category"].(*types.AttributeValueMemberS); !ok || cat.Value != "clothing" {
		t.Errorf("expected category key 'clothing', got %#v", input.Key["category"])
	}
	if sku, ok := input.Key["sku"].(*types.AttributeValueMemberS); !ok || sku.Value != "abc" {
		t.Errorf("expected sku key 'abc', got %#v", input.Key["sku"])
	}
	if input.UpdateExpression == nil || *input.UpdateExpression != "SET price=:price, in_stock=:in_stock" {
		t.Errorf("unexpected update expression: %v", input.UpdateExpression)
	}
	if input.ReturnValues != types.ReturnValueAllNew {
		t.Errorf("expected ALL_NEW return values, got %s", input.ReturnValues)
	}
	if input.ExpressionAttributeNames != nil {
		t.Error("expected no expression attribute names")
	}
}

func TestBuildInputRejects(t *testing.T) {
	key := ItemKey{{Name: "category", Value: "clothing"}, {Name: "sku", Value: "abc"}}

	if _, err := BuildInput("products", nil, AttributeUpdate{{Name: "price", Value: 1}}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := BuildInput("products", key, AttributeUpdate{{Name: "sku", Value: "def"}}); !errors.Is(err, ErrKeyAttribute) {
		t.Errorf("expected ErrKeyAttribute, got %v", err)
	}
	if _, err := BuildInput("products", key, nil); !errors.Is(err, ErrEmptyUpdate) {
		t.Errorf("expected ErrEmptyUpdate, got %v", err)
	}
}

func TestParseAssignments(t *testing.T) {
	attrs, err := ParseAssignments([]string{
		"product_name=Hoodie",
		"price=44.99",
		"in_stock=true",
		`code="007"`,
		"note=a=b",
	})
	if err != nil {
		t.Fatalf("failed to parse assignments: %v", err)
	}

	want := AttributeUpdate{
		{Name: "product_name", Value: "Hoodie"},
		{Name: "price", Value: Number("44.99")},
		{Name: "in_stock", Value: true},
		{Name: "code", Value: "007"},
		{Name: "note", Value: "a=b"},
	}
	if len(attrs) != len(want) {
		t.Fatalf("expected %d attributes, got %d", len(want), len(attrs))
	}
	for i := range want {
		if attrs[i] != want[i] {
			t.Errorf("attribute %d: expected %#v, got %#v", i, want[i], attrs[i])
		}
	}

	for _, bad := range []string{"price", "=1"} {
		if _, err := ParseAssignments([]string{bad}); !errors.Is(err, ErrMalformedAssignment) {
			t.Errorf("expected ErrMalformedAssignment for %q, got %v", bad, err)
		}
	}
}

func TestKeyValue(t *testing.T) {
	v, err := KeyValue(types.ScalarAttributeTypeN, "1001")
	if err != nil {
		t.Fatalf("failed to parse numeric key: %v", err)
	}
	key := ItemKey{{Name: "category", Value: "clothing"}, {Name: "sku", Value: v}}
	m, err := key.Map()
	if err != nil {
		t.Fatalf("failed to build key: %v", err)
	}
	if sku, ok := m["sku"].(*types.AttributeValueMemberN); !ok || sku.Value != "1001" {
		t.Errorf("expected sku N(1001), got %#v", m["sku"])
	}

	if v, err := KeyValue(types.ScalarAttributeTypeS, "1001"); err != nil || v != "1001" {
		t.Errorf("expected string key 1001, got %#v (%v)", v, err)
	}
	if _, err := KeyValue(types.ScalarAttributeTypeN, "abc"); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue for non-numeric N key, got %v", err)
	}
	if _, err := KeyValue(types.ScalarAttributeTypeB, "abc"); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue for binary key, got %v", err)
	}
}

// BenchmarkBuild measures expression building for a typical product update
func BenchmarkBuild(b *testing.B) {
	attrs := AttributeUpdate{
		{Name: "product_name", Value: "Hoodie"},
		{Name: "price", Value: Number("44.99")},
		{Name: "in_stock", Value: true},
		{Name: "is_published", Value: true},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Build(attrs)
	}
}
