package update

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	json "github.com/goccy/go-json"
)

var (
	// ErrUnsupportedValue is returned for values that are not strings,
	// numbers or booleans.
	ErrUnsupportedValue = errors.New("unsupported attribute value")
	// ErrMalformedAssignment is returned by ParseAssignments for arguments
	// without a name=value form.
	ErrMalformedAssignment = errors.New("malformed assignment")
)

// Number is numeric text stored as a DynamoDB N value without passing
// through float64.
type Number string

var numberPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// Scalar marshals a string, number or boolean into an AttributeValue.
func Scalar(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	case Number:
		return number(string(t))
	case json.Number:
		return number(t.String())
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case *types.AttributeValueMemberS, *types.AttributeValueMemberN, *types.AttributeValueMemberBOOL:
		return t.(types.AttributeValue), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return attributevalue.Marshal(t)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func number(s string) (types.AttributeValue, error) {
	if !numberPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q is not a number", ErrUnsupportedValue, s)
	}
	return &types.AttributeValueMemberN{Value: s}, nil
}

// ParseValue interprets command-line text: true/false become booleans,
// numeric text becomes a Number, double-quoted text is taken literally as a
// string, and anything else is a string.
func ParseValue(s string) any {
	switch {
	case s == "true":
		return true
	case s == "false":
		return false
	case len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`):
		return s[1 : len(s)-1]
	case numberPattern.MatchString(s):
		return Number(s)
	}
	return s
}

// KeyValue interprets key text as a value of the key attribute's scalar type.
// Only S and N keys are supported.
func KeyValue(typ types.ScalarAttributeType, s string) (any, error) {
	switch typ {
	case types.ScalarAttributeTypeS:
		return s, nil
	case types.ScalarAttributeTypeN:
		if !numberPattern.MatchString(s) {
			return nil, fmt.Errorf("%w: key %q is not a number", ErrUnsupportedValue, s)
		}
		return Number(s), nil
	}
	return nil, fmt.Errorf("%w: key type %q", ErrUnsupportedValue, typ)
}

// ParseAssignments turns name=value arguments into an AttributeUpdate in
// argument order.
func ParseAssignments(args []string) (AttributeUpdate, error) {
	attrs := make(AttributeUpdate, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q (want name=value)", ErrMalformedAssignment, arg)
		}
		attrs = append(attrs, Attribute{Name: name, Value: ParseValue(value)})
	}
	return attrs, nil
}
