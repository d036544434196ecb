package catalog

import (
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	json "github.com/goccy/go-json"

	"github.com/gurre/aws-manage/update"
)

// DecodeItems reads a JSON array of plain objects (not DynamoDB JSON) into
// items. Numbers keep their original text.
func DecodeItems(r io.Reader) ([]Item, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for i, obj := range raw {
		item, err := toItem(obj)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// DecodeValues reads a JSON object of placeholder values such as
// {":cat": "clothing", ":max": 50} for query and scan expressions.
func DecodeValues(r io.Reader) (map[string]types.AttributeValue, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode expression values: %w", err)
	}
	return toItem(raw)
}

// Plain converts an item into ordinary Go values for printing. N values
// become json.Number so they print with every stored digit.
func Plain(item Item) (map[string]any, error) {
	var out map[string]any
	if err := attributevalue.UnmarshalMapWithOptions(item, &out, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	}); err != nil {
		return nil, fmt.Errorf("failed to convert item: %w", err)
	}
	for k, v := range out {
		out[k] = plainNumbers(v)
	}
	return out, nil
}

func plainNumbers(v any) any {
	switch t := v.(type) {
	case attributevalue.Number:
		return json.Number(t)
	case []attributevalue.Number:
		nums := make([]any, 0, len(t))
		for _, n := range t {
			nums = append(nums, json.Number(n))
		}
		return nums
	case []any:
		for i, e := range t {
			t[i] = plainNumbers(e)
		}
	case map[string]any:
		for k, e := range t {
			t[k] = plainNumbers(e)
		}
	}
	return v
}

// PlainAll converts every item with Plain.
func PlainAll(items []Item) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		p, err := Plain(item)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toItem(obj map[string]any) (Item, error) {
	item := make(Item, len(obj))
	for k, v := range obj {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

func toAttributeValue(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case []any:
		list := make([]types.AttributeValue, 0, len(t))
		for _, e := range t {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			list = append(list, av)
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		m, err := toItem(t)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return update.Scalar(v)
}
