package shared

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Money is a euro amount with cent precision.
type Money struct {
	decimal.Decimal
}

// ParseMoney accepts "150", "150.5", "150,50" and JSON numbers.
func ParseMoney(raw any) (Money, error) {
	switch v := raw.(type) {
	case Money:
		return v, nil
	case decimal.Decimal:
		return Money{v}, nil
	case float64:
		return Money{decimal.NewFromFloat(v).Round(2)}, nil
	case int:
		return Money{decimal.NewFromInt(int64(v))}, nil
	case int64:
		return Money{decimal.NewFromInt(v)}, nil
	case json.Number:
		return ParseMoney(v.String())
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", "."))
		if err != nil {
			return Money{}, fmt.Errorf("invalid amount %q", v)
		}
		return Money{d.Round(2)}, nil
	}
	return Money{}, fmt.Errorf("invalid amount of type %T", raw)
}

// MustMoney parses s or panics. Meant for fixtures and constants.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String renders the amount with two decimals.
func (m Money) String() string { return m.StringFixed(2) }

// Equal compares amounts numerically.
func (m Money) Equal(o Money) bool { return m.Decimal.Equal(o.Decimal) }

// MarshalDynamoDBAttributeValue stores amounts as DynamoDB numbers.
func (m Money) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: m.StringFixed(2)}, nil
}

// UnmarshalDynamoDBAttributeValue accepts numbers and numeric strings.
func (m *Money) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		m.Decimal = decimal.Zero
		return nil
	default:
		return fmt.Errorf("money: unsupported attribute %T", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	m.Decimal = d
	return nil
}

// MarshalJSON renders the amount as a fixed two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.StringFixed(2))
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		m.Decimal = decimal.Zero
		return nil
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
