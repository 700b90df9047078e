package records

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Filter is a predicate over a record's attributes. The same value is used
// as a list filter and as an update precondition.
type Filter interface {
	compile(b *exprBuilder) (string, error)
	match(item Item) (bool, error)
}

type comparison struct {
	field string
	op    string
	value any
}

// Eq matches records whose field equals value.
func Eq(field string, value any) Filter { return comparison{field: field, op: "=", value: value} }

// Ne matches records whose field differs from value.
func Ne(field string, value any) Filter { return comparison{field: field, op: "<>", value: value} }

// Lt matches records whose field is strictly lower than value.
func Lt(field string, value any) Filter { return comparison{field: field, op: "<", value: value} }

// Le matches records whose field is lower than or equal to value.
func Le(field string, value any) Filter { return comparison{field: field, op: "<=", value: value} }

// Gt matches records whose field is strictly greater than value.
func Gt(field string, value any) Filter { return comparison{field: field, op: ">", value: value} }

// Ge matches records whose field is greater than or equal to value.
func Ge(field string, value any) Filter { return comparison{field: field, op: ">=", value: value} }

func (c comparison) compile(b *exprBuilder) (string, error) {
	v, err := b.value(c.value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", b.name(c.field), c.op, v), nil
}

func (c comparison) match(item Item) (bool, error) {
	want, err := attributevalue.Marshal(c.value)
	if err != nil {
		return false, fmt.Errorf("records: marshal filter value: %w", err)
	}
	got, ok := item[c.field]
	if !ok {
		return c.op == "<>", nil
	}
	cmp, comparable := compareAttributes(got, want)
	if !comparable {
		return c.op == "<>", nil
	}
	switch c.op {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("records: unknown operator %q", c.op)
}

type between struct {
	field  string
	lo, hi any
}

// Between matches records whose field lies in [lo, hi].
func Between(field string, lo, hi any) Filter { return between{field: field, lo: lo, hi: hi} }

func (f between) compile(b *exprBuilder) (string, error) {
	lo, err := b.value(f.lo)
	if err != nil {
		return "", err
	}
	hi, err := b.value(f.hi)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", b.name(f.field), lo, hi), nil
}

func (f between) match(item Item) (bool, error) {
	ok, err := Ge(f.field, f.lo).match(item)
	if err != nil || !ok {
		return false, err
	}
	return Le(f.field, f.hi).match(item)
}

type contains struct {
	field string
	sub   string
}

// Contains matches records whose string field contains sub.
func Contains(field, sub string) Filter { return contains{field: field, sub: sub} }

func (f contains) compile(b *exprBuilder) (string, error) {
	v, err := b.value(f.sub)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("contains(%s, %s)", b.name(f.field), v), nil
}

func (f contains) match(item Item) (bool, error) {
	s, ok := item[f.field].(*types.AttributeValueMemberS)
	if !ok {
		return false, nil
	}
	return strings.Contains(s.Value, f.sub), nil
}

type exists struct {
	field string
	want  bool
}

// Exists matches records carrying field.
func Exists(field string) Filter { return exists{field: field, want: true} }

// NotExists matches records without field.
func NotExists(field string) Filter { return exists{field: field, want: false} }

func (f exists) compile(b *exprBuilder) (string, error) {
	fn := "attribute_exists"
	if !f.want {
		fn = "attribute_not_exists"
	}
	return fmt.Sprintf("%s(%s)", fn, b.name(f.field)), nil
}

func (f exists) match(item Item) (bool, error) {
	_, ok := item[f.field]
	return ok == f.want, nil
}

type logical struct {
	op      string
	filters []Filter
}

// And matches records satisfying every filter. Nil filters are skipped.
func And(filters ...Filter) Filter { return logical{op: "AND", filters: compact(filters)} }

// Or matches records satisfying at least one filter. Nil filters are skipped.
func Or(filters ...Filter) Filter { return logical{op: "OR", filters: compact(filters)} }

func (f logical) compile(b *exprBuilder) (string, error) {
	parts := make([]string, 0, len(f.filters))
	for _, sub := range f.filters {
		expr, err := sub.compile(b)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+expr+")")
	}
	return strings.Join(parts, " "+f.op+" "), nil
}

func (f logical) match(item Item) (bool, error) {
	if len(f.filters) == 0 {
		return true, nil
	}
	for _, sub := range f.filters {
		ok, err := sub.match(item)
		if err != nil {
			return false, err
		}
		if f.op == "OR" && ok {
			return true, nil
		}
		if f.op == "AND" && !ok {
			return false, nil
		}
	}
	return f.op == "AND", nil
}

func compact(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f == nil {
			continue
		}
		if l, ok := f.(logical); ok && len(l.filters) == 0 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isEmpty(f Filter) bool {
	if f == nil {
		return true
	}
	l, ok := f.(logical)
	return ok && len(l.filters) == 0
}

// Match reports whether item satisfies f. A nil filter matches everything.
func Match(f Filter, item Item) (bool, error) {
	if isEmpty(f) {
		return true, nil
	}
	return f.match(item)
}

// compareAttributes orders two scalar attribute values. The second result is
// false when the values are of different or unordered types.
func compareAttributes(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := decimal.NewFromString(av.Value)
		y, err2 := decimal.NewFromString(bv.Value)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return x.Cmp(y), true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		switch {
		case av.Value == bv.Value:
			return 0, true
		case !av.Value:
			return -1, true
		default:
			return 1, true
		}
	case *types.AttributeValueMemberNULL:
		if _, ok := b.(*types.AttributeValueMemberNULL); ok {
			return 0, true
		}
		return 0, false
	}
	return 0, false
}

// exprBuilder accumulates placeholder names and values for one request.
type exprBuilder struct {
	names     map[string]string
	byField   map[string]string
	values    map[string]types.AttributeValue
	nextName  int
	nextValue int
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		names:   map[string]string{},
		byField: map[string]string{},
		values:  map[string]types.AttributeValue{},
	}
}

func (b *exprBuilder) name(field string) string {
	if p, ok := b.byField[field]; ok {
		return p
	}
	p := fmt.Sprintf("#n%d", b.nextName)
	b.nextName++
	b.byField[field] = p
	b.names[p] = field
	return p
}

func (b *exprBuilder) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("records: marshal expression value: %w", err)
	}
	p := fmt.Sprintf(":v%d", b.nextValue)
	b.nextValue++
	b.values[p] = av
	return p, nil
}

// setExpression renders "SET #a = :x, ..." for fields in a stable order.
func (b *exprBuilder) setExpression(fields Fields) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := b.value(fields[k])
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s = %s", b.name(k), v))
	}
	return "SET " + strings.Join(parts, ", "), nil
}

func (b *exprBuilder) attributeNames() map[string]string {
	if len(b.names) == 0 {
		return nil
	}
	return b.names
}

func (b *exprBuilder) attributeValues() map[string]types.AttributeValue {
	if len(b.values) == 0 {
		return nil
	}
	return b.values
}
