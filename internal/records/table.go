package records

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
)

// Table is a typed view over one backend table. T must carry `dynamodbav`
// tags with an "id" attribute.
type Table[T any] struct {
	backend Backend
	name    string
}

func NewTable[T any](backend Backend, name string) *Table[T] {
	if backend == nil {
		panic("records: backend cannot be nil")
	}
	if name == "" {
		panic("records: table name cannot be empty")
	}
	return &Table[T]{backend: backend, name: name}
}

// Name returns the logical table name.
func (t *Table[T]) Name() string { return t.name }

func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, fmt.Errorf("records: %s: id required", t.name)
	}
	item, err := t.backend.Get(ctx, t.name, id)
	if err != nil {
		return zero, err
	}
	return t.decode(item)
}

// List returns one page of records matching opts.Filter.
func (t *Table[T]) List(ctx context.Context, opts ListOptions) ([]T, string, error) {
	page, err := t.backend.List(ctx, t.name, opts)
	if err != nil {
		return nil, "", err
	}
	out := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		v, err := t.decode(item)
		if err != nil {
			return nil, "", err
		}
		out = append(out, v)
	}
	return out, page.NextPageToken, nil
}

// ListAll walks every page of records matching filter.
func (t *Table[T]) ListAll(ctx context.Context, filter Filter) ([]T, error) {
	var (
		all   []T
		token string
	)
	for {
		page, next, err := t.List(ctx, ListOptions{Filter: filter, PageToken: token})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		token = next
	}
}

func (t *Table[T]) Create(ctx context.Context, v T) (T, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("records: marshal %s: %w", t.name, err)
	}
	if err := t.backend.Create(ctx, t.name, item); err != nil {
		var zero T
		return zero, err
	}
	return t.decode(item)
}

// Update applies a partial write and returns the stored representation.
func (t *Table[T]) Update(ctx context.Context, id string, fields Fields, cond Filter) (T, error) {
	var zero T
	if id == "" {
		return zero, fmt.Errorf("records: %s: id required", t.name)
	}
	item, err := t.backend.Update(ctx, t.name, id, fields, cond)
	if err != nil {
		return zero, err
	}
	return t.decode(item)
}

// Delete removes a record, returning its last state or nil when absent.
func (t *Table[T]) Delete(ctx context.Context, id string) (*T, error) {
	item, err := t.backend.Delete(ctx, t.name, id)
	if err != nil || item == nil {
		return nil, err
	}
	v, err := t.decode(item)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (t *Table[T]) decode(item Item) (T, error) {
	var v T
	if err := attributevalue.UnmarshalMap(item, &v); err != nil {
		return v, fmt.Errorf("records: decode %s: %w", t.name, err)
	}
	return v, nil
}
