// Package records is the typed record-store layer over the clinic's document
// database. DynamoDB is the production backend; an in-memory backend with the
// same semantics serves tests and local development.
package records

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyAttribute is the partition key of every clinic table.
const KeyAttribute = "id"

// Item is a raw record as stored in the document database.
type Item = map[string]types.AttributeValue

// Fields is a partial update: attribute name to new value. A nil value
// stores NULL.
type Fields map[string]any

// ListOptions controls one page of a filtered scan.
type ListOptions struct {
	Filter    Filter
	Limit     int32
	PageToken string
}

// Page is one page of scan results.
type Page struct {
	Items         []Item
	NextPageToken string
}

// Backend is the record-store contract shared by every table.
type Backend interface {
	Get(ctx context.Context, table, id string) (Item, error)
	List(ctx context.Context, table string, opts ListOptions) (Page, error)
	Create(ctx context.Context, table string, item Item) error
	// Update applies fields to an existing record. When cond is non-nil the
	// write only happens if cond holds on the stored record.
	Update(ctx context.Context, table, id string, fields Fields, cond Filter) (Item, error)
	// Delete removes a record and returns its last state, or nil when it did
	// not exist.
	Delete(ctx context.Context, table, id string) (Item, error)
	// Increment atomically adds by to a numeric counter attribute, creating
	// the record when absent, and returns the new value.
	Increment(ctx context.Context, table, id, field string, by int64) (int64, error)
}

func encodePageToken(lastID string) string {
	if lastID == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(lastID))
}

func decodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPageToken, token)
	}
	return string(raw), nil
}

func itemID(item Item) (string, bool) {
	s, ok := item[KeyAttribute].(*types.AttributeValueMemberS)
	if !ok || s.Value == "" {
		return "", false
	}
	return s.Value, true
}

func cloneItem(item Item) Item {
	if item == nil {
		return nil
	}
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
