package records

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Op names a backend operation, used by fault injection.
type Op string

const (
	OpGet       Op = "get"
	OpList      Op = "list"
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpIncrement Op = "increment"
)

// FaultFunc lets tests fail individual requests. Returning nil lets the
// request through.
type FaultFunc func(op Op, table, id string) error

// MemoryBackend keeps tables in process memory. Scans walk ids in ascending
// order and Limit bounds the number of records examined, as DynamoDB does.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]map[string]Item
	fault  FaultFunc
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: map[string]map[string]Item{}}
}

// SetFault installs fn as the fault injector; nil clears it.
func (m *MemoryBackend) SetFault(fn FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

func (m *MemoryBackend) injected(op Op, table, id string) error {
	if m.fault == nil {
		return nil
	}
	return m.fault(op, table, id)
}

func (m *MemoryBackend) Get(_ context.Context, table, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected(OpGet, table, id); err != nil {
		return nil, err
	}
	item, ok := m.tables[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(item), nil
}

func (m *MemoryBackend) List(_ context.Context, table string, opts ListOptions) (Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected(OpList, table, ""); err != nil {
		return Page{}, err
	}
	start, err := decodePageToken(opts.PageToken)
	if err != nil {
		return Page{}, err
	}

	rows := m.tables[table]
	ids := make([]string, 0, len(rows))
	for id := range rows {
		if id > start {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var page Page
	for i, id := range ids {
		if opts.Limit > 0 && int32(i) == opts.Limit {
			page.NextPageToken = encodePageToken(ids[i-1])
			break
		}
		ok, err := Match(opts.Filter, rows[id])
		if err != nil {
			return Page{}, err
		}
		if ok {
			page.Items = append(page.Items, cloneItem(rows[id]))
		}
	}
	return page, nil
}

func (m *MemoryBackend) Create(_ context.Context, table string, item Item) error {
	id, ok := itemID(item)
	if !ok {
		return fmt.Errorf("records: create %s: item has no %q attribute", table, KeyAttribute)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpCreate, table, id); err != nil {
		return err
	}
	rows := m.rows(table)
	if _, exists := rows[id]; exists {
		return ErrAlreadyExists
	}
	rows[id] = cloneItem(item)
	return nil
}

func (m *MemoryBackend) Update(_ context.Context, table, id string, fields Fields, cond Filter) (Item, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("records: update %s/%s: no fields", table, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpUpdate, table, id); err != nil {
		return nil, err
	}
	current, ok := m.tables[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	holds, err := Match(cond, current)
	if err != nil {
		return nil, err
	}
	if !holds {
		return nil, ErrConditionFailed
	}
	next := cloneItem(current)
	for name, value := range fields {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("records: marshal %s: %w", name, err)
		}
		next[name] = av
	}
	m.tables[table][id] = next
	return cloneItem(next), nil
}

func (m *MemoryBackend) Delete(_ context.Context, table, id string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpDelete, table, id); err != nil {
		return nil, err
	}
	item, ok := m.tables[table][id]
	if !ok {
		return nil, nil
	}
	delete(m.tables[table], id)
	return item, nil
}

func (m *MemoryBackend) Increment(_ context.Context, table, id, field string, by int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpIncrement, table, id); err != nil {
		return 0, err
	}
	rows := m.rows(table)
	item, ok := rows[id]
	if !ok {
		item = Item{KeyAttribute: &types.AttributeValueMemberS{Value: id}}
	} else {
		item = cloneItem(item)
	}
	var current int64
	if n, ok := item[field].(*types.AttributeValueMemberN); ok {
		parsed, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("records: counter %s/%s.%s is not an integer: %w", table, id, field, err)
		}
		current = parsed
	}
	current += by
	item[field] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current, 10)}
	rows[id] = item
	return current, nil
}

func (m *MemoryBackend) rows(table string) map[string]Item {
	rows, ok := m.tables[table]
	if !ok {
		rows = map[string]Item{}
		m.tables[table] = rows
	}
	return rows
}
