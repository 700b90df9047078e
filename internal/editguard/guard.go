// Package editguard tracks unsaved edits so the UI can warn before a user
// navigates away.
package editguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Edit is one registered in-progress edit.
type Edit struct {
	Token     string    `json:"token"`
	Scope     string    `json:"scope"`
	StartedAt time.Time `json:"startedAt"`
}

// Registry stores active edits per user.
type Registry interface {
	Register(ctx context.Context, user, scope string) (Edit, error)
	Release(ctx context.Context, user, token string) error
	Active(ctx context.Context, user string) ([]Edit, error)
}

// Dirty reports whether user has any unsaved edit.
func Dirty(ctx context.Context, r Registry, user string) (bool, error) {
	edits, err := r.Active(ctx, user)
	return len(edits) > 0, err
}

func newEdit(scope string, now time.Time) (Edit, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return Edit{}, errors.New("editguard: scope required")
	}
	return Edit{Token: uuid.NewString(), Scope: scope, StartedAt: now.UTC()}, nil
}

func sortEdits(edits []Edit) {
	sort.Slice(edits, func(i, j int) bool { return edits[i].StartedAt.Before(edits[j].StartedAt) })
}

// RedisRegistry shares edits across API instances. Abandoned edits expire
// after ttl without activity.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisRegistry{client: client, ttl: ttl, now: time.Now}
}

func userKey(user string) string { return "editguard:" + user }

func (r *RedisRegistry) Register(ctx context.Context, user, scope string) (Edit, error) {
	e, err := newEdit(scope, r.now())
	if err != nil {
		return Edit{}, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Edit{}, err
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, userKey(user), e.Token, data)
	pipe.Expire(ctx, userKey(user), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Edit{}, fmt.Errorf("editguard: register: %w", err)
	}
	return e, nil
}

func (r *RedisRegistry) Release(ctx context.Context, user, token string) error {
	if err := r.client.HDel(ctx, userKey(user), token).Err(); err != nil {
		return fmt.Errorf("editguard: release: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Active(ctx context.Context, user string) ([]Edit, error) {
	raw, err := r.client.HGetAll(ctx, userKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("editguard: list: %w", err)
	}
	edits := make([]Edit, 0, len(raw))
	for _, v := range raw {
		var e Edit
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		edits = append(edits, e)
	}
	sortEdits(edits)
	return edits, nil
}

// MemoryRegistry keeps edits in process. Used when Redis is not configured.
type MemoryRegistry struct {
	mu    sync.Mutex
	edits map[string]map[string]Edit
	now   func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{edits: map[string]map[string]Edit{}, now: time.Now}
}

func (m *MemoryRegistry) Register(_ context.Context, user, scope string) (Edit, error) {
	e, err := newEdit(scope, m.now())
	if err != nil {
		return Edit{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edits[user] == nil {
		m.edits[user] = map[string]Edit{}
	}
	m.edits[user][e.Token] = e
	return e, nil
}

func (m *MemoryRegistry) Release(_ context.Context, user, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edits[user], token)
	if len(m.edits[user]) == 0 {
		delete(m.edits, user)
	}
	return nil
}

func (m *MemoryRegistry) Active(_ context.Context, user string) ([]Edit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edits := make([]Edit, 0, len(m.edits[user]))
	for _, e := range m.edits[user] {
		edits = append(edits, e)
	}
	sortEdits(edits)
	return edits, nil
}
