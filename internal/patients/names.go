package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NameCache keeps patient display names in Redis for list views that join
// many invoices to their patients. A nil *NameCache caches nothing.
type NameCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewNameCache(client *redis.Client, ttl time.Duration) *NameCache {
	if client == nil {
		return nil
	}
	return &NameCache{redis: client, ttl: ttl}
}

func nameKey(patientID string) string {
	return fmt.Sprintf("patient:name:%s", patientID)
}

// Get returns the cached name and whether it was present.
func (c *NameCache) Get(ctx context.Context, patientID string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	name, err := c.redis.Get(ctx, nameKey(patientID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("patients: get cached name: %w", err)
	}
	return name, true, nil
}

func (c *NameCache) Set(ctx context.Context, patientID, name string) error {
	if c == nil {
		return nil
	}
	if err := c.redis.Set(ctx, nameKey(patientID), name, c.ttl).Err(); err != nil {
		return fmt.Errorf("patients: cache name: %w", err)
	}
	return nil
}

func (c *NameCache) Invalidate(ctx context.Context, patientID string) error {
	if c == nil {
		return nil
	}
	if err := c.redis.Del(ctx, nameKey(patientID)).Err(); err != nil {
		return fmt.Errorf("patients: drop cached name: %w", err)
	}
	return nil
}
