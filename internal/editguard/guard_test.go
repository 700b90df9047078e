package editguard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registries(t *testing.T) map[string]Registry {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Registry{
		"redis":  NewRedisRegistry(client, time.Hour),
		"memory": NewMemoryRegistry(),
	}
}

func TestRegistry_RegisterRelease(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := reg.Register(ctx, "clem", "invoice:inv-1:total")
			require.NoError(t, err)
			b, err := reg.Register(ctx, "clem", "patient:p-1:phone")
			require.NoError(t, err)
			assert.NotEqual(t, a.Token, b.Token)

			dirty, err := Dirty(ctx, reg, "clem")
			require.NoError(t, err)
			assert.True(t, dirty)

			other, err := Dirty(ctx, reg, "marie")
			require.NoError(t, err)
			assert.False(t, other)

			require.NoError(t, reg.Release(ctx, "clem", a.Token))
			active, err := reg.Active(ctx, "clem")
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "patient:p-1:phone", active[0].Scope)

			require.NoError(t, reg.Release(ctx, "clem", b.Token))
			require.NoError(t, reg.Release(ctx, "clem", "unknown"))
			dirty, err = Dirty(ctx, reg, "clem")
			require.NoError(t, err)
			assert.False(t, dirty)
		})
	}
}

func TestRegistry_RejectsEmptyScope(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Register(context.Background(), "clem", "  ")
			assert.Error(t, err)
		})
	}
}

func TestRedisRegistry_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	reg := NewRedisRegistry(client, time.Minute)

	_, err := reg.Register(context.Background(), "clem", "invoice:inv-1:notes")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	dirty, err := Dirty(context.Background(), reg, "clem")
	require.NoError(t, err)
	assert.False(t, dirty)
}
