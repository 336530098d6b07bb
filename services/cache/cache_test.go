package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

type payload struct {
	Total int    `json:"total"`
	Label string `json:"label"`
}

func newRedis(t *testing.T) (core.Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client), srv
}

func caches(t *testing.T) map[string]core.Cache {
	rc, _ := newRedis(t)
	return map[string]core.Cache{"redis": rc, "memory": NewMemoryCache()}
}

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			var got payload
			found, err := c.Get(ctx, "missing", &got)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, c.Set(ctx, "stats:students", payload{Total: 3, Label: "x"}, time.Minute))
			found, err = c.Get(ctx, "stats:students", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, payload{Total: 3, Label: "x"}, got)
		})
	}
}

func TestCache_DeleteAndPrefix(t *testing.T) {
	ctx := context.Background()
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"progress:course:c1:user:u1", "progress:course:c1:user:u2", "progress:course:c2:user:u1", "stats:admins"} {
				require.NoError(t, c.Set(ctx, key, 1, 0))
			}
			require.NoError(t, c.DeletePrefix(ctx, "progress:course:c1:"))
			require.NoError(t, c.Delete(ctx, "stats:admins"))

			var v int
			for key, want := range map[string]bool{
				"progress:course:c1:user:u1": false,
				"progress:course:c1:user:u2": false,
				"progress:course:c2:user:u1": true,
				"stats:admins":               false,
			} {
				found, err := c.Get(ctx, key, &v)
				require.NoError(t, err)
				assert.Equal(t, want, found, key)
			}
		})
	}
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, srv := newRedis(t)
	require.NoError(t, c.Set(ctx, "dashboard:admin", payload{Total: 1}, time.Minute))
	srv.FastForward(2 * time.Minute)

	var got payload
	found, err := c.Get(ctx, "dashboard:admin", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	defer func() { core.NowFunc = time.Now }()

	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	now = now.Add(time.Minute)

	var v int
	found, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemember_InvalidatedByEvents(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedis(t)
	logger := nopLogger{}
	inv := core.NewInvalidator(c, logger)

	calls := 0
	load := func(ctx context.Context) (core.CountStats, error) {
		calls++
		return core.CountStats{Total: calls}, nil
	}

	first, err := core.Remember(ctx, c, logger, core.StudentStatsKey, time.Minute, load)
	require.NoError(t, err)
	second, err := core.Remember(ctx, c, logger, core.StudentStatsKey, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	inv.Emit(ctx, core.StudentsChanged{})
	third, err := core.Remember(ctx, c, logger, core.StudentStatsKey, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Total)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
