package views

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestInvalidateBumpsEveryPath(t *testing.T) {
	mr, client := newTestClient(t)
	inv := NewRedisInvalidator(client)
	ctx := context.Background()

	require.NoError(t, inv.Invalidate(ctx, "/suppliers", "/projects/7"))
	require.NoError(t, inv.Invalidate(ctx, "/suppliers"))

	got, err := mr.Get(VersionKey("/suppliers"))
	require.NoError(t, err)
	require.Equal(t, "2", got)
	got, err = mr.Get(VersionKey("/projects/7"))
	require.NoError(t, err)
	require.Equal(t, "1", got)
}

func TestInvalidateWithoutClientIsNoop(t *testing.T) {
	var inv *RedisInvalidator
	require.NoError(t, inv.Invalidate(context.Background(), "/dashboard"))
	require.NoError(t, NewRedisInvalidator(nil).Invalidate(context.Background(), "/dashboard"))
}

func TestFetchJSONReloadsAfterInvalidation(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewCache(client, time.Minute)
	inv := NewRedisInvalidator(client)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	fetch := func() map[string]int {
		key, err := cache.BuildKey(ctx, "/supplier-orders", "balance", "1")
		require.NoError(t, err)
		var out map[string]int
		require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
		return out
	}

	require.Equal(t, 1, fetch()["calls"])
	require.Equal(t, 1, fetch()["calls"])
	require.Equal(t, 1, calls)

	require.NoError(t, inv.Invalidate(ctx, "/supplier-orders"))
	require.Equal(t, 2, fetch()["calls"])
	require.Equal(t, 2, calls)
}

func TestFetchJSONWithoutClientUsesLoader(t *testing.T) {
	cache := NewCache(nil, time.Minute)
	var out []string
	err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out)

	require.Error(t, cache.FetchJSON(context.Background(), "k", &out, nil))
}

func TestListenReceivesBumps(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewCache(client, time.Minute)
	inv := NewRedisInvalidator(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]int64{}
	require.NoError(t, cache.Listen(ctx, func(path string, version int64) {
		mu.Lock()
		defer mu.Unlock()
		seen[path] = version
	}))

	require.NoError(t, inv.Invalidate(ctx, "/accounting"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["/accounting"] == 1
	}, 2*time.Second, 10*time.Millisecond)
}
