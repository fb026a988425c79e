package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, redis.UniversalClient) {
	t.Helper()
	redisServer, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(redisServer.Close)

	client, err := NewRedisClient(fmt.Sprintf("redis://%s/0", redisServer.Addr()), false)
	require.NoError(t, err)
	store := NewRedisStore(client)
	t.Cleanup(func() { _ = store.Close() })
	return store, client
}

func TestRedisStorePushPopFIFO(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "to_run_1", "a", "b"))
	require.NoError(t, store.Push(ctx, "to_run_1", "c"))

	n, err := store.Len(ctx, "to_run_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var got []string
	for {
		v, ok, err := store.Pop(ctx, "to_run_1")
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRedisStorePopMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	v, ok, err := store.Pop(context.Background(), "to_run_missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestRedisStorePushNothing(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "stat_1"))
	assert.Equal(t, int64(0), client.Exists(ctx, "stat_1").Val())
}

func TestRedisStoreDelete(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	keys := KeysFor("", "7")

	for _, k := range keys.All() {
		require.NoError(t, store.Push(ctx, k, "x"))
	}
	require.NoError(t, store.Delete(ctx, keys.All()...))
	assert.Equal(t, int64(0), client.Exists(ctx, keys.All()...).Val())

	// deleting keys that are already gone is not an error
	require.NoError(t, store.Delete(ctx, keys.All()...))
}

func TestRedisStoreConcurrentPopIsExactlyOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const items = 200
	var pushed []string
	for i := 0; i < items; i++ {
		pushed = append(pushed, fmt.Sprintf("file_%03d_test.go", i))
	}
	require.NoError(t, store.Push(ctx, "to_run_x", pushed...))

	var (
		mu     sync.Mutex
		popped []string
		wg     sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok, err := store.Pop(ctx, "to_run_x")
				if err != nil {
					t.Errorf("pop failed: %v", err)
					return
				}
				if !ok {
					return
				}
				mu.Lock()
				popped = append(popped, v)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Strings(popped)
	assert.Equal(t, pushed, popped)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("http://not-redis", false)
	require.Error(t, err)
}

func TestCheckConnection(t *testing.T) {
	_, client := newTestStore(t)
	require.NoError(t, CheckConnection(context.Background(), client))

	unreachable, err := NewRedisClient("redis://127.0.0.1:1/0", false)
	require.NoError(t, err)
	defer unreachable.Close()
	require.Error(t, CheckConnection(context.Background(), unreachable))
}
