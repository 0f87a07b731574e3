package cache

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStore(client, nil, metrics.NewNop())
}

func TestRedisStoreGetSet(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "patient:1:medical-info")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "patient:1:medical-info", []byte(`{"dfg":85}`), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("patient:1:medical-info"))

	val, found, err := store.Get(ctx, "patient:1:medical-info")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"dfg":85}`, string(val))

	mr.FastForward(time.Minute + time.Second)
	_, found, err = store.Get(ctx, "patient:1:medical-info")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreDeleteByPatternSpansScanPages(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()

	// several times the SCAN batch so the walk needs more than one cursor
	for i := 0; i < 3*scanBatch+7; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("notifications:owner-a:%d", i), "[]"))
	}
	require.NoError(t, mr.Set("notifications:owner-b:0", "[]"))
	require.NoError(t, mr.Set("patient:1:medical-info", "{}"))

	require.NoError(t, store.DeleteByPattern(ctx, "notifications:owner-a:*"))

	keys := mr.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"notifications:owner-b:0", "patient:1:medical-info"}, keys)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, store := newRedisStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, store.DeleteByPattern(context.Background(), "notifications:*"))

	// a cache over a dead store degrades to misses
	c := New(store, zerolog.Nop(), metrics.NewNop())
	var dst entry
	assert.False(t, c.Get(context.Background(), "k", &dst))
}
