package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixitnow/chatdesk/internal/utils"
)

func TestJSONCache(t *testing.T) {
	rdb := utils.SetupTestRedis(t)
	ctx := context.Background()
	key := "test:json_cache:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { rdb.Del(context.Background(), key) })

	var out map[string]int
	hit, err := GetJSON(ctx, rdb, key, &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, SetJSON(ctx, rdb, key, map[string]int{"billing": 2}, time.Minute))
	hit, err = GetJSON(ctx, rdb, key, &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, out["billing"])

	ttl := rdb.TTL(ctx, key).Val()
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}

func TestDeleteByPrefix(t *testing.T) {
	rdb := utils.SetupTestRedis(t)
	ctx := context.Background()
	prefix := "test:prefix:" + time.Now().Format(time.RFC3339Nano) + ":"
	other := "test:other:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { rdb.Del(context.Background(), other) })

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, SetJSON(ctx, rdb, prefix+k, 1, time.Minute))
	}
	require.NoError(t, SetJSON(ctx, rdb, other, 1, time.Minute))

	n, err := DeleteByPrefix(ctx, rdb, prefix)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, rdb.Exists(ctx, prefix+"a", prefix+"b", prefix+"c").Val())
	assert.EqualValues(t, 1, rdb.Exists(ctx, other).Val())

	n, err = DeleteByPrefix(ctx, rdb, prefix)
	require.NoError(t, err)
	assert.Zero(t, n)
}
