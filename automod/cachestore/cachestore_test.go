package cachestore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheStore(t *testing.T, cs CacheStore) {
	assert := assert.New(t)
	ctx := context.Background()

	_, ok, err := cs.Get(ctx, "line", "c1/m1")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(cs.Set(ctx, "line", "c1/m1", "#general: hello"))
	v, ok, err := cs.Get(ctx, "line", "c1/m1")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("#general: hello", v)

	// namespaces are separate
	_, ok, err = cs.Get(ctx, "other", "c1/m1")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(cs.Purge(ctx, "line", "c1/m1"))
	_, ok, err = cs.Get(ctx, "line", "c1/m1")
	assert.NoError(err)
	assert.False(ok)

	// purging a missing key is fine
	assert.NoError(cs.Purge(ctx, "line", "nope"))
}

func TestMemCacheStore(t *testing.T) {
	testCacheStore(t, NewMemCacheStore(100, time.Hour))
}

func TestMemCacheStoreExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(100, 20*time.Millisecond)
	assert.NoError(cs.Set(ctx, "line", "k", "v"))
	assert.Eventually(func() bool {
		_, ok, _ := cs.Get(ctx, "line", "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemCacheStoreCapacity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(2, time.Hour)
	assert.NoError(cs.Set(ctx, "line", "a", "1"))
	assert.NoError(cs.Set(ctx, "line", "b", "2"))
	assert.NoError(cs.Set(ctx, "line", "c", "3"))
	_, ok, _ := cs.Get(ctx, "line", "a")
	assert.False(ok)
	v, ok, _ := cs.Get(ctx, "line", "c")
	assert.True(ok)
	assert.Equal("3", v)
}

func TestRedisCacheStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cs, err := NewRedisCacheStore(context.Background(), "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	testCacheStore(t, cs)
}

func TestMemcachedKey(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("ninjaguard/line/123/456", memcachedKey("line", "123/456"))

	spaced := memcachedKey("line", "has a space")
	assert.NotContains(spaced, " ")
	assert.Equal("ninjaguard/line/h/", spaced[:len("ninjaguard/line/h/")])

	long := memcachedKey("line", strings.Repeat("x", 400))
	assert.LessOrEqual(len(long), memcachedMaxKeyLen)
	assert.Equal(long, memcachedKey("line", strings.Repeat("x", 400)))
}

func TestMemcachedExpiryClamp(t *testing.T) {
	assert.Equal(t, int32(60), NewMemcachedCacheStore(time.Minute, "127.0.0.1:11211").expiry)
	assert.Equal(t, int32(memcachedMaxExpiry), NewMemcachedCacheStore(365*24*time.Hour, "127.0.0.1:11211").expiry)
}
