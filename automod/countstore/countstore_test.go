package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketKey(t *testing.T) {
	assert := assert.New(t)

	ts := time.Date(2024, 3, 9, 17, 45, 0, 0, time.FixedZone("X", 2*3600))
	assert.Equal("quota/removal", bucketKey("quota", "removal", PeriodTotal, ts))
	assert.Equal("quota/removal/2024-03-09", bucketKey("quota", "removal", PeriodDay, ts))
	assert.Equal("quota/removal/2024-03-09T15", bucketKey("quota", "removal", PeriodHour, ts))
	assert.Equal("quota/removal", bucketKey("quota", "removal", "fortnight", ts))
}

func testCountStore(t *testing.T, cs CountStore) {
	assert := assert.New(t)
	ctx := context.Background()

	c, err := cs.GetCount(ctx, "test1", "val1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)

	assert.NoError(cs.Increment(ctx, "test1", "val1"))
	assert.NoError(cs.Increment(ctx, "test1", "val1"))
	for _, p := range AllPeriods {
		c, err = cs.GetCount(ctx, "test1", "val1", p)
		assert.NoError(err)
		assert.Equal(2, c, p)
	}

	assert.NoError(cs.IncrementPeriod(ctx, "test1", "val1", PeriodDay))
	c, err = cs.GetCount(ctx, "test1", "val1", PeriodDay)
	assert.NoError(err)
	assert.Equal(3, c)
	c, err = cs.GetCount(ctx, "test1", "val1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, c)
}

func TestMemCountStoreBasics(t *testing.T) {
	testCountStore(t, NewMemCountStore())
}

func TestMemCountStoreRollover(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()
	now := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	cs.now = func() time.Time { return now }
	assert.NoError(cs.Increment(ctx, "q", "v"))

	now = now.Add(time.Hour)
	c, err := cs.GetCount(ctx, "q", "v", PeriodDay)
	assert.NoError(err)
	assert.Equal(0, c)
	c, err = cs.GetCount(ctx, "q", "v", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	var wg sync.WaitGroup
	inc := func(val string, times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, "test", val))
			_, err := cs.GetCount(ctx, "test", val, PeriodHour)
			assert.NoError(err)
		}
	}
	wg.Add(4)
	go inc("val1", 10)
	go inc("val1", 10)
	go inc("val2", 6)
	go inc("val2", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, "test", "val1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "test", "val2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)
}

func TestRedisCountStore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	cs, err := NewRedisCountStore(ctx, "redis://"+mr.Addr())
	require.NoError(err)
	testCountStore(t, cs)

	// hour buckets expire, totals do not
	key := redisCountPrefix + bucketKey("test1", "val1", PeriodHour, time.Now())
	require.True(mr.TTL(key) > 0)
	require.Equal(time.Duration(0), mr.TTL(redisCountPrefix+bucketKey("test1", "val1", PeriodTotal, time.Now())))
}

func TestRedisCountStoreBadURL(t *testing.T) {
	_, err := NewRedisCountStore(context.Background(), "not a url")
	assert.Error(t, err)
}
