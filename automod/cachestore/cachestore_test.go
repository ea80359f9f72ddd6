package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type cachedUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func testCacheStore(t *testing.T, cs CacheStore) {
	assert := assert.New(t)
	ctx := context.Background()

	v, err := cs.Get(ctx, "user", "100")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(SetJSON(ctx, cs, "user", "100", cachedUser{ID: "100", Name: "someone"}))
	u, ok, err := GetJSON[cachedUser](ctx, cs, "user", "100")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("someone", u.Name)

	assert.NoError(cs.Purge(ctx, "user", "100"))
	_, ok, err = GetJSON[cachedUser](ctx, cs, "user", "100")
	assert.NoError(err)
	assert.False(ok)

	// purging a missing key is not an error
	assert.NoError(cs.Purge(ctx, "user", "missing"))
}

func TestMemCacheStore(t *testing.T) {
	testCacheStore(t, NewMemCacheStore(10, time.Hour))
}

func TestRedisCacheStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	testCacheStore(t, NewRedisCacheStore(rdb, time.Hour))
}

func TestGetJSONCorruptEntry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := NewMemCacheStore(10, time.Hour)

	assert.NoError(cs.Set(ctx, "user", "100", "{not json"))
	_, ok, err := GetJSON[cachedUser](ctx, cs, "user", "100")
	assert.NoError(err)
	assert.False(ok)
}
