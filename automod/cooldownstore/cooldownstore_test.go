package cooldownstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func testCooldownStore(t *testing.T, cs CooldownStore) {
	assert := assert.New(t)
	ctx := context.Background()

	key := Key("g1", "spam-guard", "u1")
	exp, err := cs.GetExpiry(ctx, key)
	assert.NoError(err)
	assert.True(exp.IsZero())

	want := time.UnixMilli(time.Now().Add(30 * time.Second).UnixMilli())
	assert.NoError(cs.SetExpiry(ctx, key, want))
	exp, err = cs.GetExpiry(ctx, key)
	assert.NoError(err)
	assert.True(want.Equal(exp))

	// other users unaffected
	exp, err = cs.GetExpiry(ctx, Key("g1", "spam-guard", "u2"))
	assert.NoError(err)
	assert.True(exp.IsZero())
}

func TestKey(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("g1/rule/u1", Key("g1", "rule", "u1"))
	assert.Equal("g1/rule/global", Key("g1", "rule", ""))
}

func TestMemCooldownStore(t *testing.T) {
	testCooldownStore(t, NewMemCooldownStore())
}

func TestRedisCooldownStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	testCooldownStore(t, &RedisCooldownStore{Client: rdb})
}
