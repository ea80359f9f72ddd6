package countstore

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testCountStoreBasics(t *testing.T, cs CountStore) {
	assert := assert.New(t)
	ctx := context.Background()

	ref := Ref{GuildID: "g1", Counter: "points", UserID: "u1"}
	c, ok, err := cs.GetCount(ctx, ref)
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(0, c)

	old, val, err := cs.ChangeCount(ctx, ref, 10, 2)
	assert.NoError(err)
	assert.Equal(10, old)
	assert.Equal(12, val)

	old, val, err = cs.ChangeCount(ctx, ref, 10, -5)
	assert.NoError(err)
	assert.Equal(12, old)
	assert.Equal(7, val)

	c, ok, err = cs.GetCount(ctx, ref)
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(7, c)

	old, err = cs.SetCount(ctx, ref, 10, 1)
	assert.NoError(err)
	assert.Equal(7, old)
	c, _, err = cs.GetCount(ctx, ref)
	assert.NoError(err)
	assert.Equal(1, c)

	// per-channel values are distinct
	other := Ref{GuildID: "g1", Counter: "points", ChannelID: "c1", UserID: "u1"}
	old, err = cs.SetCount(ctx, other, 3, 4)
	assert.NoError(err)
	assert.Equal(3, old)
	c, _, err = cs.GetCount(ctx, ref)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestMemCountStoreBasics(t *testing.T) {
	testCountStoreBasics(t, NewMemCountStore())
}

func TestRedisCountStoreBasics(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	testCountStoreBasics(t, &RedisCountStore{Client: rdb})
}

func TestSQLCountStoreBasics(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	// each connection to ":memory:" is a distinct database
	sqldb, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqldb.SetMaxOpenConns(1)
	cs, err := NewSQLCountStore(db)
	if err != nil {
		t.Fatal(err)
	}
	testCountStoreBasics(t, cs)
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()
	ref := Ref{GuildID: "g1", Counter: "points"}

	// run this with `-race`
	var wg sync.WaitGroup
	fnInc := func(times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			_, _, err := cs.ChangeCount(ctx, ref, 0, 1)
			assert.NoError(err)
		}
	}
	wg.Add(4)
	for i := 0; i < 4; i++ {
		go fnInc(10)
	}
	wg.Wait()

	c, _, err := cs.GetCount(ctx, ref)
	assert.NoError(err)
	assert.Equal(40, c)
}
