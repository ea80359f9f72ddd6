package countstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var redisCountPrefix string = "count/"

// KEYS[1] = counter key; ARGV[1] = initial value; ARGV[2] = delta. returns {old, new}
var changeScript = redis.NewScript(`
local old = redis.call("GET", KEYS[1])
if not old then
	old = tonumber(ARGV[1])
else
	old = tonumber(old)
end
local new = old + tonumber(ARGV[2])
redis.call("SET", KEYS[1], new)
return {old, new}
`)

// KEYS[1] = counter key; ARGV[1] = initial value; ARGV[2] = new value. returns old
var setScript = redis.NewScript(`
local old = redis.call("GET", KEYS[1])
if not old then
	old = tonumber(ARGV[1])
else
	old = tonumber(old)
end
redis.call("SET", KEYS[1], ARGV[2])
return old
`)

type RedisCountStore struct {
	Client *redis.Client
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(rdb *redis.Client) *RedisCountStore {
	return &RedisCountStore{Client: rdb}
}

func (s *RedisCountStore) GetCount(ctx context.Context, ref Ref) (int, bool, error) {
	c, err := s.Client.Get(ctx, redisCountPrefix+counterBucket(ref)).Int()
	if err == redis.Nil {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	return c, true, nil
}

// counters are changed with a script, so concurrent processes can't interleave the read and write
func (s *RedisCountStore) ChangeCount(ctx context.Context, ref Ref, initial, delta int) (int, int, error) {
	vals, err := changeScript.Run(ctx, s.Client, []string{redisCountPrefix + counterBucket(ref)}, initial, delta).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	return int(vals[0]), int(vals[1]), nil
}

func (s *RedisCountStore) SetCount(ctx context.Context, ref Ref, initial, val int) (int, error) {
	old, err := setScript.Run(ctx, s.Client, []string{redisCountPrefix + counterBucket(ref)}, initial, val).Int()
	if err != nil {
		return 0, err
	}
	return old, nil
}
