package cooldownstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisCooldownPrefix string = "cooldown/"

type RedisCooldownStore struct {
	Client *redis.Client
}

var _ CooldownStore = (*RedisCooldownStore)(nil)

func NewRedisCooldownStore(rdb *redis.Client) *RedisCooldownStore {
	return &RedisCooldownStore{Client: rdb}
}

func (s *RedisCooldownStore) GetExpiry(ctx context.Context, key string) (time.Time, error) {
	ms, err := s.Client.Get(ctx, redisCooldownPrefix+key).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	} else if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (s *RedisCooldownStore) SetExpiry(ctx context.Context, key string, expiry time.Time) error {
	// the stored expiry is authoritative; the redis TTL only garbage-collects old keys
	ttl := time.Until(expiry) + time.Hour
	if ttl < time.Hour {
		ttl = time.Hour
	}
	return s.Client.Set(ctx, redisCooldownPrefix+key, expiry.UnixMilli(), ttl).Err()
}
