package cooldownstore

import (
	"context"
	"sync"
	"time"
)

type MemCooldownStore struct {
	lk      sync.Mutex
	Expires map[string]time.Time
}

func NewMemCooldownStore() *MemCooldownStore {
	return &MemCooldownStore{
		Expires: make(map[string]time.Time),
	}
}

func (s *MemCooldownStore) GetExpiry(ctx context.Context, key string) (time.Time, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.Expires[key], nil
}

func (s *MemCooldownStore) SetExpiry(ctx context.Context, key string, expiry time.Time) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.Expires[key] = expiry
	s.pruneLocked(expiry)
	return nil
}

// drops entries which expired well before the most recently written expiry
func (s *MemCooldownStore) pruneLocked(latest time.Time) {
	if len(s.Expires) < 1_000 {
		return
	}
	cutoff := latest.Add(-24 * time.Hour)
	for k, v := range s.Expires {
		if v.Before(cutoff) {
			delete(s.Expires, k)
		}
	}
}
