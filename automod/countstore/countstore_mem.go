package countstore

import (
	"context"
	"sync"
)

type MemCountStore struct {
	lk     sync.Mutex
	Counts map[string]int
}

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		Counts: make(map[string]int),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, ref Ref) (int, bool, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	v, ok := s.Counts[counterBucket(ref)]
	return v, ok, nil
}

func (s *MemCountStore) ChangeCount(ctx context.Context, ref Ref, initial, delta int) (int, int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	k := counterBucket(ref)
	old, ok := s.Counts[k]
	if !ok {
		old = initial
	}
	s.Counts[k] = old + delta
	return old, old + delta, nil
}

func (s *MemCountStore) SetCount(ctx context.Context, ref Ref, initial, val int) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	k := counterBucket(ref)
	old, ok := s.Counts[k]
	if !ok {
		old = initial
	}
	s.Counts[k] = val
	return old, nil
}
