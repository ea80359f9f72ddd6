package modstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zeppelin-bot/zeppelin/models"
)

type MemModStore struct {
	lk       sync.Mutex
	cases    map[string][]models.Case
	mutes    map[string]models.Mute
	antiraid map[string]string
	nextID   uint64
}

var _ ModStore = (*MemModStore)(nil)

func NewMemModStore() *MemModStore {
	return &MemModStore{
		cases:    make(map[string][]models.Case),
		mutes:    make(map[string]models.Mute),
		antiraid: make(map[string]string),
	}
}

func (s *MemModStore) CreateCase(ctx context.Context, in CaseInput) (*models.Case, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.nextID++
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	c := models.Case{
		ID:          s.nextID,
		GuildID:     in.GuildID,
		CaseNumber:  len(s.cases[in.GuildID]) + 1,
		Type:        in.Type,
		UserID:      in.UserID,
		UserName:    in.UserName,
		ModeratorID: in.ModeratorID,
		Reason:      in.Reason,
		Automatic:   in.Automatic,
		CreatedAt:   in.CreatedAt,
	}
	s.cases[in.GuildID] = append(s.cases[in.GuildID], c)
	return &c, nil
}

func (s *MemModStore) ListCases(ctx context.Context, guildID string, limit int) ([]models.Case, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	l := s.cases[guildID]
	out := []models.Case{}
	for i := len(l) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, l[i])
	}
	return out, nil
}

func (s *MemModStore) AddMute(ctx context.Context, guildID, userID string, caseID uint64, expiresAt *time.Time) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.mutes[guildID+"/"+userID] = models.Mute{
		GuildID:   guildID,
		UserID:    userID,
		CaseID:    caseID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *MemModStore) GetMute(ctx context.Context, guildID, userID string) (*models.Mute, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	m, ok := s.mutes[guildID+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemModStore) RemoveMute(ctx context.Context, guildID, userID string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.mutes, guildID+"/"+userID)
	return nil
}

func (s *MemModStore) ExpiredMutes(ctx context.Context, before time.Time, limit int) ([]models.Mute, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []models.Mute
	for _, m := range s.mutes {
		if m.ExpiresAt != nil && !m.ExpiresAt.After(before) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemModStore) GetAntiraidLevel(ctx context.Context, guildID string) (string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.antiraid[guildID], nil
}

func (s *MemModStore) SetAntiraidLevel(ctx context.Context, guildID, level string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if level == "" {
		delete(s.antiraid, guildID)
		return nil
	}
	s.antiraid[guildID] = level
	return nil
}
