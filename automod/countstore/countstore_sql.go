package countstore

import (
	"context"
	"errors"

	"github.com/zeppelin-bot/zeppelin/models"

	"gorm.io/gorm"
)

// Counter values persisted in the relational database, so they survive restarts.
type SQLCountStore struct {
	db *gorm.DB
}

var _ CountStore = (*SQLCountStore)(nil)

func NewSQLCountStore(db *gorm.DB) (*SQLCountStore, error) {
	if err := db.AutoMigrate(&models.CounterValue{}); err != nil {
		return nil, err
	}
	return &SQLCountStore{db: db}, nil
}

// Map conditions, since struct conditions would skip empty channel and user IDs.
func refQuery(ref Ref) map[string]any {
	return map[string]any{
		"guild_id":   ref.GuildID,
		"counter":    ref.Counter,
		"channel_id": ref.ChannelID,
		"user_id":    ref.UserID,
	}
}

func refRow(ref Ref) models.CounterValue {
	return models.CounterValue{
		GuildID:   ref.GuildID,
		Counter:   ref.Counter,
		ChannelID: ref.ChannelID,
		UserID:    ref.UserID,
	}
}

func (s *SQLCountStore) GetCount(ctx context.Context, ref Ref) (int, bool, error) {
	var row models.CounterValue
	err := s.db.WithContext(ctx).Where(refQuery(ref)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	return row.Value, true, nil
}

func (s *SQLCountStore) update(ctx context.Context, ref Ref, initial int, fn func(old int) int) (int, int, error) {
	var old, val int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.CounterValue
		err := tx.Where(refQuery(ref)).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			old = initial
			val = fn(old)
			row = refRow(ref)
			row.Value = val
			return tx.Create(&row).Error
		} else if err != nil {
			return err
		}
		old = row.Value
		val = fn(old)
		return tx.Model(&row).Update("value", val).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return old, val, nil
}

func (s *SQLCountStore) ChangeCount(ctx context.Context, ref Ref, initial, delta int) (int, int, error) {
	return s.update(ctx, ref, initial, func(old int) int { return old + delta })
}

func (s *SQLCountStore) SetCount(ctx context.Context, ref Ref, initial, val int) (int, error) {
	old, _, err := s.update(ctx, ref, initial, func(int) int { return val })
	return old, err
}
