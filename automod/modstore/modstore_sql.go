package modstore

import (
	"context"
	"errors"
	"time"

	"github.com/zeppelin-bot/zeppelin/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLModStore struct {
	db *gorm.DB
}

var _ ModStore = (*SQLModStore)(nil)

// Runs schema migrations for the tables this store uses.
func NewSQLModStore(db *gorm.DB) (*SQLModStore, error) {
	if err := db.AutoMigrate(&models.Case{}, &models.Mute{}, &models.AntiraidLevel{}); err != nil {
		return nil, err
	}
	return &SQLModStore{db: db}, nil
}

func (s *SQLModStore) CreateCase(ctx context.Context, in CaseInput) (*models.Case, error) {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	c := models.Case{
		GuildID:     in.GuildID,
		Type:        in.Type,
		UserID:      in.UserID,
		UserName:    in.UserName,
		ModeratorID: in.ModeratorID,
		Reason:      in.Reason,
		Automatic:   in.Automatic,
		CreatedAt:   in.CreatedAt,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&models.Case{}).Where("guild_id = ?", in.GuildID).Select("COALESCE(MAX(case_number), 0)").Scan(&last).Error; err != nil {
			return err
		}
		c.CaseNumber = last + 1
		return tx.Create(&c).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLModStore) ListCases(ctx context.Context, guildID string, limit int) ([]models.Case, error) {
	var out []models.Case
	q := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("case_number DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLModStore) AddMute(ctx context.Context, guildID, userID string, caseID uint64, expiresAt *time.Time) error {
	m := models.Mute{
		GuildID:   guildID,
		UserID:    userID,
		CaseID:    caseID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"case_id", "expires_at", "created_at"}),
	}).Create(&m).Error
}

func (s *SQLModStore) GetMute(ctx context.Context, guildID, userID string) (*models.Mute, error) {
	var m models.Mute
	err := s.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLModStore) RemoveMute(ctx context.Context, guildID, userID string) error {
	return s.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).Delete(&models.Mute{}).Error
}

func (s *SQLModStore) ExpiredMutes(ctx context.Context, before time.Time, limit int) ([]models.Mute, error) {
	var out []models.Mute
	q := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", before).Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLModStore) GetAntiraidLevel(ctx context.Context, guildID string) (string, error) {
	var lvl models.AntiraidLevel
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&lvl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return lvl.Level, nil
}

func (s *SQLModStore) SetAntiraidLevel(ctx context.Context, guildID, level string) error {
	if level == "" {
		return s.db.WithContext(ctx).Where("guild_id = ?", guildID).Delete(&models.AntiraidLevel{}).Error
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
	}).Create(&models.AntiraidLevel{GuildID: guildID, Level: level, UpdatedAt: time.Now()}).Error
}
