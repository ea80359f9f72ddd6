package models

import (
	"time"
)

// A moderation case. Case numbers are sequential per guild.
type Case struct {
	ID          uint64 `gorm:"primaryKey"`
	GuildID     string `gorm:"not null;uniqueIndex:idx_case_guild_number,priority:1"`
	CaseNumber  int    `gorm:"not null;uniqueIndex:idx_case_guild_number,priority:2"`
	Type        string `gorm:"not null"`
	UserID      string `gorm:"not null;index"`
	UserName    string
	ModeratorID string
	Reason      string
	Automatic   bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

type Mute struct {
	ID        uint64 `gorm:"primaryKey"`
	GuildID   string `gorm:"not null;uniqueIndex:idx_mute_guild_user,priority:1"`
	UserID    string `gorm:"not null;uniqueIndex:idx_mute_guild_user,priority:2"`
	CaseID    uint64
	ExpiresAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}
