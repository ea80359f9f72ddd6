package models

import (
	"time"
)

// Current value of one counter. ChannelID and UserID are empty when the counter is not per-channel or per-user.
type CounterValue struct {
	ID        uint64 `gorm:"primaryKey"`
	GuildID   string `gorm:"not null;uniqueIndex:idx_counter_value,priority:1"`
	Counter   string `gorm:"not null;uniqueIndex:idx_counter_value,priority:2"`
	ChannelID string `gorm:"not null;uniqueIndex:idx_counter_value,priority:3"`
	UserID    string `gorm:"not null;uniqueIndex:idx_counter_value,priority:4"`
	Value     int    `gorm:"not null"`
	UpdatedAt time.Time
}

type AntiraidLevel struct {
	GuildID   string `gorm:"primaryKey"`
	Level     string `gorm:"not null"`
	UpdatedAt time.Time
}

// All models, in migration order.
func All() []any {
	return []any{
		&Case{},
		&Mute{},
		&CounterValue{},
		&AntiraidLevel{},
	}
}
