// Persistence for moderation state that automod actions create or consult: cases, mutes, and each guild's antiraid level.
package modstore

import (
	"context"
	"time"

	"github.com/zeppelin-bot/zeppelin/models"
)

// Case types
const (
	CaseNote   = "note"
	CaseWarn   = "warn"
	CaseMute   = "mute"
	CaseUnmute = "unmute"
	CaseKick   = "kick"
	CaseBan    = "ban"
	CaseUnban  = "unban"
)

type CaseInput struct {
	GuildID     string
	Type        string
	UserID      string
	UserName    string
	ModeratorID string
	Reason      string
	Automatic   bool
	CreatedAt   time.Time
}

type CaseStore interface {
	CreateCase(ctx context.Context, in CaseInput) (*models.Case, error)
	// Most recent cases first
	ListCases(ctx context.Context, guildID string, limit int) ([]models.Case, error)
}

type MuteStore interface {
	// Creates or replaces the mute for the user. A nil expiry means indefinite.
	AddMute(ctx context.Context, guildID, userID string, caseID uint64, expiresAt *time.Time) error
	// Returns nil if the user has no mute.
	GetMute(ctx context.Context, guildID, userID string) (*models.Mute, error)
	RemoveMute(ctx context.Context, guildID, userID string) error
	// Mutes with an expiry at or before the given time, oldest first.
	ExpiredMutes(ctx context.Context, before time.Time, limit int) ([]models.Mute, error)
}

type AntiraidStore interface {
	// Empty string means antiraid is off.
	GetAntiraidLevel(ctx context.Context, guildID string) (string, error)
	SetAntiraidLevel(ctx context.Context, guildID, level string) error
}

type ModStore interface {
	CaseStore
	MuteStore
	AntiraidStore
}
