package engine

import (
	"context"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/cooldownstore"
	"github.com/zeppelin-bot/zeppelin/automod/counters"
	"github.com/zeppelin-bot/zeppelin/automod/modstore"
	"github.com/zeppelin-bot/zeppelin/automod/setstore"
)

// Discord mutations and lookups which actions and triggers depend on.
//
// Implementations are expected to return the platform's error type (eg, *discordgo.RESTError) unwrapped or wrapped with %w.
type Platform interface {
	DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
	Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	// Applies a Discord "timeout" to the member, lasting until the given time.
	Timeout(ctx context.Context, guildID, userID string, until time.Time) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	RoleExists(ctx context.Context, guildID, roleID string) (bool, error)
	SetNickname(ctx context.Context, guildID, userID, nick string) error
	SendMessage(ctx context.Context, channelID, content string) error
	Reply(ctx context.Context, channelID, messageID, content string) error
	DirectMessage(ctx context.Context, userID, content string) error
	SetSlowmode(ctx context.Context, channelID string, d time.Duration) error
	ArchiveThread(ctx context.Context, threadID string) error
	// Returns nil (and no error) if the invite code is invalid or expired.
	ResolveInvite(ctx context.Context, code string) (*InviteInfo, error)
}

type InviteInfo struct {
	Code    string
	GuildID string
	// Group DM invites have no guild
	GroupDM bool
}

// Summary of a rule firing, as written to a guild's automod log.
type LogEntry struct {
	GuildID   string
	Rule      string
	UserID    string
	UserName  string
	ChannelID string
	Summary   string
	Actions   []string
	// Number of contexts in the batch (more than one for spam bursts)
	Contexts  int
	Timestamp time.Time
}

type LogSink interface {
	LogAutomodAction(ctx context.Context, entry LogEntry) error
}

// Receives operator-facing problems: failed actions, broken references, and similar.
type BotAlerter interface {
	BotAlert(ctx context.Context, guildID, msg string) error
}

// Collaborators injected into the engine. All fields are required except SelfUserID.
type Deps struct {
	Platform  Platform
	Cases     modstore.CaseStore
	Mutes     modstore.MuteStore
	Antiraid  modstore.AntiraidStore
	Counters  *counters.Service
	Cooldowns cooldownstore.CooldownStore
	Sets      setstore.SetStore
	Logs      LogSink
	Alerts    BotAlerter

	// The bot's own user ID, used for the affects_self rule option
	SelfUserID string
}
