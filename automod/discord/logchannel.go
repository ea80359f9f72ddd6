package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeppelin-bot/zeppelin/automod/engine"
)

// Discord's message length limit.
const maxMessageLength = 2000

func truncateMessage(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLength {
		return s
	}
	return string(r[:maxMessageLength-1]) + "…"
}

// Posts automod log entries and bot alerts to each guild's configured log channel.
type LogChannelSink struct {
	Platform engine.Platform
	// Returns the log channel for a guild, or empty string if none is configured
	Channel func(guildID string) string
}

var (
	_ engine.LogSink    = (*LogChannelSink)(nil)
	_ engine.BotAlerter = (*LogChannelSink)(nil)
)

func formatLogEntry(entry engine.LogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Automod rule `%s`** triggered by %s (`%s`)", entry.Rule, entry.UserName, entry.UserID)
	if entry.ChannelID != "" {
		fmt.Fprintf(&sb, " in <#%s>", entry.ChannelID)
	}
	if entry.Summary != "" {
		fmt.Fprintf(&sb, "\n%s", entry.Summary)
	}
	if len(entry.Actions) > 0 {
		fmt.Fprintf(&sb, "\nActions: %s", strings.Join(entry.Actions, ", "))
	}
	if entry.Contexts > 1 {
		fmt.Fprintf(&sb, "\nEvents: %d", entry.Contexts)
	}
	return sb.String()
}

func (s *LogChannelSink) LogAutomodAction(ctx context.Context, entry engine.LogEntry) error {
	ch := s.Channel(entry.GuildID)
	if ch == "" {
		return nil
	}
	return s.Platform.SendMessage(ctx, ch, formatLogEntry(entry))
}

func (s *LogChannelSink) BotAlert(ctx context.Context, guildID, msg string) error {
	ch := s.Channel(guildID)
	if ch == "" {
		return nil
	}
	return s.Platform.SendMessage(ctx, ch, "**Automod alert:** "+msg)
}
