// Discord REST implementation of the automod engine's platform collaborator.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/engine"
	"github.com/zeppelin-bot/zeppelin/automod/event"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Discord refuses to bulk-delete messages older than this.
const bulkDeleteMaxAge = 14 * 24 * time.Hour

const bulkDeleteMaxCount = 100

// How long a self-inflicted moderation action is remembered, so its gateway echo can be ignored.
const ignoreTTL = time.Minute

type Platform struct {
	Session *discordgo.Session
	Logger  *slog.Logger
	// Paces all REST mutations. discordgo handles per-route rate limits on its own; this keeps a burst of automod actions from starving the rest of the bot.
	Limiter *rate.Limiter

	invites *expirable.LRU[string, *engine.InviteInfo]
	ignored *expirable.LRU[string, struct{}]
	now     func() time.Time
}

var _ engine.Platform = (*Platform)(nil)

func NewPlatform(session *discordgo.Session, logger *slog.Logger, ratePerSec float64, burst int) *Platform {
	return &Platform{
		Session: session,
		Logger:  logger,
		Limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		invites: expirable.NewLRU[string, *engine.InviteInfo](10_000, nil, 10*time.Minute),
		ignored: expirable.NewLRU[string, struct{}](10_000, nil, ignoreTTL),
		now:     time.Now,
	}
}

func ignoreKey(kind, guildID, userID string) string {
	return kind + "/" + guildID + "/" + userID
}

// Reports whether the given moderation event was recently performed by automod itself. Each recorded action is only consumed once.
func (p *Platform) ConsumeIgnored(kind, guildID, userID string) bool {
	k := ignoreKey(kind, guildID, userID)
	if _, ok := p.ignored.Get(k); ok {
		p.ignored.Remove(k)
		return true
	}
	return false
}

func (p *Platform) wait(ctx context.Context) error {
	if p.Limiter == nil {
		return nil
	}
	return p.Limiter.Wait(ctx)
}

// True if err is a Discord API error with one of the given JSON error codes.
func IsAPIError(err error, codes ...int) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) || rerr.Message == nil {
		return false
	}
	for _, c := range codes {
		if rerr.Message.Code == c {
			return true
		}
	}
	return false
}

// Splits message IDs into bulk-deletable chunks. Discord snowflakes encode their creation time, which is used to route too-old messages to single deletes.
func partitionDeletes(ids []string, now time.Time) (bulk [][]string, single []string) {
	var fresh []string
	for _, id := range ids {
		ts, err := discordgo.SnowflakeTimestamp(id)
		if err != nil || now.Sub(ts) >= bulkDeleteMaxAge {
			single = append(single, id)
			continue
		}
		fresh = append(fresh, id)
	}
	for len(fresh) > 0 {
		n := min(len(fresh), bulkDeleteMaxCount)
		chunk := fresh[:n]
		fresh = fresh[n:]
		if len(chunk) == 1 {
			single = append(single, chunk[0])
			continue
		}
		bulk = append(bulk, chunk)
	}
	return bulk, single
}

func (p *Platform) DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	bulk, single := partitionDeletes(messageIDs, p.now())
	var errs []error
	for _, chunk := range bulk {
		if err := p.wait(ctx); err != nil {
			return err
		}
		if err := p.Session.ChannelMessagesBulkDelete(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("bulk delete in %s: %w", channelID, err))
		}
	}
	for _, id := range single {
		if err := p.wait(ctx); err != nil {
			return err
		}
		err := p.Session.ChannelMessageDelete(channelID, id, discordgo.WithContext(ctx))
		// already deleted by someone else
		if err != nil && !IsAPIError(err, discordgo.ErrCodeUnknownMessage) {
			errs = append(errs, fmt.Errorf("delete message %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Runs a moderation call whose result comes back through the gateway. The echo is expected before the call, since the gateway event may arrive before the REST response; it is forgotten again if the call fails.
func (p *Platform) withEcho(kind, guildID, userID string, call func() error) error {
	k := ignoreKey(kind, guildID, userID)
	p.ignored.Add(k, struct{}{})
	if err := call(); err != nil {
		p.ignored.Remove(k)
		return err
	}
	return nil
}

func (p *Platform) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.withEcho(event.ModBan, guildID, userID, func() error {
		return p.Session.GuildBanCreateWithReason(guildID, userID, reason, deleteMessageDays, discordgo.WithContext(ctx))
	})
}

func (p *Platform) Kick(ctx context.Context, guildID, userID, reason string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.withEcho(event.ModKick, guildID, userID, func() error {
		return p.Session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
	})
}

func (p *Platform) Timeout(ctx context.Context, guildID, userID string, until time.Time) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	kind := event.ModUnmute
	var untilp *time.Time
	if !until.IsZero() {
		untilp = &until
		kind = event.ModMute
	}
	return p.withEcho(kind, guildID, userID, func() error {
		return p.Session.GuildMemberTimeout(guildID, userID, untilp, discordgo.WithContext(ctx))
	})
}

func (p *Platform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.Session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.Session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (p *Platform) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	// the gateway state cache is authoritative while connected
	if p.Session.State != nil {
		if _, err := p.Session.State.Role(guildID, roleID); err == nil {
			return true, nil
		}
	}
	roles, err := p.Session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (p *Platform) SetNickname(ctx context.Context, guildID, userID, nick string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.Session.GuildMemberNickname(guildID, userID, nick, discordgo.WithContext(ctx))
}

func (p *Platform) SendMessage(ctx context.Context, channelID, content string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	_, err := p.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: truncateMessage(content),
		// automod output must never ping anyone
		AllowedMentions: noMentions(),
	}, discordgo.WithContext(ctx))
	return err
}

func (p *Platform) Reply(ctx context.Context, channelID, messageID, content string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	_, err := p.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: truncateMessage(content),
		Reference: &discordgo.MessageReference{
			MessageID: messageID,
			ChannelID: channelID,
		},
		AllowedMentions: noMentions(),
	}, discordgo.WithContext(ctx))
	return err
}

func (p *Platform) DirectMessage(ctx context.Context, userID, content string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	ch, err := p.Session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	_, err = p.Session.ChannelMessageSend(ch.ID, truncateMessage(content), discordgo.WithContext(ctx))
	return err
}

func (p *Platform) SetSlowmode(ctx context.Context, channelID string, d time.Duration) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	secs := int(d / time.Second)
	_, err := p.Session.ChannelEdit(channelID, &discordgo.ChannelEdit{RateLimitPerUser: &secs}, discordgo.WithContext(ctx))
	return err
}

func (p *Platform) ArchiveThread(ctx context.Context, threadID string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	archived := true
	_, err := p.Session.ChannelEdit(threadID, &discordgo.ChannelEdit{Archived: &archived}, discordgo.WithContext(ctx))
	return err
}

func inviteInfo(code string, inv *discordgo.Invite) *engine.InviteInfo {
	out := &engine.InviteInfo{Code: code}
	if inv.Guild != nil {
		out.GuildID = inv.Guild.ID
	} else if inv.Channel != nil && inv.Channel.Type == discordgo.ChannelTypeGroupDM {
		out.GroupDM = true
	}
	return out
}

func (p *Platform) ResolveInvite(ctx context.Context, code string) (*engine.InviteInfo, error) {
	if info, ok := p.invites.Get(code); ok {
		return info, nil
	}
	inv, err := p.Session.Invite(code, discordgo.WithContext(ctx))
	if IsAPIError(err, discordgo.ErrCodeUnknownInvite) {
		p.invites.Add(code, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info := inviteInfo(code, inv)
	p.invites.Add(code, info)
	return info, nil
}

func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}
