package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/event"

	"github.com/bwmarrin/discordgo"
	"github.com/puzpuzpuz/xsync/v3"
)

// Reports (and forgets) whether a moderation event was caused by automod itself. Automod chains its own mod action contexts, so the gateway echo of those actions must not be processed again.
type IgnoreChecker interface {
	ConsumeIgnored(kind, guildID, userID string) bool
}

// Last seen state of a guild member, used to compute diffs on member updates.
type memberSnapshot struct {
	Roles    []string
	TimedOut bool
}

// Converts discordgo gateway events into automod contexts. Methods return nil for events which should be dropped.
type Builder struct {
	Users  *UserResolver
	Ignore IgnoreChecker
	// Optional: reports whether a channel ID is a thread
	IsThread func(channelID string) bool
	Now      func() time.Time

	members *xsync.MapOf[string, memberSnapshot]
}

func NewBuilder(users *UserResolver) *Builder {
	return &Builder{
		Users:   users,
		Now:     time.Now,
		members: xsync.NewMapOf[string, memberSnapshot](),
	}
}

func memberKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now().UTC()
}

func (b *Builder) ignored(kind, guildID, userID string) bool {
	return b.Ignore != nil && b.Ignore.ConsumeIgnored(kind, guildID, userID)
}

func convertMember(m *discordgo.Member) *event.Member {
	return &event.Member{
		Nick:     m.Nick,
		Roles:    append([]string(nil), m.Roles...),
		JoinedAt: m.JoinedAt,
	}
}

func (b *Builder) snapshot(m *discordgo.Member) memberSnapshot {
	return memberSnapshot{
		Roles:    append([]string(nil), m.Roles...),
		TimedOut: m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(b.now()),
	}
}

func (b *Builder) MessageCreate(ctx context.Context, m *discordgo.Message) *event.Context {
	if m == nil || m.GuildID == "" || m.Author == nil || m.Author.ID == "" {
		return nil
	}
	user := b.Users.Observe(ctx, m.Author)
	var member *event.Member
	if m.Member != nil {
		member = convertMember(m.Member)
	}

	msg := event.Message{
		ID:           m.ID,
		ChannelID:    m.ChannelID,
		Content:      m.Content,
		RoleMentions: m.MentionRoles,
		EmbedCount:   len(m.Embeds),
	}
	if b.IsThread != nil && b.IsThread(m.ChannelID) {
		msg.ThreadID = m.ChannelID
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, event.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
			Size:        a.Size,
		})
	}
	for _, s := range m.StickerItems {
		if s != nil {
			msg.StickerIDs = append(msg.StickerIDs, s.ID)
		}
	}
	for _, u := range m.Mentions {
		if u != nil {
			msg.UserMentions = append(msg.UserMentions, u.ID)
		}
	}

	ts := m.Timestamp.UTC()
	if m.Timestamp.IsZero() {
		ts = b.now()
	}
	return event.NewMessageContext(m.GuildID, user, member, msg, ts)
}

func (b *Builder) MemberAdd(ctx context.Context, m *discordgo.Member) *event.Context {
	if m == nil || m.GuildID == "" || m.User == nil || m.User.ID == "" {
		return nil
	}
	b.members.Store(memberKey(m.GuildID, m.User.ID), b.snapshot(m))
	user := b.Users.Observe(ctx, m.User)
	ts := b.now()
	if !m.JoinedAt.IsZero() {
		ts = m.JoinedAt.UTC()
	}
	return event.NewMemberJoinContext(m.GuildID, user, convertMember(m), ts)
}

func (b *Builder) MemberRemove(ctx context.Context, m *discordgo.Member) *event.Context {
	if m == nil || m.GuildID == "" || m.User == nil || m.User.ID == "" {
		return nil
	}
	b.members.Delete(memberKey(m.GuildID, m.User.ID))
	user := b.Users.Observe(ctx, m.User)
	return event.NewMemberLeaveContext(m.GuildID, user, b.now())
}

// Diffs a member update against the previously seen state of the member. Produces a role change context if roles changed, and a manual mute/unmute context if a timeout was applied or lifted by someone other than automod.
//
// The first update seen for a member only primes the cache, unless the gateway supplied the prior state.
func (b *Builder) MemberUpdate(ctx context.Context, u *discordgo.GuildMemberUpdate) []*event.Context {
	if u == nil || u.Member == nil || u.GuildID == "" || u.User == nil || u.User.ID == "" {
		return nil
	}
	key := memberKey(u.GuildID, u.User.ID)
	cur := b.snapshot(u.Member)
	prev, ok := b.members.Load(key)
	b.members.Store(key, cur)
	if !ok {
		if u.BeforeUpdate == nil {
			return nil
		}
		prev = b.snapshot(u.BeforeUpdate)
	}

	added, removed := diffRoles(prev.Roles, cur.Roles)
	var out []*event.Context
	ts := b.now()
	if len(added) > 0 || len(removed) > 0 {
		user := b.Users.Observe(ctx, u.User)
		out = append(out, event.NewRoleChangeContext(u.GuildID, user, convertMember(u.Member), added, removed, ts))
	}
	if prev.TimedOut != cur.TimedOut {
		kind := event.ModMute
		if !cur.TimedOut {
			kind = event.ModUnmute
		}
		if !b.ignored(kind, u.GuildID, u.User.ID) {
			user := b.Users.Observe(ctx, u.User)
			out = append(out, event.NewModActionContext(u.GuildID, user, event.ModAction{
				Kind:     kind,
				TargetID: u.User.ID,
			}, ts))
		}
	}
	return out
}

func diffRoles(before, after []string) (added, removed []string) {
	had := make(map[string]bool, len(before))
	for _, r := range before {
		had[r] = true
	}
	has := make(map[string]bool, len(after))
	for _, r := range after {
		has[r] = true
		if !had[r] {
			added = append(added, r)
		}
	}
	for _, r := range before {
		if !has[r] {
			removed = append(removed, r)
		}
	}
	return added, removed
}

func (b *Builder) banContext(ctx context.Context, kind, guildID string, u *discordgo.User) *event.Context {
	if guildID == "" || u == nil || u.ID == "" {
		return nil
	}
	if b.ignored(kind, guildID, u.ID) {
		return nil
	}
	user := b.Users.Observe(ctx, u)
	return event.NewModActionContext(guildID, user, event.ModAction{
		Kind:     kind,
		TargetID: u.ID,
	}, b.now())
}

func (b *Builder) BanAdd(ctx context.Context, e *discordgo.GuildBanAdd) *event.Context {
	if e == nil {
		return nil
	}
	return b.banContext(ctx, event.ModBan, e.GuildID, e.User)
}

func (b *Builder) BanRemove(ctx context.Context, e *discordgo.GuildBanRemove) *event.Context {
	if e == nil {
		return nil
	}
	return b.banContext(ctx, event.ModUnban, e.GuildID, e.User)
}

func (b *Builder) ThreadCreate(ctx context.Context, e *discordgo.ThreadCreate) *event.Context {
	if e == nil || e.Channel == nil || e.GuildID == "" || e.ID == "" || e.OwnerID == "" {
		return nil
	}
	// thread create is also sent when the bot is added to an existing thread
	if !e.NewlyCreated {
		return nil
	}
	user := b.Users.Resolve(ctx, e.OwnerID)
	return event.NewThreadCreateContext(e.GuildID, user, event.ThreadCreate{
		ThreadID: e.ID,
		ParentID: e.ParentID,
		Name:     e.Name,
	}, b.now())
}

// Gateway event name for new audit log entries.
const auditLogEntryCreateEvent = "GUILD_AUDIT_LOG_ENTRY_CREATE"

// Payload of a GUILD_AUDIT_LOG_ENTRY_CREATE event. The typed discordgo event does not carry the guild ID, so the raw payload is decoded into this instead.
type AuditLogEntryCreate struct {
	discordgo.AuditLogEntry
	GuildID string `json:"guild_id"`
}

func ParseAuditLogEntryCreate(raw json.RawMessage) (*AuditLogEntryCreate, error) {
	var out AuditLogEntryCreate
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding audit log entry: %w", err)
	}
	return &out, nil
}

// Kicks have no gateway event of their own; they are only visible through the audit log.
func (b *Builder) AuditLogEntry(ctx context.Context, e *AuditLogEntryCreate) *event.Context {
	if e == nil || e.GuildID == "" || e.TargetID == "" || e.ActionType == nil {
		return nil
	}
	if *e.ActionType != discordgo.AuditLogActionMemberKick {
		return nil
	}
	if b.ignored(event.ModKick, e.GuildID, e.TargetID) {
		return nil
	}
	return event.NewModActionContext(e.GuildID, b.Users.Resolve(ctx, e.TargetID), event.ModAction{
		Kind:        event.ModKick,
		TargetID:    e.TargetID,
		ModeratorID: e.UserID,
		Reason:      e.Reason,
	}, b.now())
}
