package consumer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/cachestore"
	"github.com/zeppelin-bot/zeppelin/automod/event"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type ignoreSet map[string]bool

func (s ignoreSet) ConsumeIgnored(kind, guildID, userID string) bool {
	k := kind + "/" + guildID + "/" + userID
	if s[k] {
		delete(s, k)
		return true
	}
	return false
}

func testBuilder() *Builder {
	users := &UserResolver{
		Cache:  cachestore.NewMemCacheStore(100, time.Hour),
		Logger: slog.Default(),
	}
	b := NewBuilder(users)
	b.Now = func() time.Time { return testNow }
	return b
}

// a snowflake from early 2024
const aliceID = "1200000000000000000"

func TestMessageCreate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	b := testBuilder()
	b.IsThread = func(id string) bool { return id == "t1" }

	sent := testNow.Add(-time.Second)
	m := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "hello <@2>",
		Timestamp: sent,
		Author:    &discordgo.User{ID: aliceID, Username: "alice", Discriminator: "0"},
		Member:    &discordgo.Member{Nick: "al", Roles: []string{"r1"}},
		Attachments: []*discordgo.MessageAttachment{
			{Filename: "cat.png", ContentType: "image/png", Size: 10},
		},
		StickerItems: []*discordgo.StickerItem{{ID: "s1"}},
		Mentions:     []*discordgo.User{{ID: "2"}},
		MentionRoles: []string{"r9"},
		Embeds:       []*discordgo.MessageEmbed{{}},
	}
	c := b.MessageCreate(ctx, m)
	assert.NotNil(c)
	assert.Equal(event.KindMessage, c.Kind())
	assert.Equal("g1", c.GuildID)
	assert.Equal("c1", c.ChannelID)
	assert.Equal(sent, c.Timestamp)
	assert.Equal("alice", c.User.Username)
	assert.Equal(2024, c.User.CreatedAt.Year())
	assert.Equal("al", c.Member.Nick)
	assert.Equal("", c.Message.ThreadID)
	assert.Equal("cat.png", c.Message.Attachments[0].Filename)
	assert.Equal([]string{"s1"}, c.Message.StickerIDs)
	assert.Equal([]string{"2"}, c.Message.UserMentions)
	assert.Equal([]string{"r9"}, c.Message.RoleMentions)
	assert.Equal(1, c.Message.EmbedCount)

	// the author is now cached
	u := b.Users.Resolve(ctx, aliceID)
	assert.False(u.Unknown)
	assert.Equal("alice", u.Username)

	m.ChannelID = "t1"
	c = b.MessageCreate(ctx, m)
	assert.Equal("t1", c.Message.ThreadID)

	// legacy discriminators are kept in the name
	m.Author = &discordgo.User{ID: "3", Username: "bob", Discriminator: "1234", Bot: true}
	c = b.MessageCreate(ctx, m)
	assert.Equal("bob#1234", c.User.Username)
	assert.True(c.IsBot())

	// malformed events are dropped
	assert.Nil(b.MessageCreate(ctx, &discordgo.Message{ID: "m2", ChannelID: "c1", Author: &discordgo.User{ID: "1"}}))
	assert.Nil(b.MessageCreate(ctx, &discordgo.Message{ID: "m2", GuildID: "g1", ChannelID: "c1"}))
	assert.Nil(b.MessageCreate(ctx, nil))
}

func TestResolveUnknownUser(t *testing.T) {
	assert := assert.New(t)
	b := testBuilder()

	u := b.Users.Resolve(context.Background(), aliceID)
	assert.True(u.Unknown)
	assert.Equal(aliceID, u.ID)
	assert.Equal(UnknownUsername, u.Username)

	b.Users.Fetch = func(id string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
		return &discordgo.User{ID: id, Username: "fetched"}, nil
	}
	u = b.Users.Resolve(context.Background(), aliceID)
	assert.False(u.Unknown)
	assert.Equal("fetched", u.Username)
}

func TestMemberJoinLeave(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	b := testBuilder()

	joined := testNow.Add(-2 * time.Second)
	m := &discordgo.Member{GuildID: "g1", JoinedAt: joined, Roles: []string{"r1"}, User: &discordgo.User{ID: aliceID, Username: "alice"}}
	c := b.MemberAdd(ctx, m)
	assert.Equal(event.KindMemberJoin, c.Kind())
	assert.Equal(joined, c.Timestamp)
	assert.Equal(c.User.CreatedAt, c.MemberJoin.AccountCreatedAt)

	c = b.MemberRemove(ctx, m)
	assert.Equal(event.KindMemberLeave, c.Kind())
	assert.Equal(testNow, c.Timestamp)

	assert.Nil(b.MemberAdd(ctx, &discordgo.Member{GuildID: "g1"}))
	assert.Nil(b.MemberRemove(ctx, &discordgo.Member{User: &discordgo.User{ID: "1"}}))
}

func TestMemberUpdateRoleDiff(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	b := testBuilder()
	user := &discordgo.User{ID: aliceID, Username: "alice"}

	update := func(roles ...string) []*event.Context {
		return b.MemberUpdate(ctx, &discordgo.GuildMemberUpdate{
			Member: &discordgo.Member{GuildID: "g1", User: user, Roles: roles},
		})
	}

	// first sighting only primes the cache
	assert.Empty(update("r1", "r2"))

	out := update("r2", "r3")
	assert.Equal(1, len(out))
	assert.Equal(event.KindRoleChange, out[0].Kind())
	assert.Equal([]string{"r3"}, out[0].RoleChange.Added)
	assert.Equal([]string{"r1"}, out[0].RoleChange.Removed)

	// nick-only changes have no role diff
	assert.Empty(update("r3", "r2"))

	// prior state supplied by the gateway is used on a cache miss
	out = b.MemberUpdate(ctx, &discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "g2", User: user, Roles: []string{"a"}},
		BeforeUpdate: &discordgo.Member{GuildID: "g2", User: user},
	})
	assert.Equal(1, len(out))
	assert.Equal([]string{"a"}, out[0].RoleChange.Added)
}

func TestMemberUpdateTimeout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	b := testBuilder()
	ign := ignoreSet{}
	b.Ignore = ign
	user := &discordgo.User{ID: aliceID, Username: "alice"}
	until := testNow.Add(time.Hour)

	update := func(timeout *time.Time) []*event.Context {
		return b.MemberUpdate(ctx, &discordgo.GuildMemberUpdate{
			Member: &discordgo.Member{GuildID: "g1", User: user, CommunicationDisabledUntil: timeout},
		})
	}
	assert.Empty(update(nil))

	out := update(&until)
	assert.Equal(1, len(out))
	assert.Equal(event.KindModAction, out[0].Kind())
	assert.Equal(event.ModMute, out[0].ModAction.Kind)
	assert.False(out[0].ModAction.Automatic)

	out = update(nil)
	assert.Equal(event.ModUnmute, out[0].ModAction.Kind)

	// timeouts applied by automod itself are not reported again
	ign["mute/g1/"+aliceID] = true
	assert.Empty(update(&until))
	assert.Empty(ign)
}

func TestBans(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	b := testBuilder()
	ign := ignoreSet{"ban/g1/2": true}
	b.Ignore = ign

	c := b.BanAdd(ctx, &discordgo.GuildBanAdd{GuildID: "g1", User: &discordgo.User{ID: "1"}})
	assert.Equal(event.ModBan, c.ModAction.Kind)
	assert.Equal("1", c.UserID())

	assert.Nil(b.BanAdd(ctx, &discordgo.GuildBanAdd{GuildID: "g1", User: &discordgo.User{ID: "2"}}))
	// only ignored once
	assert.NotNil(b.BanAdd(ctx, &discordgo.GuildBanAdd{GuildID: "g1", User: &discordgo.User{ID: "2"}}))

	c = b.BanRemove(ctx, &discordgo.GuildBanRemove{GuildID: "g1", User: &discordgo.User{ID: "1"}})
	assert.Equal(event.ModUnban, c.ModAction.Kind)

	assert.Nil(b.BanAdd(ctx, &discordgo.GuildBanAdd{User: &discordgo.User{ID: "1"}}))
}

func TestThreadCreate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	b := testBuilder()

	ch := &discordgo.Channel{ID: "t1", GuildID: "g1", ParentID: "c1", OwnerID: aliceID, Name: "help"}
	c := b.ThreadCreate(ctx, &discordgo.ThreadCreate{Channel: ch, NewlyCreated: true})
	assert.Equal(event.KindThreadCreate, c.Kind())
	assert.Equal("c1", c.ChannelID)
	assert.Equal("t1", c.ThreadCreate.ThreadID)
	// owner was never seen, so it resolves to a placeholder
	assert.True(c.User.Unknown)

	assert.Nil(b.ThreadCreate(ctx, &discordgo.ThreadCreate{Channel: ch}))
	assert.Nil(b.ThreadCreate(ctx, &discordgo.ThreadCreate{}))
}

func TestAuditLogKick(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	b := testBuilder()
	ign := ignoreSet{"kick/g1/3": true}
	b.Ignore = ign

	entry, err := ParseAuditLogEntryCreate([]byte(`{"guild_id":"g1","target_id":"2","user_id":"mod1","action_type":20,"reason":"rude","id":"555"}`))
	assert.NoError(err)
	assert.Equal("g1", entry.GuildID)
	c := b.AuditLogEntry(ctx, entry)
	assert.Equal(event.ModKick, c.ModAction.Kind)
	assert.Equal("g1", c.GuildID)
	assert.Equal("2", c.UserID())
	assert.Equal("mod1", c.ModAction.ModeratorID)
	assert.Equal("rude", c.ModAction.Reason)
	assert.False(c.ModAction.Automatic)

	kick := discordgo.AuditLogActionMemberKick
	// automod's own kick
	assert.Nil(b.AuditLogEntry(ctx, &AuditLogEntryCreate{
		GuildID:       "g1",
		AuditLogEntry: discordgo.AuditLogEntry{TargetID: "3", ActionType: &kick},
	}))

	// no guild, nothing to act on
	assert.Nil(b.AuditLogEntry(ctx, &AuditLogEntryCreate{
		AuditLogEntry: discordgo.AuditLogEntry{TargetID: "2", ActionType: &kick},
	}))

	// other audit log actions are not relevant
	other := discordgo.AuditLogActionChannelCreate
	assert.Nil(b.AuditLogEntry(ctx, &AuditLogEntryCreate{
		GuildID:       "g1",
		AuditLogEntry: discordgo.AuditLogEntry{TargetID: "2", ActionType: &other},
	}))

	_, err = ParseAuditLogEntryCreate([]byte(`{"guild_id":`))
	assert.Error(err)
}
