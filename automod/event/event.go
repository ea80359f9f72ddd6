package event

import (
	"time"
)

// Discriminator for the payload carried by a Context.
type Kind string

const (
	KindMessage        Kind = "message"
	KindAntiraidChange Kind = "antiraid"
	KindCounterTrigger Kind = "counter_trigger"
	KindModAction      Kind = "mod_action"
	KindMemberJoin     Kind = "member_join"
	KindMemberLeave    Kind = "member_leave"
	KindRoleChange     Kind = "role_change"
	KindThreadCreate   Kind = "thread_create"
)

// Moderation action kinds, as carried by ModAction contexts.
const (
	ModNote   = "note"
	ModWarn   = "warn"
	ModMute   = "mute"
	ModUnmute = "unmute"
	ModKick   = "kick"
	ModBan    = "ban"
	ModUnban  = "unban"
)

// Resolved user metadata. Deleted or otherwise unknown users are represented by a placeholder with Unknown set.
type User struct {
	ID        string
	Username  string
	Bot       bool
	CreatedAt time.Time
	Unknown   bool
}

// Resolved guild member metadata.
type Member struct {
	Nick     string
	Roles    []string
	JoinedAt time.Time
}

type Attachment struct {
	Filename    string
	ContentType string
	URL         string
	Size        int
}

type Message struct {
	ID        string
	ChannelID string
	// Set when the message was posted inside a thread; ChannelID is then the thread's channel ID
	ThreadID     string
	Content      string
	Attachments  []Attachment
	StickerIDs   []string
	UserMentions []string
	RoleMentions []string
	EmbedCount   int
}

type AntiraidChange struct {
	// Empty string means antiraid was off
	OldLevel string
	NewLevel string
}

type CounterTrigger struct {
	Counter   string
	Trigger   string
	ChannelID string
	UserID    string
	Reverse   bool
	Value     int
}

type ModAction struct {
	Kind        string
	TargetID    string
	ModeratorID string
	Reason      string
	// True when the action was taken by automod itself, false for manual moderator actions
	Automatic bool
}

type MemberJoin struct {
	AccountCreatedAt time.Time
}

type MemberLeave struct{}

type RoleChange struct {
	Added   []string
	Removed []string
}

type ThreadCreate struct {
	ThreadID string
	ParentID string
	Name     string
}

// One occurrence for automod to evaluate.
//
// Exactly one of the payload pointers is non-nil, matching Kind(). A Context is immutable once built, except for the Actioned flag, which is only mutated from inside the guild's serialized evaluation.
type Context struct {
	GuildID   string
	ChannelID string
	User      *User
	Member    *Member
	Timestamp time.Time

	// Set once a rule has fired using this context, so a spam burst is only acted upon once
	Actioned bool

	Message        *Message
	AntiraidChange *AntiraidChange
	CounterTrigger *CounterTrigger
	ModAction      *ModAction
	MemberJoin     *MemberJoin
	MemberLeave    *MemberLeave
	RoleChange     *RoleChange
	ThreadCreate   *ThreadCreate
}

func (c *Context) Kind() Kind {
	switch {
	case c.Message != nil:
		return KindMessage
	case c.AntiraidChange != nil:
		return KindAntiraidChange
	case c.CounterTrigger != nil:
		return KindCounterTrigger
	case c.ModAction != nil:
		return KindModAction
	case c.MemberJoin != nil:
		return KindMemberJoin
	case c.MemberLeave != nil:
		return KindMemberLeave
	case c.RoleChange != nil:
		return KindRoleChange
	case c.ThreadCreate != nil:
		return KindThreadCreate
	}
	return ""
}

// The user this context is "about": the resolved author/member, or the target of a mod action or counter trigger. Empty if there is none (eg, antiraid level changes).
func (c *Context) UserID() string {
	if c.User != nil {
		return c.User.ID
	}
	if c.ModAction != nil {
		return c.ModAction.TargetID
	}
	if c.CounterTrigger != nil {
		return c.CounterTrigger.UserID
	}
	return ""
}

func (c *Context) IsBot() bool {
	return c.User != nil && c.User.Bot
}

func NewMessageContext(guildID string, user *User, member *Member, msg Message, ts time.Time) *Context {
	return &Context{
		GuildID:   guildID,
		ChannelID: msg.ChannelID,
		User:      user,
		Member:    member,
		Timestamp: ts,
		Message:   &msg,
	}
}

func NewAntiraidContext(guildID, oldLevel, newLevel string, ts time.Time) *Context {
	return &Context{
		GuildID:        guildID,
		Timestamp:      ts,
		AntiraidChange: &AntiraidChange{OldLevel: oldLevel, NewLevel: newLevel},
	}
}

func NewCounterTriggerContext(guildID string, user *User, ct CounterTrigger, ts time.Time) *Context {
	return &Context{
		GuildID:        guildID,
		ChannelID:      ct.ChannelID,
		User:           user,
		Timestamp:      ts,
		CounterTrigger: &ct,
	}
}

func NewModActionContext(guildID string, user *User, ma ModAction, ts time.Time) *Context {
	return &Context{
		GuildID:   guildID,
		User:      user,
		Timestamp: ts,
		ModAction: &ma,
	}
}

func NewMemberJoinContext(guildID string, user *User, member *Member, ts time.Time) *Context {
	mj := MemberJoin{}
	if user != nil {
		mj.AccountCreatedAt = user.CreatedAt
	}
	return &Context{
		GuildID:    guildID,
		User:       user,
		Member:     member,
		Timestamp:  ts,
		MemberJoin: &mj,
	}
}

func NewMemberLeaveContext(guildID string, user *User, ts time.Time) *Context {
	return &Context{
		GuildID:     guildID,
		User:        user,
		Timestamp:   ts,
		MemberLeave: &MemberLeave{},
	}
}

func NewRoleChangeContext(guildID string, user *User, member *Member, added, removed []string, ts time.Time) *Context {
	return &Context{
		GuildID:    guildID,
		User:       user,
		Member:     member,
		Timestamp:  ts,
		RoleChange: &RoleChange{Added: added, Removed: removed},
	}
}

func NewThreadCreateContext(guildID string, user *User, tc ThreadCreate, ts time.Time) *Context {
	return &Context{
		GuildID:      guildID,
		ChannelID:    tc.ParentID,
		User:         user,
		Timestamp:    ts,
		ThreadCreate: &tc,
	}
}
