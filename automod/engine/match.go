package engine

import (
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/event"
)

// Outcome of a single trigger matching a context.
type MatchResult struct {
	// Human-readable description, used in logs and alert templates
	Summary string
	// Additional contexts pulled in by the match (eg, the earlier messages of a spam burst). Actions apply to these as well as the triggering context.
	ExtraContexts []*event.Context
	Extra         MatchExtra
}

// Trigger-specific details of a match. The set of implementations is closed; switch on the concrete type.
type MatchExtra interface {
	TriggerFamily() string
}

type WordMatch struct {
	Word string
	// "message", "attachment_name"
	Source string
}

type RegexMatch struct {
	Pattern string
	Source  string
}

type LinkMatch struct {
	URL    string
	Domain string
}

type InviteMatch struct {
	Code string
	// Empty if the invite could not be resolved, or was not looked up
	GuildID string
}

type AttachmentMatch struct {
	Filename  string
	Extension string
}

type SpamMatch struct {
	Kind   string
	Count  int
	Window time.Duration
}

type RoleMatch struct {
	RoleID string
}

type CounterMatch struct {
	Counter string
	Trigger string
	Reverse bool
}

type ModActionMatch struct {
	Kind      string
	Automatic bool
}

type AntiraidMatch struct {
	OldLevel string
	NewLevel string
}

type JoinMatch struct {
	AccountAge time.Duration
}

type ThreadMatch struct {
	ThreadID string
}

func (WordMatch) TriggerFamily() string       { return "match_words" }
func (RegexMatch) TriggerFamily() string      { return "match_regex" }
func (LinkMatch) TriggerFamily() string       { return "match_links" }
func (InviteMatch) TriggerFamily() string     { return "match_invites" }
func (AttachmentMatch) TriggerFamily() string { return "match_attachment_type" }
func (SpamMatch) TriggerFamily() string       { return "spam" }
func (RoleMatch) TriggerFamily() string       { return "role" }
func (CounterMatch) TriggerFamily() string    { return "counter_trigger" }
func (ModActionMatch) TriggerFamily() string  { return "mod_action" }
func (AntiraidMatch) TriggerFamily() string   { return "antiraid_level" }
func (JoinMatch) TriggerFamily() string       { return "member_join" }
func (ThreadMatch) TriggerFamily() string     { return "thread_create" }
