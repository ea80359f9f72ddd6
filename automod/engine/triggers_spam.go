package engine

import (
	"fmt"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/event"
	"github.com/zeppelin-bot/zeppelin/automod/recentstore"
	"github.com/zeppelin-bot/zeppelin/util"

	"gopkg.in/yaml.v3"
)

type spamKind struct {
	name   string
	recent recentstore.Kind
	// counts across all users in the guild, instead of per-user
	guildWide bool
}

var (
	spamMessage      = spamKind{name: "message_spam", recent: recentstore.KindMessage}
	spamMention      = spamKind{name: "mention_spam", recent: recentstore.KindMention}
	spamLink         = spamKind{name: "link_spam", recent: recentstore.KindLink}
	spamAttachment   = spamKind{name: "attachment_spam", recent: recentstore.KindAttachment}
	spamEmoji        = spamKind{name: "emoji_spam", recent: recentstore.KindEmoji}
	spamLine         = spamKind{name: "line_spam", recent: recentstore.KindLine}
	spamCharacter    = spamKind{name: "character_spam", recent: recentstore.KindCharacter}
	spamSticker      = spamKind{name: "sticker_spam", recent: recentstore.KindSticker}
	spamMemberJoin   = spamKind{name: "member_join_spam", recent: recentstore.KindMemberJoin, guildWide: true}
	spamThreadCreate = spamKind{name: "thread_create_spam", recent: recentstore.KindThreadCreate, guildWide: true}
)

type spamConfig struct {
	Amount     int   `yaml:"amount"`
	Within     Delay `yaml:"within"`
	PerChannel bool  `yaml:"per_channel"`
}

// Generic implementation of all the "*_spam" triggers: sums recent actions of one kind within a time window.
type spamTrigger struct {
	kind spamKind
	cfg  spamConfig
}

func spamParser(kind spamKind) TriggerParseFunc {
	return func(node *yaml.Node, env *ParseEnv) (Trigger, error) {
		cfg := spamConfig{
			PerChannel: !kind.guildWide,
		}
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
		if kind.guildWide && cfg.PerChannel {
			return nil, fmt.Errorf("per_channel is not supported for %s", kind.name)
		}
		if cfg.Amount < 1 {
			return nil, fmt.Errorf("'amount' must be at least 1")
		}
		if cfg.Within.Duration() <= 0 {
			return nil, fmt.Errorf("'within' is required")
		}
		if cfg.Within.Duration() > recentstore.DefaultRetention {
			return nil, fmt.Errorf("'within' can not be longer than %s", util.HumanizeDelay(recentstore.DefaultRetention))
		}
		return &spamTrigger{kind: kind, cfg: cfg}, nil
	}
}

func (t *spamTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	c := tc.Event
	// only contexts which themselves contribute to the count can set this off
	if contextCount(c, t.kind.recent) <= 0 {
		return nil, nil
	}
	window := t.cfg.Within.Duration()
	q := recentstore.Query{
		Kind:    t.kind.recent,
		GuildID: c.GuildID,
		Since:   c.Timestamp.Add(-window),
		Until:   c.Timestamp,
	}
	if !t.kind.guildWide {
		q.UserID = c.UserID()
		if q.UserID == "" {
			return nil, nil
		}
		if t.cfg.PerChannel {
			q.ChannelID = c.ChannelID
		}
	}
	entries := tc.engine.Recent.Matching(q)
	total := recentstore.Total(entries)
	if total < t.cfg.Amount {
		return nil, nil
	}

	var extra []*event.Context
	for _, e := range entries {
		if e.Context != nil && e.Context != c {
			extra = append(extra, e.Context)
		}
	}
	return &MatchResult{
		Summary:       fmt.Sprintf("%s: %d within %s", t.kind.name, total, util.HumanizeDelay(window)),
		ExtraContexts: extra,
		Extra:         SpamMatch{Kind: t.kind.name, Count: total, Window: window},
	}, nil
}

// How much a context contributes to a recent-action kind.
func contextCount(c *event.Context, kind recentstore.Kind) int {
	switch kind {
	case recentstore.KindMemberJoin:
		if c.MemberJoin != nil {
			return 1
		}
		return 0
	case recentstore.KindThreadCreate:
		if c.ThreadCreate != nil {
			return 1
		}
		return 0
	}
	msg := c.Message
	if msg == nil {
		return 0
	}
	switch kind {
	case recentstore.KindMessage:
		return 1
	case recentstore.KindMention:
		return len(msg.UserMentions) + len(msg.RoleMentions)
	case recentstore.KindLink:
		return len(extractLinks(msg.Content, true))
	case recentstore.KindAttachment:
		return len(msg.Attachments)
	case recentstore.KindEmoji:
		return countEmoji(msg.Content)
	case recentstore.KindLine:
		return countLines(msg.Content)
	case recentstore.KindCharacter:
		return countCharacters(msg.Content)
	case recentstore.KindSticker:
		return len(msg.StickerIDs)
	}
	return 0
}

var allRecentKinds = []recentstore.Kind{
	recentstore.KindMessage,
	recentstore.KindMention,
	recentstore.KindLink,
	recentstore.KindAttachment,
	recentstore.KindEmoji,
	recentstore.KindLine,
	recentstore.KindCharacter,
	recentstore.KindSticker,
	recentstore.KindMemberJoin,
	recentstore.KindThreadCreate,
}

// Recent-action entries for a context. Recorded once per context, before any rule is evaluated.
func recentEntries(c *event.Context) []recentstore.Entry {
	var out []recentstore.Entry
	for _, kind := range allRecentKinds {
		n := contextCount(c, kind)
		if n <= 0 {
			continue
		}
		out = append(out, recentstore.Entry{
			Kind:      kind,
			GuildID:   c.GuildID,
			ChannelID: c.ChannelID,
			UserID:    c.UserID(),
			Count:     n,
			Timestamp: c.Timestamp,
			Context:   c,
		})
	}
	return out
}

// recent entries are kept for the longest window any trigger may use
const recentRetention time.Duration = recentstore.DefaultRetention
