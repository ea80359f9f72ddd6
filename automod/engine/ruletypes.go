package engine

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// A configured trigger. Returns a nil result (and nil error) when the context does not match.
type Trigger interface {
	Match(tc *TriggerContext) (*MatchResult, error)
}

// A configured action, run after its rule matched.
type Action interface {
	Apply(ac *ActionContext) error
}

type TriggerParseFunc = func(node *yaml.Node, env *ParseEnv) (Trigger, error)
type ActionParseFunc = func(node *yaml.Node, env *ParseEnv) (Action, error)

// Registry of trigger types, by config name.
var triggerTypes = map[string]TriggerParseFunc{
	"any_message":           parseAnyMessage,
	"match_words":           parseMatchWords,
	"match_regex":           parseMatchRegex,
	"match_links":           parseMatchLinks,
	"match_invites":         parseMatchInvites,
	"match_attachment_type": parseMatchAttachmentType,
	"message_spam":          spamParser(spamMessage),
	"mention_spam":          spamParser(spamMention),
	"link_spam":             spamParser(spamLink),
	"attachment_spam":       spamParser(spamAttachment),
	"emoji_spam":            spamParser(spamEmoji),
	"line_spam":             spamParser(spamLine),
	"character_spam":        spamParser(spamCharacter),
	"sticker_spam":          spamParser(spamSticker),
	"member_join_spam":      spamParser(spamMemberJoin),
	"thread_create_spam":    spamParser(spamThreadCreate),
	"member_join":           parseMemberJoin,
	"member_leave":          parseMemberLeave,
	"role_added":            roleChangeParser(true),
	"role_removed":          roleChangeParser(false),
	"counter_trigger":       parseCounterTrigger,
	"antiraid_level":        parseAntiraidLevel,
	"note":                  modActionParser("note"),
	"warn":                  modActionParser("warn"),
	"mute":                  modActionParser("mute"),
	"unmute":                modActionParser("unmute"),
	"kick":                  modActionParser("kick"),
	"ban":                   modActionParser("ban"),
	"unban":                 modActionParser("unban"),
	"thread_create":         parseThreadCreate,
}

// Registry of action types, by config name.
var actionTypes = map[string]ActionParseFunc{
	"clean":              parseCleanAction,
	"warn":               parseWarnAction,
	"mute":               parseMuteAction,
	"kick":               parseKickAction,
	"ban":                parseBanAction,
	"add_roles":          roleActionParser(true),
	"remove_roles":       roleActionParser(false),
	"set_nickname":       parseSetNicknameAction,
	"set_antiraid_level": parseSetAntiraidLevelAction,
	"change_counter":     parseChangeCounterAction,
	"set_counter":        parseSetCounterAction,
	"alert":              parseAlertAction,
	"reply":              parseReplyAction,
	"set_slowmode":       parseSetSlowmodeAction,
	"archive_thread":     parseArchiveThreadAction,
	"log":                parseLogAction,
}

func TriggerTypes() []string {
	out := make([]string, 0, len(triggerTypes))
	for k := range triggerTypes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func ActionTypes() []string {
	out := make([]string, 0, len(actionTypes))
	for k := range actionTypes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
