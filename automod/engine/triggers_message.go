package engine

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/zeppelin-bot/zeppelin/automod/event"

	"gopkg.in/yaml.v3"
)

type anyMessageTrigger struct{}

func parseAnyMessage(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	if !isNullNode(node) && !isTrueNode(node) {
		var cfg struct{}
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	return &anyMessageTrigger{}, nil
}

func (t *anyMessageTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	if tc.Event.Message == nil {
		return nil, nil
	}
	return &MatchResult{Summary: fmt.Sprintf("message in <#%s>", tc.Event.ChannelID)}, nil
}

// a piece of text from a message which text triggers look at
type textSource struct {
	Source string
	Text   string
}

func messageTextSources(msg *event.Message, messages, attachmentNames bool) []textSource {
	var out []textSource
	if messages && msg.Content != "" {
		out = append(out, textSource{Source: "message", Text: msg.Content})
	}
	if attachmentNames {
		for _, a := range msg.Attachments {
			out = append(out, textSource{Source: "attachment_name", Text: a.Filename})
		}
	}
	return out
}

type matchWordsConfig struct {
	Words                StringList `yaml:"words"`
	WordsList            string     `yaml:"words_list"`
	CaseSensitive        bool       `yaml:"case_sensitive"`
	OnlyFullWords        bool       `yaml:"only_full_words"`
	Normalize            bool       `yaml:"normalize"`
	MatchMessages        bool       `yaml:"match_messages"`
	MatchAttachmentNames bool       `yaml:"match_attachment_names"`
}

type matchWordsTrigger struct {
	cfg      matchWordsConfig
	patterns []*regexp.Regexp
	// patterns for the most recently seen contents of cfg.WordsList
	list atomic.Pointer[compiledWordList]
}

type compiledWordList struct {
	members  []string
	words    []string
	patterns []*regexp.Regexp
}

func parseMatchWords(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	cfg := matchWordsConfig{
		OnlyFullWords: true,
		MatchMessages: true,
	}
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Words) == 0 && cfg.WordsList == "" {
		return nil, fmt.Errorf("one of 'words' or 'words_list' is required")
	}
	t := &matchWordsTrigger{cfg: cfg}
	for _, w := range cfg.Words {
		re, err := t.compile(w)
		if err != nil {
			return nil, err
		}
		t.patterns = append(t.patterns, re)
	}
	return t, nil
}

func (t *matchWordsTrigger) compile(word string) (*regexp.Regexp, error) {
	if t.cfg.Normalize {
		word = normalizeText(word)
	}
	pat := regexp.QuoteMeta(word)
	if t.cfg.OnlyFullWords {
		pat = `(?:^|[^\p{L}\p{N}_])` + pat + `(?:$|[^\p{L}\p{N}_])`
	}
	if !t.cfg.CaseSensitive {
		pat = "(?i)" + pat
	}
	return regexp.Compile(pat)
}

// Returns compiled patterns for the configured words list. Lists are only recompiled when their members change.
func (t *matchWordsTrigger) wordList(tc *TriggerContext) (*compiledWordList, error) {
	listed, err := tc.Deps().Sets.Members(tc.Ctx, t.cfg.WordsList)
	if err != nil {
		return nil, fmt.Errorf("loading word list %s: %w", t.cfg.WordsList, err)
	}
	if wl := t.list.Load(); wl != nil && slices.Equal(wl.members, listed) {
		return wl, nil
	}
	wl := &compiledWordList{members: listed}
	for _, w := range listed {
		re, err := t.compile(w)
		if err != nil {
			tc.Logger.Warn("skipping invalid word list entry", "list", t.cfg.WordsList, "word", w, "err", err)
			continue
		}
		wl.words = append(wl.words, w)
		wl.patterns = append(wl.patterns, re)
	}
	t.list.Store(wl)
	return wl, nil
}

func (t *matchWordsTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	msg := tc.Event.Message
	if msg == nil {
		return nil, nil
	}
	words := []string(t.cfg.Words)
	patterns := t.patterns
	if t.cfg.WordsList != "" {
		wl, err := t.wordList(tc)
		if err != nil {
			return nil, err
		}
		words = append(append([]string{}, words...), wl.words...)
		patterns = append(append([]*regexp.Regexp{}, patterns...), wl.patterns...)
	}
	for _, src := range messageTextSources(msg, t.cfg.MatchMessages, t.cfg.MatchAttachmentNames) {
		text := src.Text
		if t.cfg.Normalize {
			text = normalizeText(text)
		}
		for i, re := range patterns {
			if re.MatchString(text) {
				return &MatchResult{
					Summary: fmt.Sprintf("matched word `%s` in %s", words[i], src.Source),
					Extra:   WordMatch{Word: words[i], Source: src.Source},
				}, nil
			}
		}
	}
	return nil, nil
}

type matchRegexConfig struct {
	Patterns             StringList `yaml:"patterns"`
	CaseSensitive        bool       `yaml:"case_sensitive"`
	Normalize            bool       `yaml:"normalize"`
	MatchMessages        bool       `yaml:"match_messages"`
	MatchAttachmentNames bool       `yaml:"match_attachment_names"`
}

type matchRegexTrigger struct {
	cfg      matchRegexConfig
	patterns []*regexp.Regexp
}

func parseMatchRegex(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	cfg := matchRegexConfig{
		MatchMessages: true,
	}
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Patterns) == 0 {
		return nil, fmt.Errorf("'patterns' is required")
	}
	t := &matchRegexTrigger{cfg: cfg}
	for _, p := range cfg.Patterns {
		if !cfg.CaseSensitive {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		t.patterns = append(t.patterns, re)
	}
	return t, nil
}

func (t *matchRegexTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	msg := tc.Event.Message
	if msg == nil {
		return nil, nil
	}
	for _, src := range messageTextSources(msg, t.cfg.MatchMessages, t.cfg.MatchAttachmentNames) {
		text := src.Text
		if t.cfg.Normalize {
			text = normalizeText(text)
		}
		for i, re := range t.patterns {
			if re.MatchString(text) {
				return &MatchResult{
					Summary: fmt.Sprintf("matched regex `%s` in %s", t.cfg.Patterns[i], src.Source),
					Extra:   RegexMatch{Pattern: t.cfg.Patterns[i], Source: src.Source},
				}, nil
			}
		}
	}
	return nil, nil
}

type matchLinksConfig struct {
	IncludeDomains     StringList `yaml:"include_domains"`
	ExcludeDomains     StringList `yaml:"exclude_domains"`
	IncludeSubdomains  bool       `yaml:"include_subdomains"`
	OnlyRealLinks      bool       `yaml:"only_real_links"`
	IncludeDomainsList string     `yaml:"include_domains_list"`
	ExcludeDomainsList string     `yaml:"exclude_domains_list"`
}

type matchLinksTrigger struct {
	cfg matchLinksConfig
}

func parseMatchLinks(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	cfg := matchLinksConfig{
		IncludeSubdomains: true,
		OnlyRealLinks:     true,
	}
	if !isTrueNode(node) {
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	hasInclude := len(cfg.IncludeDomains) > 0 || cfg.IncludeDomainsList != ""
	hasExclude := len(cfg.ExcludeDomains) > 0 || cfg.ExcludeDomainsList != ""
	if hasInclude && hasExclude {
		return nil, fmt.Errorf("include_domains and exclude_domains can not be combined")
	}
	return &matchLinksTrigger{cfg: cfg}, nil
}

func (t *matchLinksTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	msg := tc.Event.Message
	if msg == nil {
		return nil, nil
	}
	links := extractLinks(msg.Content, t.cfg.OnlyRealLinks)
	if len(links) == 0 {
		return nil, nil
	}
	include, err := withSetMembers(tc, t.cfg.IncludeDomains, t.cfg.IncludeDomainsList)
	if err != nil {
		return nil, err
	}
	exclude, err := withSetMembers(tc, t.cfg.ExcludeDomains, t.cfg.ExcludeDomainsList)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		hit := false
		switch {
		case len(include) > 0:
			hit = domainInList(l.Domain, include, t.cfg.IncludeSubdomains)
		case len(exclude) > 0:
			hit = !domainInList(l.Domain, exclude, t.cfg.IncludeSubdomains)
		case t.cfg.IncludeDomainsList == "":
			// no include filter in effect: any link matches
			hit = true
		}
		if hit {
			return &MatchResult{
				Summary: fmt.Sprintf("posted link `%s`", l.URL),
				Extra:   LinkMatch{URL: l.URL, Domain: l.Domain},
			}, nil
		}
	}
	return nil, nil
}

// Combines inline config values with the members of a named set, if one is configured.
func withSetMembers(tc *TriggerContext, inline []string, setName string) ([]string, error) {
	if setName == "" {
		return inline, nil
	}
	members, err := tc.Deps().Sets.Members(tc.Ctx, setName)
	if err != nil {
		return nil, fmt.Errorf("loading list %s: %w", setName, err)
	}
	return append(append([]string{}, inline...), members...), nil
}

type matchInvitesConfig struct {
	IncludeInviteCodes  StringList `yaml:"include_invite_codes"`
	ExcludeInviteCodes  StringList `yaml:"exclude_invite_codes"`
	AllowGroupDMInvites bool       `yaml:"allow_group_dm_invites"`
	IncludeGuilds       StringList `yaml:"include_guilds"`
	ExcludeGuilds       StringList `yaml:"exclude_guilds"`
	IncludeGuildsList   string     `yaml:"include_guilds_list"`
	ExcludeGuildsList   string     `yaml:"exclude_guilds_list"`
}

type matchInvitesTrigger struct {
	cfg matchInvitesConfig
}

func parseMatchInvites(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	cfg := matchInvitesConfig{}
	if !isTrueNode(node) {
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	return &matchInvitesTrigger{cfg: cfg}, nil
}

// Invite codes are checked against the code filters first. Remaining invites are resolved: unknown invites and (unless allowed) group DM invites always match, guild invites match according to the guild filters.
func (t *matchInvitesTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	msg := tc.Event.Message
	if msg == nil {
		return nil, nil
	}
	codes := extractInviteCodes(msg.Content)
	if len(codes) == 0 {
		return nil, nil
	}
	matched := func(code, guildID, why string) *MatchResult {
		return &MatchResult{
			Summary: fmt.Sprintf("posted invite `%s` (%s)", code, why),
			Extra:   InviteMatch{Code: code, GuildID: guildID},
		}
	}

	for _, code := range codes {
		if len(t.cfg.IncludeInviteCodes) > 0 && containsFold(t.cfg.IncludeInviteCodes, code) {
			return matched(code, "", "blocked invite code"), nil
		}
		if len(t.cfg.ExcludeInviteCodes) > 0 && !containsFold(t.cfg.ExcludeInviteCodes, code) {
			return matched(code, "", "invite code not allowed"), nil
		}
	}

	includeGuilds, err := withSetMembers(tc, t.cfg.IncludeGuilds, t.cfg.IncludeGuildsList)
	if err != nil {
		return nil, err
	}
	excludeGuilds, err := withSetMembers(tc, t.cfg.ExcludeGuilds, t.cfg.ExcludeGuildsList)
	if err != nil {
		return nil, err
	}

	for _, code := range codes {
		inv, err := tc.Deps().Platform.ResolveInvite(tc.Ctx, code)
		if err != nil {
			return nil, fmt.Errorf("resolving invite %s: %w", code, err)
		}
		if inv == nil {
			return matched(code, "", "unknown invite"), nil
		}
		if inv.GroupDM {
			if !t.cfg.AllowGroupDMInvites {
				return matched(code, "", "group DM invite"), nil
			}
			continue
		}
		if len(includeGuilds) > 0 && contains(includeGuilds, inv.GuildID) {
			return matched(code, inv.GuildID, "blocked server"), nil
		}
		if len(excludeGuilds) > 0 && !contains(excludeGuilds, inv.GuildID) {
			return matched(code, inv.GuildID, "server not allowed"), nil
		}
	}
	return nil, nil
}

type matchAttachmentTypeConfig struct {
	WhitelistEnabled  bool       `yaml:"whitelist_enabled"`
	BlacklistEnabled  bool       `yaml:"blacklist_enabled"`
	FiletypeWhitelist StringList `yaml:"filetype_whitelist"`
	FiletypeBlacklist StringList `yaml:"filetype_blacklist"`
}

type matchAttachmentTypeTrigger struct {
	cfg matchAttachmentTypeConfig
}

func parseMatchAttachmentType(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	cfg := matchAttachmentTypeConfig{}
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.WhitelistEnabled && cfg.BlacklistEnabled {
		return nil, fmt.Errorf("whitelist_enabled and blacklist_enabled can not both be set")
	}
	if !cfg.WhitelistEnabled && !cfg.BlacklistEnabled {
		return nil, fmt.Errorf("one of whitelist_enabled or blacklist_enabled must be set")
	}
	cfg.FiletypeWhitelist = normalizeExtensions(cfg.FiletypeWhitelist)
	cfg.FiletypeBlacklist = normalizeExtensions(cfg.FiletypeBlacklist)
	return &matchAttachmentTypeTrigger{cfg: cfg}, nil
}

func normalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ext := range in {
		out = append(out, strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), "."))
	}
	return out
}

func (t *matchAttachmentTypeTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	msg := tc.Event.Message
	if msg == nil {
		return nil, nil
	}
	for _, a := range msg.Attachments {
		ext := fileExtension(a.Filename)
		var hit bool
		if t.cfg.BlacklistEnabled {
			hit = contains(t.cfg.FiletypeBlacklist, ext)
		} else {
			hit = !contains(t.cfg.FiletypeWhitelist, ext)
		}
		if hit {
			return &MatchResult{
				Summary: fmt.Sprintf("posted attachment `%s` with disallowed type", a.Filename),
				Extra:   AttachmentMatch{Filename: a.Filename, Extension: ext},
			}, nil
		}
	}
	return nil, nil
}
