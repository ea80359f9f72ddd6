package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/counters"
	"github.com/zeppelin-bot/zeppelin/automod/event"

	"gopkg.in/yaml.v3"
)

type roleAction struct {
	add   bool
	roles []string
}

// Config is a role ID or list of role IDs.
func roleActionParser(add bool) ActionParseFunc {
	return func(node *yaml.Node, env *ParseEnv) (Action, error) {
		var roles StringList
		if err := node.Decode(&roles); err != nil {
			return nil, err
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("at least one role is required")
		}
		return &roleAction{add: add, roles: dedupeStrings(roles)}, nil
	}
}

func (a *roleAction) Apply(ac *ActionContext) error {
	p := ac.Deps().Platform
	var roles []string
	var errs []error
	for _, r := range a.roles {
		ok, err := p.RoleExists(ac.Ctx, ac.Guild.GuildID, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("checking role %s: %w", r, err))
			continue
		}
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownRole, r))
			continue
		}
		roles = append(roles, r)
	}
	for _, u := range ac.Users() {
		for _, r := range roles {
			var err error
			if a.add {
				err = p.AddRole(ac.Ctx, ac.Guild.GuildID, u.ID, r)
			} else {
				err = p.RemoveRole(ac.Ctx, ac.Guild.GuildID, u.ID, r)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("updating role %s for %s: %w", r, u.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

type setNicknameConfig struct {
	Name string `yaml:"name"`
}

type setNicknameAction struct {
	cfg setNicknameConfig
}

func parseSetNicknameAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	var cfg setNicknameConfig
	if node != nil && node.Kind == yaml.ScalarNode && !isNullNode(node) {
		cfg.Name = node.Value
	} else if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Name) > 32 {
		return nil, fmt.Errorf("nickname can be at most 32 characters")
	}
	return &setNicknameAction{cfg: cfg}, nil
}

func (a *setNicknameAction) Apply(ac *ActionContext) error {
	var errs []error
	for _, u := range ac.Users() {
		if err := ac.Deps().Platform.SetNickname(ac.Ctx, ac.Guild.GuildID, u.ID, a.cfg.Name); err != nil {
			errs = append(errs, fmt.Errorf("setting nickname of %s: %w", u.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Empty level turns antiraid off.
type setAntiraidLevelAction struct {
	level string
}

func parseSetAntiraidLevelAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	if isNullNode(node) {
		return &setAntiraidLevelAction{}, nil
	}
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: expected an antiraid level or null", node.Line)
	}
	return &setAntiraidLevelAction{level: node.Value}, nil
}

// Always emits an antiraid change context, including for no-op changes; the antiraid_level trigger decides whether those count.
func (a *setAntiraidLevelAction) Apply(ac *ActionContext) error {
	store := ac.Deps().Antiraid
	old, err := store.GetAntiraidLevel(ac.Ctx, ac.Guild.GuildID)
	if err != nil {
		return fmt.Errorf("reading antiraid level: %w", err)
	}
	if err := store.SetAntiraidLevel(ac.Ctx, ac.Guild.GuildID, a.level); err != nil {
		return fmt.Errorf("setting antiraid level: %w", err)
	}
	ac.chain(event.NewAntiraidContext(ac.Guild.GuildID, old, a.level, ac.Event.Timestamp))
	return nil
}

type changeCounterConfig struct {
	Counter string    `yaml:"counter"`
	Change  SignedInt `yaml:"change"`
}

type changeCounterAction struct {
	cfg changeCounterConfig
}

func parseChangeCounterAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	cfg := changeCounterConfig{Change: 1}
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if _, err := env.counter(cfg.Counter); err != nil {
		return nil, err
	}
	return &changeCounterAction{cfg: cfg}, nil
}

func (a *changeCounterAction) Apply(ac *ActionContext) error {
	def, err := ac.Guild.Counter(a.cfg.Counter)
	if err != nil {
		return err
	}
	return applyCounterUpdate(ac, def, func(channelID, userID string) ([]counters.Crossing, error) {
		return ac.Deps().Counters.Change(ac.Ctx, ac.Guild.GuildID, def, channelID, userID, int(a.cfg.Change))
	})
}

type setCounterConfig struct {
	Counter string    `yaml:"counter"`
	Value   SignedInt `yaml:"value"`
}

type setCounterAction struct {
	cfg setCounterConfig
}

func parseSetCounterAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	var cfg setCounterConfig
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if _, err := env.counter(cfg.Counter); err != nil {
		return nil, err
	}
	return &setCounterAction{cfg: cfg}, nil
}

func (a *setCounterAction) Apply(ac *ActionContext) error {
	def, err := ac.Guild.Counter(a.cfg.Counter)
	if err != nil {
		return err
	}
	return applyCounterUpdate(ac, def, func(channelID, userID string) ([]counters.Crossing, error) {
		return ac.Deps().Counters.Set(ac.Ctx, ac.Guild.GuildID, def, channelID, userID, int(a.cfg.Value))
	})
}

// Runs a counter update once per affected user (or once, for counters which aren't per-user), and enqueues a counter trigger context for every crossing.
func applyCounterUpdate(ac *ActionContext, def *counters.Definition, update func(channelID, userID string) ([]counters.Crossing, error)) error {
	userIDs := []string{""}
	if def.PerUser {
		userIDs = nil
		for _, u := range ac.Users() {
			userIDs = append(userIDs, u.ID)
		}
		if len(userIDs) == 0 {
			return fmt.Errorf("counter %s: %w", def.Name, counters.ErrMissingUser)
		}
	}
	channelID := ""
	if def.PerChannel {
		channelID = ac.Event.ChannelID
	}
	var errs []error
	for _, uid := range userIDs {
		crossings, err := update(channelID, uid)
		if err != nil {
			errs = append(errs, err)
		}
		for _, cr := range crossings {
			var user *event.User
			for _, u := range ac.Users() {
				if u.ID == cr.UserID {
					user = u
				}
			}
			ac.chain(event.NewCounterTriggerContext(ac.Guild.GuildID, user, event.CounterTrigger{
				Counter:   cr.Counter,
				Trigger:   cr.Trigger,
				ChannelID: cr.ChannelID,
				UserID:    cr.UserID,
				Reverse:   cr.Reverse,
				Value:     cr.Value,
			}, ac.Event.Timestamp))
		}
	}
	return errors.Join(errs...)
}

type alertConfig struct {
	Channel string `yaml:"channel"`
	Text    string `yaml:"text"`
}

type alertAction struct {
	cfg alertConfig
}

func parseAlertAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	var cfg alertConfig
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Channel == "" || cfg.Text == "" {
		return nil, fmt.Errorf("'channel' and 'text' are required")
	}
	return &alertAction{cfg: cfg}, nil
}

func (a *alertAction) Apply(ac *ActionContext) error {
	text := renderTemplate(a.cfg.Text, templateVars(ac))
	return ac.Deps().Platform.SendMessage(ac.Ctx, a.cfg.Channel, text)
}

type replyConfig struct {
	Text string `yaml:"text"`
}

type replyAction struct {
	cfg replyConfig
}

func parseReplyAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	var cfg replyConfig
	if node != nil && node.Kind == yaml.ScalarNode && !isNullNode(node) {
		cfg.Text = node.Value
	} else if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Text == "" {
		return nil, fmt.Errorf("'text' is required")
	}
	return &replyAction{cfg: cfg}, nil
}

// Replies to the triggering message. No-op for contexts without a message.
func (a *replyAction) Apply(ac *ActionContext) error {
	msg := ac.Event.Message
	if msg == nil {
		return nil
	}
	text := renderTemplate(a.cfg.Text, templateVars(ac))
	return ac.Deps().Platform.Reply(ac.Ctx, msg.ChannelID, msg.ID, text)
}

type setSlowmodeConfig struct {
	Channels StringList `yaml:"channels"`
	Duration Delay      `yaml:"duration"`
}

type setSlowmodeAction struct {
	cfg setSlowmodeConfig
}

func parseSetSlowmodeAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	var cfg setSlowmodeConfig
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	// Discord's maximum slowmode is 6 hours
	if cfg.Duration.Duration() < 0 || cfg.Duration.Duration() > 6*time.Hour {
		return nil, fmt.Errorf("slowmode duration must be between 0 and 6h")
	}
	return &setSlowmodeAction{cfg: cfg}, nil
}

// Without configured channels, applies to the channel of the triggering context.
func (a *setSlowmodeAction) Apply(ac *ActionContext) error {
	channels := []string(a.cfg.Channels)
	if len(channels) == 0 && ac.Event.ChannelID != "" {
		channels = []string{ac.Event.ChannelID}
	}
	var errs []error
	for _, ch := range channels {
		if err := ac.Deps().Platform.SetSlowmode(ac.Ctx, ch, a.cfg.Duration.Duration()); err != nil {
			errs = append(errs, fmt.Errorf("setting slowmode in %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

type archiveThreadAction struct{}

func parseArchiveThreadAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	return &archiveThreadAction{}, nil
}

func (a *archiveThreadAction) Apply(ac *ActionContext) error {
	threadID := ""
	switch {
	case ac.Event.ThreadCreate != nil:
		threadID = ac.Event.ThreadCreate.ThreadID
	case ac.Event.Message != nil:
		threadID = ac.Event.Message.ThreadID
	}
	if threadID == "" {
		return nil
	}
	return ac.Deps().Platform.ArchiveThread(ac.Ctx, threadID)
}

type logAction struct{}

func parseLogAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	if !isNullNode(node) && !isTrueNode(node) {
		return nil, fmt.Errorf("line %d: expected a boolean", node.Line)
	}
	return &logAction{}, nil
}

func (a *logAction) Apply(ac *ActionContext) error {
	entry := LogEntry{
		GuildID:   ac.Guild.GuildID,
		Rule:      ac.Rule.Name,
		UserID:    ac.Event.UserID(),
		ChannelID: ac.Event.ChannelID,
		Summary:   ac.Match.Summary,
		Actions:   ac.Rule.ActionNames(),
		Contexts:  len(ac.Batch),
		Timestamp: ac.Event.Timestamp,
	}
	if ac.Event.User != nil {
		entry.UserName = ac.Event.User.Username
	}
	return ac.Deps().Logs.LogAutomodAction(ac.Ctx, entry)
}

func templateVars(ac *ActionContext) map[string]string {
	var users []string
	for _, u := range ac.Users() {
		users = append(users, "<@!"+u.ID+">")
	}
	summary := ""
	if ac.Match != nil {
		summary = ac.Match.Summary
	}
	channel := ""
	if ac.Event.ChannelID != "" {
		channel = "<#" + ac.Event.ChannelID + ">"
	}
	return map[string]string{
		"rule":    ac.Rule.Name,
		"user":    strings.Join(users, ", "),
		"users":   strings.Join(users, ", "),
		"summary": summary,
		"channel": channel,
	}
}
