package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/event"
	"github.com/zeppelin-bot/zeppelin/automod/modstore"
	"github.com/zeppelin-bot/zeppelin/models"
	"github.com/zeppelin-bot/zeppelin/util"

	"gopkg.in/yaml.v3"
)

// Discord caps timeouts at 28 days
const maxTimeout = 28 * 24 * time.Hour

type cleanAction struct{}

func parseCleanAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	return &cleanAction{}, nil
}

func (a *cleanAction) Apply(ac *ActionContext) error {
	var errs []error
	for channelID, ids := range ac.MessagesByChannel() {
		if err := ac.Deps().Platform.DeleteMessages(ac.Ctx, channelID, ids); err != nil {
			errs = append(errs, fmt.Errorf("deleting %d messages in %s: %w", len(ids), channelID, err))
		}
	}
	return errors.Join(errs...)
}

type warnConfig struct {
	Reason string `yaml:"reason"`
	Notify bool   `yaml:"notify"`
}

type warnAction struct {
	cfg warnConfig
}

func parseWarnAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	cfg := warnConfig{Notify: true}
	if !isTrueNode(node) {
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	return &warnAction{cfg: cfg}, nil
}

func (a *warnAction) Apply(ac *ActionContext) error {
	reason := actionReason(ac, a.cfg.Reason)
	var errs []error
	for _, u := range ac.Users() {
		if _, err := createCase(ac, modstore.CaseWarn, u, reason); err != nil {
			errs = append(errs, err)
			continue
		}
		if a.cfg.Notify {
			// users may have DMs closed; that doesn't fail the warning
			if err := ac.Deps().Platform.DirectMessage(ac.Ctx, u.ID, "You have received a warning: "+reason); err != nil {
				ac.Logger.Info("failed to DM warned user", "user", u.ID, "err", err)
			}
		}
		chainModAction(ac, event.ModWarn, u, reason)
	}
	return errors.Join(errs...)
}

type muteConfig struct {
	Duration Delay  `yaml:"duration"`
	Reason   string `yaml:"reason"`
	Notify   bool   `yaml:"notify"`
}

type muteAction struct {
	cfg muteConfig
}

func parseMuteAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	cfg := muteConfig{}
	if !isTrueNode(node) {
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	return &muteAction{cfg: cfg}, nil
}

// Mutes with the guild's mute role if one is configured, and a Discord timeout otherwise. Timeouts can't be indefinite, so a mute without duration falls back to the longest timeout.
func (a *muteAction) Apply(ac *ActionContext) error {
	reason := actionReason(ac, a.cfg.Reason)
	dur := a.cfg.Duration.Duration()
	var expiresAt *time.Time
	if dur > 0 {
		t := ac.Event.Timestamp.Add(dur)
		expiresAt = &t
	}
	var errs []error
	for _, u := range ac.Users() {
		var err error
		if ac.Guild.MuteRole != "" {
			err = ac.Deps().Platform.AddRole(ac.Ctx, ac.Guild.GuildID, u.ID, ac.Guild.MuteRole)
		} else {
			tdur := dur
			if tdur <= 0 || tdur > maxTimeout {
				tdur = maxTimeout
			}
			err = ac.Deps().Platform.Timeout(ac.Ctx, ac.Guild.GuildID, u.ID, ac.Event.Timestamp.Add(tdur))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("muting %s: %w", u.ID, err))
			continue
		}
		c, err := createCase(ac, modstore.CaseMute, u, reason)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := ac.Deps().Mutes.AddMute(ac.Ctx, ac.Guild.GuildID, u.ID, c.ID, expiresAt); err != nil {
			errs = append(errs, fmt.Errorf("recording mute for %s: %w", u.ID, err))
		}
		if a.cfg.Notify {
			msg := "You have been muted: " + reason
			if dur > 0 {
				msg = fmt.Sprintf("You have been muted for %s: %s", util.HumanizeDelay(dur), reason)
			}
			if err := ac.Deps().Platform.DirectMessage(ac.Ctx, u.ID, msg); err != nil {
				ac.Logger.Info("failed to DM muted user", "user", u.ID, "err", err)
			}
		}
		chainModAction(ac, event.ModMute, u, reason)
	}
	return errors.Join(errs...)
}

type kickConfig struct {
	Reason string `yaml:"reason"`
}

type kickAction struct {
	cfg kickConfig
}

func parseKickAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	cfg := kickConfig{}
	if !isTrueNode(node) {
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	return &kickAction{cfg: cfg}, nil
}

func (a *kickAction) Apply(ac *ActionContext) error {
	reason := actionReason(ac, a.cfg.Reason)
	var errs []error
	for _, u := range ac.Users() {
		if err := ac.Deps().Platform.Kick(ac.Ctx, ac.Guild.GuildID, u.ID, reason); err != nil {
			errs = append(errs, fmt.Errorf("kicking %s: %w", u.ID, err))
			continue
		}
		if _, err := createCase(ac, modstore.CaseKick, u, reason); err != nil {
			errs = append(errs, err)
		}
		chainModAction(ac, event.ModKick, u, reason)
	}
	return errors.Join(errs...)
}

type banConfig struct {
	Reason            string `yaml:"reason"`
	DeleteMessageDays int    `yaml:"delete_message_days"`
}

type banAction struct {
	cfg banConfig
}

func parseBanAction(node *yaml.Node, env *ParseEnv) (Action, error) {
	cfg := banConfig{}
	if !isTrueNode(node) {
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.DeleteMessageDays < 0 || cfg.DeleteMessageDays > 7 {
		return nil, fmt.Errorf("delete_message_days must be between 0 and 7")
	}
	return &banAction{cfg: cfg}, nil
}

func (a *banAction) Apply(ac *ActionContext) error {
	reason := actionReason(ac, a.cfg.Reason)
	var errs []error
	for _, u := range ac.Users() {
		if err := ac.Deps().Platform.Ban(ac.Ctx, ac.Guild.GuildID, u.ID, reason, a.cfg.DeleteMessageDays); err != nil {
			errs = append(errs, fmt.Errorf("banning %s: %w", u.ID, err))
			continue
		}
		if _, err := createCase(ac, modstore.CaseBan, u, reason); err != nil {
			errs = append(errs, err)
		}
		chainModAction(ac, event.ModBan, u, reason)
	}
	return errors.Join(errs...)
}

func actionReason(ac *ActionContext, configured string) string {
	if configured != "" {
		return renderTemplate(configured, templateVars(ac))
	}
	return "Automod: " + ac.Rule.Name
}

func createCase(ac *ActionContext, caseType string, u *event.User, reason string) (*models.Case, error) {
	c, err := ac.Deps().Cases.CreateCase(ac.Ctx, modstore.CaseInput{
		GuildID:     ac.Guild.GuildID,
		Type:        caseType,
		UserID:      u.ID,
		UserName:    u.Username,
		ModeratorID: ac.Deps().SelfUserID,
		Reason:      reason,
		Automatic:   true,
		CreatedAt:   ac.Event.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s case for %s: %w", caseType, u.ID, err)
	}
	return c, nil
}

// Feeds an automatic mod action back through automod, so rules can react to it (eg, counting warns).
func chainModAction(ac *ActionContext, kind string, u *event.User, reason string) {
	ac.chain(event.NewModActionContext(ac.Guild.GuildID, u, event.ModAction{
		Kind:        kind,
		TargetID:    u.ID,
		ModeratorID: ac.Deps().SelfUserID,
		Reason:      reason,
		Automatic:   true,
	}, ac.Event.Timestamp))
}
