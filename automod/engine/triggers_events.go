package engine

import (
	"fmt"
	"time"

	"github.com/zeppelin-bot/zeppelin/util"

	"gopkg.in/yaml.v3"
)

type memberJoinConfig struct {
	OnlyNew      bool  `yaml:"only_new"`
	NewThreshold Delay `yaml:"new_threshold"`
}

type memberJoinTrigger struct {
	cfg memberJoinConfig
}

func parseMemberJoin(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	cfg := memberJoinConfig{
		NewThreshold: Delay(time.Hour),
	}
	if !isTrueNode(node) {
		if err := DecodeStrict(node, &cfg); err != nil {
			return nil, err
		}
	}
	return &memberJoinTrigger{cfg: cfg}, nil
}

func (t *memberJoinTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	mj := tc.Event.MemberJoin
	if mj == nil {
		return nil, nil
	}
	var age time.Duration
	if !mj.AccountCreatedAt.IsZero() {
		age = tc.Event.Timestamp.Sub(mj.AccountCreatedAt)
	}
	if t.cfg.OnlyNew && (mj.AccountCreatedAt.IsZero() || age >= t.cfg.NewThreshold.Duration()) {
		return nil, nil
	}
	summary := "member joined"
	if !mj.AccountCreatedAt.IsZero() {
		summary = fmt.Sprintf("member joined (account age %s)", util.HumanizeDelay(age))
	}
	return &MatchResult{
		Summary: summary,
		Extra:   JoinMatch{AccountAge: age},
	}, nil
}

type memberLeaveTrigger struct{}

func parseMemberLeave(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	return &memberLeaveTrigger{}, nil
}

func (t *memberLeaveTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	if tc.Event.MemberLeave == nil {
		return nil, nil
	}
	return &MatchResult{Summary: "member left"}, nil
}

type roleChangeConfig struct {
	Role StringList `yaml:"role"`
}

type roleChangeTrigger struct {
	added bool
	roles []string
}

// Config is either {role: ...} or the role ID(s) directly.
func roleChangeParser(added bool) TriggerParseFunc {
	return func(node *yaml.Node, env *ParseEnv) (Trigger, error) {
		var roles StringList
		if node != nil && node.Kind == yaml.MappingNode {
			var cfg roleChangeConfig
			if err := DecodeStrict(node, &cfg); err != nil {
				return nil, err
			}
			roles = cfg.Role
		} else if node != nil {
			if err := node.Decode(&roles); err != nil {
				return nil, err
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("'role' is required")
		}
		return &roleChangeTrigger{added: added, roles: roles}, nil
	}
}

func (t *roleChangeTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	rc := tc.Event.RoleChange
	if rc == nil {
		return nil, nil
	}
	changed := rc.Removed
	verb := "removed"
	if t.added {
		changed = rc.Added
		verb = "added"
	}
	for _, r := range changed {
		if contains(t.roles, r) {
			return &MatchResult{
				Summary: fmt.Sprintf("role <@&%s> %s", r, verb),
				Extra:   RoleMatch{RoleID: r},
			}, nil
		}
	}
	return nil, nil
}

type counterTriggerConfig struct {
	Counter string `yaml:"counter"`
	Trigger string `yaml:"trigger"`
	Reverse bool   `yaml:"reverse"`
}

type counterTriggerTrigger struct {
	cfg counterTriggerConfig
}

func parseCounterTrigger(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	var cfg counterTriggerConfig
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	def, err := env.counter(cfg.Counter)
	if err != nil {
		return nil, err
	}
	found := false
	for _, t := range def.Triggers {
		if t.Name == cfg.Trigger {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("counter %s has no trigger named %q", cfg.Counter, cfg.Trigger)
	}
	return &counterTriggerTrigger{cfg: cfg}, nil
}

func (t *counterTriggerTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	ct := tc.Event.CounterTrigger
	if ct == nil {
		return nil, nil
	}
	if ct.Counter != t.cfg.Counter || ct.Trigger != t.cfg.Trigger || ct.Reverse != t.cfg.Reverse {
		return nil, nil
	}
	summary := fmt.Sprintf("counter %s reached trigger %s (value %d)", ct.Counter, ct.Trigger, ct.Value)
	if ct.Reverse {
		summary = fmt.Sprintf("counter %s reversed trigger %s (value %d)", ct.Counter, ct.Trigger, ct.Value)
	}
	return &MatchResult{
		Summary: summary,
		Extra:   CounterMatch{Counter: ct.Counter, Trigger: ct.Trigger, Reverse: ct.Reverse},
	}, nil
}

type antiraidLevelConfig struct {
	// nil means "off"
	Level        *string `yaml:"level"`
	OnlyOnChange bool    `yaml:"only_on_change"`
}

type antiraidLevelTrigger struct {
	level        string
	onlyOnChange bool
}

func parseAntiraidLevel(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	cfg := antiraidLevelConfig{
		OnlyOnChange: true,
	}
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	t := &antiraidLevelTrigger{onlyOnChange: cfg.OnlyOnChange}
	if cfg.Level != nil {
		t.level = *cfg.Level
	}
	return t, nil
}

func (t *antiraidLevelTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	ac := tc.Event.AntiraidChange
	if ac == nil {
		return nil, nil
	}
	if ac.NewLevel != t.level {
		return nil, nil
	}
	if t.onlyOnChange && ac.OldLevel == ac.NewLevel {
		return nil, nil
	}
	return &MatchResult{
		Summary: fmt.Sprintf("antiraid level changed from %s to %s", levelName(ac.OldLevel), levelName(ac.NewLevel)),
		Extra:   AntiraidMatch{OldLevel: ac.OldLevel, NewLevel: ac.NewLevel},
	}, nil
}

func levelName(level string) string {
	if level == "" {
		return "off"
	}
	return level
}

type modActionConfig struct {
	Manual    bool `yaml:"manual"`
	Automatic bool `yaml:"automatic"`
}

type modActionTrigger struct {
	kind string
	cfg  modActionConfig
}

func modActionParser(kind string) TriggerParseFunc {
	return func(node *yaml.Node, env *ParseEnv) (Trigger, error) {
		cfg := modActionConfig{
			Manual:    true,
			Automatic: true,
		}
		if !isTrueNode(node) {
			if err := DecodeStrict(node, &cfg); err != nil {
				return nil, err
			}
		}
		return &modActionTrigger{kind: kind, cfg: cfg}, nil
	}
}

func (t *modActionTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	ma := tc.Event.ModAction
	if ma == nil || ma.Kind != t.kind {
		return nil, nil
	}
	if ma.Automatic && !t.cfg.Automatic {
		return nil, nil
	}
	if !ma.Automatic && !t.cfg.Manual {
		return nil, nil
	}
	by := "manual"
	if ma.Automatic {
		by = "automatic"
	}
	return &MatchResult{
		Summary: fmt.Sprintf("%s %s of <@!%s>", by, ma.Kind, ma.TargetID),
		Extra:   ModActionMatch{Kind: ma.Kind, Automatic: ma.Automatic},
	}, nil
}

type threadCreateTrigger struct{}

func parseThreadCreate(node *yaml.Node, env *ParseEnv) (Trigger, error) {
	return &threadCreateTrigger{}, nil
}

func (t *threadCreateTrigger) Match(tc *TriggerContext) (*MatchResult, error) {
	th := tc.Event.ThreadCreate
	if th == nil {
		return nil, nil
	}
	return &MatchResult{
		Summary: fmt.Sprintf("thread `%s` created in <#%s>", th.Name, th.ParentID),
		Extra:   ThreadMatch{ThreadID: th.ThreadID},
	}, nil
}
