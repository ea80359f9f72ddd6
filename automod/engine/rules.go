package engine

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type NamedTrigger struct {
	Type string
	// index of the trigger entry (list item) this trigger was configured in
	Entry   int
	Trigger Trigger
}

type NamedAction struct {
	Type   string
	Action Action
}

// A user-configured automod rule. Immutable after parsing.
type Rule struct {
	Name    string
	Enabled bool
	// All triggers of all entries, in config order. The rule matches if any of them match.
	Triggers          []NamedTrigger
	Actions           []NamedAction
	Cooldown          time.Duration
	AffectsBots       bool
	AffectsSelf       bool
	AllowFurtherRules bool
}

func (r *Rule) ActionNames() []string {
	out := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		out = append(out, a.Type)
	}
	return out
}

type ruleConfig struct {
	Enabled           *bool       `yaml:"enabled"`
	Triggers          []yaml.Node `yaml:"triggers"`
	Actions           yaml.Node   `yaml:"actions"`
	Cooldown          Delay       `yaml:"cooldown"`
	AffectsBots       bool        `yaml:"affects_bots"`
	AffectsSelf       bool        `yaml:"affects_self"`
	AllowFurtherRules bool        `yaml:"allow_further_rules"`
}

// Parses the "rules" mapping of a guild config. Rules keep their order from the document.
func ParseRules(node *yaml.Node, env *ParseEnv) ([]*Rule, error) {
	if isNullNode(node) {
		return nil, nil
	}
	pairs, err := mappingPairs(node)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	var out []*Rule
	seen := make(map[string]bool)
	for _, kv := range pairs {
		name := kv[0].Value
		if seen[name] {
			return nil, fmt.Errorf("rule %s: duplicate rule name", name)
		}
		seen[name] = true
		r, err := ParseRule(name, kv[1], env)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func ParseRule(name string, node *yaml.Node, env *ParseEnv) (*Rule, error) {
	var cfg ruleConfig
	if err := DecodeStrict(node, &cfg); err != nil {
		return nil, err
	}
	r := &Rule{
		Name:              name,
		Enabled:           cfg.Enabled == nil || *cfg.Enabled,
		Cooldown:          cfg.Cooldown.Duration(),
		AffectsBots:       cfg.AffectsBots,
		AffectsSelf:       cfg.AffectsSelf,
		AllowFurtherRules: cfg.AllowFurtherRules,
	}
	if r.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown can not be negative")
	}

	if len(cfg.Triggers) == 0 {
		return nil, fmt.Errorf("at least one trigger is required")
	}
	for i := range cfg.Triggers {
		pairs, err := mappingPairs(&cfg.Triggers[i])
		if err != nil {
			return nil, fmt.Errorf("trigger entry %d: %w", i, err)
		}
		for _, kv := range pairs {
			typ := kv[0].Value
			parse, ok := triggerTypes[typ]
			if !ok {
				return nil, fmt.Errorf("trigger %s: %w", typ, ErrUnknownTrigger)
			}
			t, err := parse(kv[1], env)
			if err != nil {
				return nil, fmt.Errorf("trigger %s: %w", typ, err)
			}
			r.Triggers = append(r.Triggers, NamedTrigger{Type: typ, Entry: i, Trigger: t})
		}
	}

	if !isNullNode(&cfg.Actions) {
		pairs, err := mappingPairs(&cfg.Actions)
		if err != nil {
			return nil, fmt.Errorf("actions: %w", err)
		}
		for _, kv := range pairs {
			typ := kv[0].Value
			parse, ok := actionTypes[typ]
			if !ok {
				return nil, fmt.Errorf("action %s: %w", typ, ErrUnknownAction)
			}
			// explicitly disabled. set_antiraid_level is the exception, where null means "off"
			if isFalseNode(kv[1]) || (isNullNode(kv[1]) && typ != "set_antiraid_level") {
				continue
			}
			a, err := parse(kv[1], env)
			if err != nil {
				return nil, fmt.Errorf("action %s: %w", typ, err)
			}
			r.Actions = append(r.Actions, NamedAction{Type: typ, Action: a})
		}
	}
	return r, nil
}
