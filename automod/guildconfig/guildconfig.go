// Loads per-guild automod configuration from YAML files.
//
// Each guild has one file, named by guild ID (eg, "123456789.yml"). The file declares the guild's log channel, mute role, counters, and rules. Counters are parsed first, so rules can reference them.
package guildconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/zeppelin-bot/zeppelin/automod/counters"
	"github.com/zeppelin-bot/zeppelin/automod/engine"
	"github.com/zeppelin-bot/zeppelin/automod/setstore"

	"gopkg.in/yaml.v3"
)

type guildFile struct {
	LogChannel string    `yaml:"log_channel"`
	MuteRole   string    `yaml:"mute_role"`
	Counters   yaml.Node `yaml:"counters"`
	Rules      yaml.Node `yaml:"rules"`
}

type counterConfig struct {
	PerUser      bool      `yaml:"per_user"`
	PerChannel   bool      `yaml:"per_channel"`
	InitialValue int       `yaml:"initial_value"`
	Triggers     yaml.Node `yaml:"triggers"`
}

type counterTriggerConfig struct {
	Condition        string `yaml:"condition"`
	ReverseCondition string `yaml:"reverse_condition"`
}

// Parses a guild config document. The returned config is not yet installed on any engine.
func Parse(guildID string, raw []byte, sets setstore.SetStore) (*engine.GuildConfig, error) {
	var gf guildFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&gf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("guild %s: %w", guildID, err)
	}

	defs, err := parseCounters(&gf.Counters)
	if err != nil {
		return nil, fmt.Errorf("guild %s: %w", guildID, err)
	}
	rules, err := engine.ParseRules(&gf.Rules, &engine.ParseEnv{Counters: defs, Sets: sets})
	if err != nil {
		return nil, fmt.Errorf("guild %s: %w", guildID, err)
	}
	return &engine.GuildConfig{
		GuildID:    guildID,
		LogChannel: gf.LogChannel,
		MuteRole:   gf.MuteRole,
		Counters:   defs,
		Rules:      rules,
	}, nil
}

func parseCounters(node *yaml.Node) (map[string]*counters.Definition, error) {
	out := make(map[string]*counters.Definition)
	if node.Kind == 0 || node.Tag == "!!null" {
		return out, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("counters: line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var cc counterConfig
		if err := engine.DecodeStrict(node.Content[i+1], &cc); err != nil {
			return nil, fmt.Errorf("counter %s: %w", name, err)
		}
		def := &counters.Definition{
			Name:         name,
			PerUser:      cc.PerUser,
			PerChannel:   cc.PerChannel,
			InitialValue: cc.InitialValue,
		}
		trigs := &cc.Triggers
		if trigs.Kind != 0 && trigs.Tag != "!!null" {
			if trigs.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("counter %s: triggers: line %d: expected a mapping", name, trigs.Line)
			}
			// keep document order, so crossings are reported in a stable order
			for j := 0; j+1 < len(trigs.Content); j += 2 {
				tname := trigs.Content[j].Value
				var tc counterTriggerConfig
				if err := engine.DecodeStrict(trigs.Content[j+1], &tc); err != nil {
					return nil, fmt.Errorf("counter %s: trigger %s: %w", name, tname, err)
				}
				t, err := parseCounterTrigger(tname, tc)
				if err != nil {
					return nil, fmt.Errorf("counter %s: %w", name, err)
				}
				def.Triggers = append(def.Triggers, t)
			}
		}
		out[name] = def
	}
	return out, nil
}

func parseCounterTrigger(name string, tc counterTriggerConfig) (counters.Trigger, error) {
	cond, err := counters.ParseCondition(tc.Condition)
	if err != nil {
		return counters.Trigger{}, fmt.Errorf("trigger %s: condition: %w", name, err)
	}
	reverse := cond.Negate()
	if tc.ReverseCondition != "" {
		reverse, err = counters.ParseCondition(tc.ReverseCondition)
		if err != nil {
			return counters.Trigger{}, fmt.Errorf("trigger %s: reverse_condition: %w", name, err)
		}
	}
	return counters.Trigger{Name: name, Condition: cond, ReverseCondition: reverse}, nil
}
