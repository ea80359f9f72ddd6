package engine

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/counters"
	"github.com/zeppelin-bot/zeppelin/automod/setstore"
	"github.com/zeppelin-bot/zeppelin/util"

	"gopkg.in/yaml.v3"
)

// Parsed automod configuration for a single guild. Immutable once built; reloading replaces the whole struct.
type GuildConfig struct {
	GuildID    string
	LogChannel string
	// When empty, mutes use Discord timeouts instead of a role
	MuteRole string
	Counters map[string]*counters.Definition
	Rules    []*Rule
}

func (gc *GuildConfig) Counter(name string) (*counters.Definition, error) {
	def, ok := gc.Counters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCounter, name)
	}
	return def, nil
}

// Inputs available while parsing trigger and action configs.
type ParseEnv struct {
	Counters map[string]*counters.Definition
	Sets     setstore.SetStore
}

func (env *ParseEnv) counter(name string) (*counters.Definition, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCounter, name)
	}
	def, ok := env.Counters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCounter, name)
	}
	return def, nil
}

// Duration as written in configs: "10s", "1h30m", "2d", or a bare number of minutes.
type Delay time.Duration

func (d *Delay) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", value.Line)
	}
	dur, err := util.ParseDelay(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Delay(dur)
	return nil
}

func (d Delay) Duration() time.Duration {
	return time.Duration(d)
}

// Either a single string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := value.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	}
	return fmt.Errorf("line %d: expected a string or list of strings", value.Line)
}

// Integer which may be written with an explicit sign, eg "+1" or "-5".
type SignedInt int

func (i *SignedInt) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an integer", value.Line)
	}
	v, err := strconv.Atoi(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid integer %q", value.Line, value.Value)
	}
	*i = SignedInt(v)
	return nil
}

// Decodes a config node into a struct, rejecting unknown keys. Fields already set on 'out' act as defaults.
func DecodeStrict(node *yaml.Node, out any) error {
	if isNullNode(node) {
		return nil
	}
	if node.Kind == yaml.MappingNode {
		known := yamlFieldNames(reflect.TypeOf(out))
		for i := 0; i+1 < len(node.Content); i += 2 {
			k := node.Content[i]
			if !known[k.Value] {
				return fmt.Errorf("line %d: unknown option %q", k.Line, k.Value)
			}
		}
	}
	return node.Decode(out)
}

func yamlFieldNames(t reflect.Type) map[string]bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := make(map[string]bool)
	if t.Kind() != reflect.Struct {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		out[name] = true
	}
	return out
}

func isNullNode(node *yaml.Node) bool {
	return node == nil || node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

// True for an explicit boolean false, used to disable an action.
func isFalseNode(node *yaml.Node) bool {
	if node == nil || node.Kind != yaml.ScalarNode || node.Tag != "!!bool" {
		return false
	}
	v, err := strconv.ParseBool(node.Value)
	return err == nil && !v
}

// Boolean "true" is accepted as shorthand for an empty config.
func isTrueNode(node *yaml.Node) bool {
	if node == nil || node.Kind != yaml.ScalarNode || node.Tag != "!!bool" {
		return false
	}
	v, err := strconv.ParseBool(node.Value)
	return err == nil && v
}

// Returns the key/value pairs of a mapping node, in document order.
func mappingPairs(node *yaml.Node) ([][2]*yaml.Node, error) {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	var out [][2]*yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, [2]*yaml.Node{node.Content[i], node.Content[i+1]})
	}
	return out, nil
}
