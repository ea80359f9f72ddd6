package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/cooldownstore"
	"github.com/zeppelin-bot/zeppelin/automod/counters"
	"github.com/zeppelin-bot/zeppelin/automod/countstore"
	"github.com/zeppelin-bot/zeppelin/automod/modstore"
	"github.com/zeppelin-bot/zeppelin/automod/setstore"

	"gopkg.in/yaml.v3"
)

// In-memory Platform which records every call. Intentionally exported, for use in other packages' tests.
type MockPlatform struct {
	lk    sync.Mutex
	Calls []string
	// method name => error to return
	Fail map[string]error
	// role IDs which exist; nil means every role exists
	Roles   map[string]bool
	Invites map[string]*InviteInfo
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		Fail:    make(map[string]error),
		Invites: make(map[string]*InviteInfo),
	}
}

func (p *MockPlatform) record(method string, args ...any) error {
	p.lk.Lock()
	defer p.lk.Unlock()
	parts := []string{method}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	p.Calls = append(p.Calls, strings.Join(parts, " "))
	return p.Fail[method]
}

// Calls whose method name matches, eg "Ban".
func (p *MockPlatform) CallsTo(method string) []string {
	p.lk.Lock()
	defer p.lk.Unlock()
	var out []string
	for _, c := range p.Calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			out = append(out, c)
		}
	}
	return out
}

func (p *MockPlatform) DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	return p.record("DeleteMessages", channelID, strings.Join(messageIDs, ","))
}

func (p *MockPlatform) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error {
	return p.record("Ban", guildID, userID, deleteMessageDays)
}

func (p *MockPlatform) Kick(ctx context.Context, guildID, userID, reason string) error {
	return p.record("Kick", guildID, userID)
}

func (p *MockPlatform) Timeout(ctx context.Context, guildID, userID string, until time.Time) error {
	return p.record("Timeout", guildID, userID, until.UTC().Format(time.RFC3339))
}

func (p *MockPlatform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.record("AddRole", guildID, userID, roleID)
}

func (p *MockPlatform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.record("RemoveRole", guildID, userID, roleID)
}

func (p *MockPlatform) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if p.Roles == nil {
		return true, nil
	}
	return p.Roles[roleID], nil
}

func (p *MockPlatform) SetNickname(ctx context.Context, guildID, userID, nick string) error {
	return p.record("SetNickname", guildID, userID, nick)
}

func (p *MockPlatform) SendMessage(ctx context.Context, channelID, content string) error {
	return p.record("SendMessage", channelID, content)
}

func (p *MockPlatform) Reply(ctx context.Context, channelID, messageID, content string) error {
	return p.record("Reply", channelID, messageID, content)
}

func (p *MockPlatform) DirectMessage(ctx context.Context, userID, content string) error {
	return p.record("DirectMessage", userID)
}

func (p *MockPlatform) SetSlowmode(ctx context.Context, channelID string, d time.Duration) error {
	return p.record("SetSlowmode", channelID, d)
}

func (p *MockPlatform) ArchiveThread(ctx context.Context, threadID string) error {
	return p.record("ArchiveThread", threadID)
}

func (p *MockPlatform) ResolveInvite(ctx context.Context, code string) (*InviteInfo, error) {
	p.lk.Lock()
	defer p.lk.Unlock()
	return p.Invites[code], p.Fail["ResolveInvite"]
}

// Collects bot alerts and log entries in memory.
type MockNotifier struct {
	lk      sync.Mutex
	Alerts  []string
	Entries []LogEntry
}

func (n *MockNotifier) BotAlert(ctx context.Context, guildID, msg string) error {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.Alerts = append(n.Alerts, msg)
	return nil
}

func (n *MockNotifier) LogAutomodAction(ctx context.Context, entry LogEntry) error {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.Entries = append(n.Entries, entry)
	return nil
}

type TestFixture struct {
	Engine   *Engine
	Platform *MockPlatform
	Notifier *MockNotifier
	Mod      *modstore.MemModStore
	Sets     *setstore.MemSetStore
}

const TestSelfUserID = "999"

// Engine wired entirely with in-memory collaborators.
func EngineTestFixture() *TestFixture {
	platform := NewMockPlatform()
	notifier := &MockNotifier{}
	mod := modstore.NewMemModStore()
	sets := setstore.NewMemSetStore()
	sets.Put("bad-words", []string{"slur", "badword"})
	deps := Deps{
		Platform:   platform,
		Cases:      mod,
		Mutes:      mod,
		Antiraid:   mod,
		Counters:   counters.NewService(countstore.NewMemCountStore()),
		Cooldowns:  cooldownstore.NewMemCooldownStore(),
		Sets:       sets,
		Logs:       notifier,
		Alerts:     notifier,
		SelfUserID: TestSelfUserID,
	}
	eng := NewEngine(slog.Default(), deps, Config{Workers: 4, MaxQueueDepth: 50})
	return &TestFixture{
		Engine:   eng,
		Platform: platform,
		Notifier: notifier,
		Mod:      mod,
		Sets:     sets,
	}
}

// Parses rules from YAML (the body of a "rules:" mapping) and installs them for the guild. Panics on error; test helper only.
func (f *TestFixture) MustLoadRules(guildID, rulesYAML string, defs ...*counters.Definition) *GuildConfig {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(rulesYAML), &doc); err != nil {
		panic(err)
	}
	gc := &GuildConfig{Counters: make(map[string]*counters.Definition)}
	for _, d := range defs {
		gc.Counters[d.Name] = d
	}
	rules, err := ParseRules(&doc, &ParseEnv{Counters: gc.Counters, Sets: f.Sets})
	if err != nil {
		panic(err)
	}
	gc.Rules = rules
	f.Engine.SetGuildConfig(guildID, gc)
	return gc
}
