package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/counters"
	"github.com/zeppelin-bot/zeppelin/automod/event"

	"github.com/stretchr/testify/assert"
)

var testBase = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testUser(id string) *event.User {
	return &event.User{ID: id, Username: "user" + id, CreatedAt: testBase.Add(-365 * 24 * time.Hour)}
}

func testMessage(guildID, userID, channelID, msgID, content string, ts time.Time) *event.Context {
	return event.NewMessageContext(guildID, testUser(userID), nil, event.Message{
		ID:        msgID,
		ChannelID: channelID,
		Content:   content,
	}, ts)
}

func waitQueue(t *testing.T, eng *Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Queue.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestEngineBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
bad-words:
  triggers:
    - match_words:
        words_list: bad-words
  actions:
    clean: true
    reply: "watch your language, {user}"
    log: true
`)

	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m1", "hello there", testBase))
	assert.NoError(err)
	assert.Equal(RuleNoMatch, ev.Rule("bad-words").State)

	ev, err = f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m2", "what a SLUR", testBase))
	assert.NoError(err)
	re := ev.Rule("bad-words")
	assert.Equal(RuleDone, re.State)
	assert.Equal("match_words", re.Trigger)
	assert.Equal(WordMatch{Word: "slur", Source: "message"}, re.Match.Extra)
	assert.Equal([]string{"DeleteMessages c1 m2"}, f.Platform.CallsTo("DeleteMessages"))
	assert.Equal([]string{"Reply c1 m2 watch your language, <@!100>"}, f.Platform.CallsTo("Reply"))
	assert.Equal(1, len(f.Notifier.Entries))
	assert.Equal("bad-words", f.Notifier.Entries[0].Rule)
	assert.Equal([]string{"clean", "reply", "log"}, f.Notifier.Entries[0].Actions)

	// guilds without config are ignored
	ev, err = f.Engine.ProcessContext(ctx, testMessage("other", "100", "c1", "m3", "slur", testBase))
	assert.NoError(err)
	assert.Empty(ev.Rules)
}

func TestTriggerEntriesAreORed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
either:
  triggers:
    - match_words: { words: [foo] }
    - match_regex: { patterns: ["ba+r"] }
  actions:
    log: true
`)

	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m1", "baaar", testBase))
	assert.NoError(err)
	assert.Equal("match_regex", ev.Rule("either").Trigger)

	// first matching trigger wins
	ev, err = f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m2", "foo bar", testBase))
	assert.NoError(err)
	assert.Equal("match_words", ev.Rule("either").Trigger)

	ev, err = f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m3", "nothing", testBase))
	assert.NoError(err)
	assert.Equal(RuleNoMatch, ev.Rule("either").State)
}

func TestSpamFiresOncePerBurst(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
flood:
  triggers:
    - message_spam: { amount: 3, within: 10s }
  actions:
    clean: true
`)

	var msgs []*event.Context
	for i := 0; i < 4; i++ {
		c := testMessage("g1", "100", "c1", fmt.Sprintf("m%d", i), "spam", testBase.Add(time.Duration(i)*time.Second))
		msgs = append(msgs, c)
		ev, err := f.Engine.ProcessContext(ctx, c)
		assert.NoError(err)
		if i == 2 {
			re := ev.Rule("flood")
			assert.Equal(RuleDone, re.State)
			assert.Equal(2, len(re.Match.ExtraContexts))
			assert.Equal(SpamMatch{Kind: "message_spam", Count: 3, Window: 10 * time.Second}, re.Match.Extra)
		} else {
			assert.Equal(RuleNoMatch, ev.Rule("flood").State, "message %d", i)
		}
	}
	assert.True(msgs[0].Actioned)
	assert.True(msgs[1].Actioned)
	assert.True(msgs[2].Actioned)
	assert.False(msgs[3].Actioned)
	assert.Equal([]string{"DeleteMessages c1 m2,m0,m1"}, f.Platform.CallsTo("DeleteMessages"))

	// other users and (with per_channel) other channels are counted separately
	for i := 0; i < 2; i++ {
		ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "200", "c1", fmt.Sprintf("u2m%d", i), "spam", testBase.Add(5*time.Second)))
		assert.NoError(err)
		assert.Equal(RuleNoMatch, ev.Rule("flood").State)
		ev, err = f.Engine.ProcessContext(ctx, testMessage("g1", "200", "c2", fmt.Sprintf("u2c2m%d", i), "spam", testBase.Add(5*time.Second)))
		assert.NoError(err)
		assert.Equal(RuleNoMatch, ev.Rule("flood").State)
	}

	// entries outside the window don't count
	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "200", "c1", "late", "spam", testBase.Add(20*time.Second)))
	assert.NoError(err)
	assert.Equal(RuleNoMatch, ev.Rule("flood").State)
}

func TestCooldownBoundary(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
greet:
  cooldown: 30s
  triggers:
    - any_message: {}
  actions:
    reply: { text: "hi" }
`)

	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m1", "a", testBase))
	assert.NoError(err)
	assert.Equal(RuleDone, ev.Rule("greet").State)

	ev, err = f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m2", "b", testBase.Add(29*time.Second)))
	assert.NoError(err)
	assert.Equal(RuleSkippedCooldown, ev.Rule("greet").State)

	// cooldowns are per user
	ev, err = f.Engine.ProcessContext(ctx, testMessage("g1", "200", "c1", "m3", "c", testBase.Add(29*time.Second)))
	assert.NoError(err)
	assert.Equal(RuleDone, ev.Rule("greet").State)

	// eligible again exactly at expiry
	ev, err = f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m4", "d", testBase.Add(30*time.Second)))
	assert.NoError(err)
	assert.Equal(RuleDone, ev.Rule("greet").State)
	assert.Equal(3, len(f.Platform.CallsTo("Reply")))
}

func TestRuleOrderingAndFurtherRules(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
first:
  allow_further_rules: true
  triggers:
    - any_message: {}
  actions:
    log: true
second:
  triggers:
    - any_message: {}
  actions:
    log: true
third:
  triggers:
    - any_message: {}
  actions:
    log: true
`)
	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m1", "x", testBase))
	assert.NoError(err)
	assert.Equal([]string{"first", "second"}, ev.Matched())
	assert.Equal(RulePending, ev.Rule("third").State)
	assert.Equal("first", f.Notifier.Entries[0].Rule)
	assert.Equal("second", f.Notifier.Entries[1].Rule)
}

func TestRuleSkips(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
disabled:
  enabled: false
  allow_further_rules: true
  triggers:
    - any_message: {}
  actions:
    log: true
humans:
  allow_further_rules: true
  triggers:
    - any_message: {}
  actions:
    log: true
bots:
  affects_bots: true
  affects_self: true
  triggers:
    - any_message: {}
  actions:
    log: true
`)

	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m1", "x", testBase))
	assert.NoError(err)
	assert.Equal(RuleSkippedDisabled, ev.Rule("disabled").State)
	assert.Equal([]string{"humans", "bots"}, ev.Matched())

	bot := event.NewMessageContext("g1", &event.User{ID: "300", Bot: true}, nil, event.Message{ID: "m2", ChannelID: "c1", Content: "beep"}, testBase)
	ev, err = f.Engine.ProcessContext(ctx, bot)
	assert.NoError(err)
	assert.Equal(RuleSkippedBot, ev.Rule("humans").State)
	assert.Equal([]string{"bots"}, ev.Matched())

	self := event.NewMessageContext("g1", &event.User{ID: TestSelfUserID}, nil, event.Message{ID: "m3", ChannelID: "c1", Content: "me"}, testBase)
	ev, err = f.Engine.ProcessContext(ctx, self)
	assert.NoError(err)
	assert.Equal(RuleSkippedSelf, ev.Rule("humans").State)
	assert.Equal([]string{"bots"}, ev.Matched())
}

func TestActionsAreIndependent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.Platform.Fail["Reply"] = errors.New("missing permissions")
	f.Platform.Roles = map[string]bool{"r1": true}
	f.MustLoadRules("g1", `
multi:
  triggers:
    - any_message: {}
  actions:
    reply: "hello"
    add_roles: [r1, r-missing]
    alert: { channel: mods, text: "{rule}: {summary}" }
`)

	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m1", "x", testBase))
	assert.NoError(err)
	re := ev.Rule("multi")
	assert.Equal(RuleDone, re.State)
	assert.Equal(3, len(re.Actions))
	assert.Error(re.Actions[0].Err)
	assert.True(errors.Is(re.Actions[1].Err, ErrUnknownRole))
	assert.NoError(re.Actions[2].Err)

	// the valid role was still added, and the alert still sent
	assert.Equal([]string{"AddRole g1 100 r1"}, f.Platform.CallsTo("AddRole"))
	assert.Equal([]string{"SendMessage mods multi: message in <#c1>"}, f.Platform.CallsTo("SendMessage"))

	// both failures surfaced as bot alerts
	assert.Equal(2, len(f.Notifier.Alerts))
	assert.True(strings.Contains(f.Notifier.Alerts[0], "reply"))
	assert.True(strings.Contains(f.Notifier.Alerts[1], "add_roles"))
}

func TestSpamGuardScenario(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
spam-guard:
  cooldown: 30s
  triggers:
    - message_spam: { amount: 5, within: 10s }
  actions:
    mute: { duration: 10m, reason: "spam" }
    log: true
`)

	for i := 0; i < 6; i++ {
		c := testMessage("g1", "100", "c1", fmt.Sprintf("m%d", i), "buy now", testBase.Add(time.Duration(i)*time.Second))
		assert.NoError(f.Engine.Enqueue(c))
	}
	waitQueue(t, f.Engine)

	timeouts := f.Platform.CallsTo("Timeout")
	assert.Equal([]string{"Timeout g1 100 2024-03-01T12:10:04Z"}, timeouts)

	cases, err := f.Mod.ListCases(ctx, "g1", 10)
	assert.NoError(err)
	assert.Equal(1, len(cases))
	assert.Equal("mute", cases[0].Type)
	assert.Equal("spam", cases[0].Reason)
	assert.True(cases[0].Automatic)

	mute, err := f.Mod.GetMute(ctx, "g1", "100")
	assert.NoError(err)
	assert.NotNil(mute)
	assert.Equal(cases[0].ID, mute.CaseID)
	assert.Equal(1, len(f.Notifier.Entries))
	assert.Equal(5, f.Notifier.Entries[0].Contexts)

	// 30s after the burst: the cooldown has lapsed, but the burst is outside the window
	ev, err := f.Engine.ProcessContext(ctx, testMessage("g1", "100", "c1", "m6", "buy now", testBase.Add(34*time.Second)))
	assert.NoError(err)
	assert.Equal(RuleNoMatch, ev.Rule("spam-guard").State)
	assert.Equal(1, len(f.Platform.CallsTo("Timeout")))
	assert.Equal(1, len(f.Notifier.Entries))
}

func TestMuteRoleAndChainedModAction(t *testing.T) {
	assert := assert.New(t)
	f := EngineTestFixture()
	gc := f.MustLoadRules("g1", `
mute-links:
  triggers:
    - match_links: {}
  actions:
    mute: { reason: "links" }
react-to-mute:
  triggers:
    - mute: { manual: false }
  actions:
    alert: { channel: mods, text: "auto mute for {user}" }
`)
	gc.MuteRole = "muted"

	assert.NoError(f.Engine.Enqueue(testMessage("g1", "100", "c1", "m1", "see https://example.com", testBase)))
	waitQueue(t, f.Engine)

	assert.Equal([]string{"AddRole g1 100 muted"}, f.Platform.CallsTo("AddRole"))
	assert.Empty(f.Platform.CallsTo("Timeout"))
	assert.Equal([]string{"SendMessage mods auto mute for <@!100>"}, f.Platform.CallsTo("SendMessage"))
}

func TestCounterTriggerChain(t *testing.T) {
	assert := assert.New(t)
	f := EngineTestFixture()
	ge, err := counters.ParseCondition(">=2")
	assert.NoError(err)
	def := &counters.Definition{
		Name:    "strikes",
		PerUser: true,
		Triggers: []counters.Trigger{
			{Name: "limit", Condition: ge, ReverseCondition: ge.Negate()},
		},
	}
	f.MustLoadRules("g1", `
strike:
  triggers:
    - match_words: { words: [badword] }
  actions:
    change_counter: { counter: strikes, change: "+1" }
ban-on-strikes:
  triggers:
    - counter_trigger: { counter: strikes, trigger: limit }
  actions:
    ban: { reason: "too many strikes" }
`, def)

	for i := 0; i < 3; i++ {
		c := testMessage("g1", "100", "c1", fmt.Sprintf("m%d", i), "badword", testBase.Add(time.Duration(i)*time.Minute))
		assert.NoError(f.Engine.Enqueue(c))
	}
	waitQueue(t, f.Engine)

	// the trigger fires once when crossing the threshold, not again while it stays above
	assert.Equal([]string{"Ban g1 100 0"}, f.Platform.CallsTo("Ban"))
}

func TestAntiraidLevelChange(t *testing.T) {
	assert := assert.New(t)
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
raid:
  triggers:
    - member_join_spam: { amount: 3, within: 1m }
  actions:
    set_antiraid_level: high
on-high:
  triggers:
    - antiraid_level: { level: high }
  actions:
    alert: { channel: mods, text: "{summary}" }
`)

	for i := 0; i < 6; i++ {
		uid := fmt.Sprintf("%d", 500+i)
		c := event.NewMemberJoinContext("g1", testUser(uid), nil, testBase.Add(time.Duration(i)*time.Second))
		assert.NoError(f.Engine.Enqueue(c))
	}
	waitQueue(t, f.Engine)

	level, err := f.Mod.GetAntiraidLevel(context.Background(), "g1")
	assert.NoError(err)
	assert.Equal("high", level)
	// second burst set the same level again; only the actual change is reported
	assert.Equal([]string{"SendMessage mods antiraid level changed from off to high"}, f.Platform.CallsTo("SendMessage"))
}

func TestSetAntiraidLevelManually(t *testing.T) {
	assert := assert.New(t)
	f := EngineTestFixture()
	f.MustLoadRules("g1", `
to-medium:
  triggers:
    - antiraid_level: { level: medium }
  actions:
    alert: { channel: mods, text: "{summary}" }
to-off:
  triggers:
    - antiraid_level: { level: null }
  actions:
    alert: { channel: mods, text: "{summary}" }
`)

	assert.NoError(f.Engine.SetAntiraidLevel("g1", "medium"))
	waitQueue(t, f.Engine)
	assert.NoError(f.Engine.SetAntiraidLevel("g1", ""))
	waitQueue(t, f.Engine)

	level, err := f.Mod.GetAntiraidLevel(context.Background(), "g1")
	assert.NoError(err)
	assert.Equal("", level)
	assert.Equal([]string{
		"SendMessage mods antiraid level changed from off to medium",
		"SendMessage mods antiraid level changed from medium to off",
	}, f.Platform.CallsTo("SendMessage"))

	assert.Error(f.Engine.SetAntiraidLevel("", "high"))
}

func TestEnqueueRequiresGuild(t *testing.T) {
	assert := assert.New(t)
	f := EngineTestFixture()
	assert.Error(f.Engine.Enqueue(&event.Context{}))
}
