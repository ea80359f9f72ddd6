package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/cooldownstore"
	"github.com/zeppelin-bot/zeppelin/automod/event"
	"github.com/zeppelin-bot/zeppelin/automod/recentstore"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("automod")

type Config struct {
	// Number of queue workers; guilds beyond this share workers
	Workers       int
	MaxQueueDepth int
}

// runtime for evaluating guild rules against event contexts, and dispatching the resulting actions.
//
// NOTE: construct with NewEngine; the queue and config map must not be nil.
type Engine struct {
	Logger *slog.Logger
	Deps   Deps
	Recent *recentstore.MemRecentStore
	Queue  *GuildQueue

	configs *xsync.MapOf[string, *GuildConfig]
}

func NewEngine(logger *slog.Logger, deps Deps, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Logger:  logger,
		Deps:    deps,
		Recent:  recentstore.NewMemRecentStore(),
		Queue:   NewGuildQueue(cfg.Workers, cfg.MaxQueueDepth, logger),
		configs: xsync.NewMapOf[string, *GuildConfig](),
	}
}

// Installs (or replaces) the config for a guild. A nil config removes it.
func (eng *Engine) SetGuildConfig(guildID string, gc *GuildConfig) {
	if gc == nil {
		eng.configs.Delete(guildID)
		return
	}
	gc.GuildID = guildID
	eng.configs.Store(guildID, gc)
}

func (eng *Engine) GuildConfig(guildID string) (*GuildConfig, bool) {
	return eng.configs.Load(guildID)
}

// Guild IDs with a loaded config.
func (eng *Engine) Guilds() []string {
	var out []string
	eng.configs.Range(func(k string, _ *GuildConfig) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Schedules evaluation of the context on its guild's queue. Never blocks.
func (eng *Engine) Enqueue(c *event.Context) error {
	if c.GuildID == "" {
		return fmt.Errorf("context has no guild")
	}
	return eng.Queue.Enqueue(c.GuildID, func(ctx context.Context) error {
		_, err := eng.ProcessContext(ctx, c)
		return err
	})
}

// Changes a guild's antiraid level from outside of automod (eg, a moderator command). The change is applied on the guild's queue and then evaluated like any other context.
func (eng *Engine) SetAntiraidLevel(guildID, level string) error {
	if guildID == "" {
		return fmt.Errorf("no guild")
	}
	return eng.Queue.Enqueue(guildID, func(ctx context.Context) error {
		store := eng.Deps.Antiraid
		old, err := store.GetAntiraidLevel(ctx, guildID)
		if err != nil {
			return fmt.Errorf("reading antiraid level: %w", err)
		}
		if err := store.SetAntiraidLevel(ctx, guildID, level); err != nil {
			return fmt.Errorf("setting antiraid level: %w", err)
		}
		_, err = eng.ProcessContext(ctx, event.NewAntiraidContext(guildID, old, level, time.Now().UTC()))
		return err
	})
}

func (eng *Engine) Shutdown() {
	eng.Queue.Shutdown()
}

// Evaluates a context against its guild's rules and runs actions of matching rules.
//
// Must only be called from the guild's queue (or from tests, which run one context at a time), since cooldowns, recent actions, and the Actioned flags are mutated without further synchronization.
func (eng *Engine) ProcessContext(ctx context.Context, c *event.Context) (*Evaluation, error) {
	start := time.Now()
	kind := string(c.Kind())
	ctx, span := tracer.Start(ctx, "ProcessContext")
	defer span.End()
	span.SetAttributes(attribute.String("guild", c.GuildID), attribute.String("kind", kind))

	eventProcessCount.WithLabelValues(kind).Inc()
	defer func() {
		eventProcessDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	ev := &Evaluation{GuildID: c.GuildID, Kind: c.Kind()}
	gc, ok := eng.GuildConfig(c.GuildID)
	if !ok {
		return ev, nil
	}
	if c.Kind() == "" {
		eventErrorCount.WithLabelValues(kind).Inc()
		return ev, fmt.Errorf("context has no payload")
	}

	logger := eng.Logger.With("guild", c.GuildID, "kind", kind)
	if uid := c.UserID(); uid != "" {
		logger = logger.With("user", uid)
	}

	eng.Recent.Add(recentEntries(c)...)
	eng.Recent.Prune(c.GuildID, c.Timestamp.Add(-recentRetention))

	for _, r := range gc.Rules {
		ev.Rules = append(ev.Rules, RuleEvaluation{Rule: r.Name, State: RulePending})
	}
	for i, r := range gc.Rules {
		re := &ev.Rules[i]
		eng.evaluateRule(ctx, logger.With("rule", r.Name), gc, r, c, re)
		if (re.State == RuleDone || re.State == RuleMatched) && !r.AllowFurtherRules {
			break
		}
	}
	span.SetAttributes(attribute.StringSlice("matched", ev.Matched()))
	return ev, nil
}

func (eng *Engine) evaluateRule(ctx context.Context, logger *slog.Logger, gc *GuildConfig, r *Rule, c *event.Context, re *RuleEvaluation) {
	if !r.Enabled {
		re.State = RuleSkippedDisabled
		ruleSkipCount.WithLabelValues("disabled").Inc()
		return
	}
	if c.IsBot() && !r.AffectsBots {
		re.State = RuleSkippedBot
		ruleSkipCount.WithLabelValues("bot").Inc()
		return
	}
	if eng.Deps.SelfUserID != "" && c.UserID() == eng.Deps.SelfUserID && !r.AffectsSelf {
		re.State = RuleSkippedSelf
		ruleSkipCount.WithLabelValues("self").Inc()
		return
	}

	cooldownKey := cooldownstore.Key(c.GuildID, r.Name, c.UserID())
	if r.Cooldown > 0 {
		expiry, err := eng.Deps.Cooldowns.GetExpiry(ctx, cooldownKey)
		if err != nil {
			re.State = RuleError
			re.Err = fmt.Errorf("reading cooldown: %w", err)
			logger.Error("failed to read rule cooldown", "err", err)
			return
		}
		// eligible again exactly at expiry
		if c.Timestamp.Before(expiry) {
			re.State = RuleSkippedCooldown
			ruleSkipCount.WithLabelValues("cooldown").Inc()
			return
		}
	}

	tc := &TriggerContext{
		Ctx:    ctx,
		Logger: logger,
		Event:  c,
		Rule:   r,
		Guild:  gc,
		engine: eng,
	}
	var match *MatchResult
	for _, nt := range r.Triggers {
		m, err := nt.Trigger.Match(tc)
		if err != nil {
			triggerErrorCount.WithLabelValues(nt.Type).Inc()
			logger.Warn("trigger evaluation failed", "trigger", nt.Type, "err", err)
			eng.botAlert(ctx, gc.GuildID, fmt.Sprintf("Automod rule **%s**: trigger %s failed: %s", r.Name, nt.Type, err))
			continue
		}
		if m != nil {
			match = m
			re.Trigger = nt.Type
			break
		}
	}
	if match == nil {
		re.State = RuleNoMatch
		return
	}
	re.State = RuleMatched
	re.Match = match
	ruleMatchCount.WithLabelValues(re.Trigger).Inc()

	batch := newBatch(c, match)
	for _, bc := range batch {
		bc.Actioned = true
	}
	logger.Info("automod rule matched", "trigger", re.Trigger, "summary", match.Summary, "batch", len(batch))

	ac := &ActionContext{
		Ctx:    ctx,
		Logger: logger,
		Event:  c,
		Rule:   r,
		Guild:  gc,
		Match:  match,
		Batch:  batch,
		engine: eng,
	}
	re.Actions = eng.dispatchActions(ac)

	if r.Cooldown > 0 {
		if err := eng.Deps.Cooldowns.SetExpiry(ctx, cooldownKey, c.Timestamp.Add(r.Cooldown)); err != nil {
			logger.Error("failed to set rule cooldown", "err", err)
			re.Err = fmt.Errorf("setting cooldown: %w", err)
		}
	}
	re.State = RuleDone
}

// Runs every action of the rule in order. A failing action doesn't stop the ones after it.
func (eng *Engine) dispatchActions(ac *ActionContext) []ActionOutcome {
	out := make([]ActionOutcome, 0, len(ac.Rule.Actions))
	for _, na := range ac.Rule.Actions {
		err := eng.applyAction(ac, na)
		out = append(out, ActionOutcome{Type: na.Type, Err: err})
		if err != nil {
			actionErrorCount.WithLabelValues(na.Type).Inc()
			ac.Logger.Warn("automod action failed", "action", na.Type, "err", err)
			eng.botAlert(ac.Ctx, ac.Guild.GuildID, fmt.Sprintf("Automod rule **%s**: failed to apply action %s: %s", ac.Rule.Name, na.Type, err))
			continue
		}
		actionApplyCount.WithLabelValues(na.Type).Inc()
	}
	return out
}

// panics inside a single action are treated like errors, so the remaining actions still run
func (eng *Engine) applyAction(ac *ActionContext, na NamedAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()
	return na.Action.Apply(ac)
}

func (eng *Engine) botAlert(ctx context.Context, guildID, msg string) {
	if eng.Deps.Alerts == nil {
		return
	}
	if err := eng.Deps.Alerts.BotAlert(ctx, guildID, msg); err != nil {
		eng.Logger.Warn("failed to send bot alert", "guild", guildID, "err", err)
	}
}
