package engine

import (
	"context"
	"log/slog"

	"github.com/zeppelin-bot/zeppelin/automod/event"
)

// Passed to triggers while matching a single context against a rule.
type TriggerContext struct {
	// Actual golang "context.Context", if needed for timeouts etc
	Ctx context.Context
	// slog logger handle, with guild and rule fields pre-populated. Pointer, but expected to never be nil.
	Logger *slog.Logger
	Event  *event.Context
	Rule   *Rule
	Guild  *GuildConfig

	engine *Engine // NOTE: pointer, but expected never to be nil
}

func (tc *TriggerContext) Deps() *Deps {
	return &tc.engine.Deps
}

// Passed to actions once a rule has matched.
type ActionContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Event  *event.Context
	Rule   *Rule
	Guild  *GuildConfig
	Match  *MatchResult
	// The triggering context followed by any extra contexts from the match, de-duplicated
	Batch []*event.Context

	engine *Engine
}

func (ac *ActionContext) Deps() *Deps {
	return &ac.engine.Deps
}

// Distinct users across the batch, in batch order. Contexts without a user (eg, antiraid changes) contribute nothing.
func (ac *ActionContext) Users() []*event.User {
	var out []*event.User
	seen := make(map[string]bool)
	for _, c := range ac.Batch {
		uid := c.UserID()
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		u := c.User
		if u == nil {
			u = &event.User{ID: uid}
		}
		out = append(out, u)
	}
	return out
}

// Messages in the batch, grouped by channel ID.
func (ac *ActionContext) MessagesByChannel() map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]bool)
	for _, c := range ac.Batch {
		if c.Message == nil || seen[c.Message.ID] {
			continue
		}
		seen[c.Message.ID] = true
		out[c.Message.ChannelID] = append(out[c.Message.ChannelID], c.Message.ID)
	}
	return out
}

// Enqueues a follow-up context on this guild's queue. Never blocks; a full queue is reported as a bot alert.
func (ac *ActionContext) chain(c *event.Context) {
	chainedContextCount.WithLabelValues(string(c.Kind())).Inc()
	if err := ac.engine.Enqueue(c); err != nil {
		ac.Logger.Warn("failed to enqueue follow-up context", "kind", c.Kind(), "err", err)
		ac.engine.botAlert(ac.Ctx, ac.Guild.GuildID, "Automod could not queue a follow-up event ("+string(c.Kind())+"): "+err.Error())
	}
}

func newBatch(c *event.Context, m *MatchResult) []*event.Context {
	batch := []*event.Context{c}
	seen := map[*event.Context]bool{c: true}
	if m == nil {
		return batch
	}
	for _, extra := range m.ExtraContexts {
		if extra == nil || seen[extra] {
			continue
		}
		seen[extra] = true
		batch = append(batch, extra)
	}
	return batch
}
