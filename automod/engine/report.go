package engine

import (
	"github.com/zeppelin-bot/zeppelin/automod/event"
)

// Progress of a single rule through evaluation of a context.
type RuleState string

const (
	RulePending         RuleState = "pending"
	RuleSkippedDisabled RuleState = "skipped_disabled"
	RuleSkippedBot      RuleState = "skipped_bot"
	RuleSkippedSelf     RuleState = "skipped_self"
	RuleSkippedCooldown RuleState = "skipped_cooldown"
	RuleNoMatch         RuleState = "no_match"
	RuleMatched         RuleState = "matched"
	// actions were dispatched and the cooldown (if any) recorded
	RuleDone RuleState = "done"
	// evaluation of the rule could not complete (eg, cooldown store unavailable)
	RuleError RuleState = "error"
)

type ActionOutcome struct {
	Type string
	Err  error
}

type RuleEvaluation struct {
	Rule  string
	State RuleState
	// Type of the trigger which matched, if any
	Trigger string
	Match   *MatchResult
	Actions []ActionOutcome
	Err     error
}

// Report of evaluating one context against a guild's rules. Rules which were never reached (because an earlier rule matched) stay pending.
type Evaluation struct {
	GuildID string
	Kind    event.Kind
	Rules   []RuleEvaluation
}

// Names of rules which matched, in evaluation order.
func (ev *Evaluation) Matched() []string {
	var out []string
	for _, r := range ev.Rules {
		if r.State == RuleMatched || r.State == RuleDone {
			out = append(out, r.Rule)
		}
	}
	return out
}

func (ev *Evaluation) Rule(name string) *RuleEvaluation {
	for i := range ev.Rules {
		if ev.Rules[i].Rule == name {
			return &ev.Rules[i]
		}
	}
	return nil
}
