// Package approval decides whether tool calls run: a rule-driven
// decision engine over glob patterns, plus the suspended-call registry
// that parks calls awaiting a human verdict.
package approval

import (
	"fmt"

	"github.com/midodimori/langrepl/internal/tools"
)

// Mode selects how much the engine defers to the human.
type Mode string

const (
	// ModeSemiActive asks for anything not covered by an allow rule.
	ModeSemiActive Mode = "semi-active"
	// ModeActive runs everything except what deny rules forbid.
	ModeActive Mode = "active"
	// ModeAggressive runs everything, rules ignored.
	ModeAggressive Mode = "aggressive"
)

// ParseMode validates a mode string from config or flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSemiActive, ModeActive, ModeAggressive:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown approval mode %q (want semi-active, active, or aggressive)", s)
}

// Effect is the outcome of evaluating a call against the policy.
type Effect string

const (
	EffectAllow   Effect = "allow"
	EffectDeny    Effect = "deny"
	EffectAskUser Effect = "ask_user"
)

// DeniedMessage is the result text recorded for a denied call. The
// reasoning side sees it as an ordinary tool result and moves on.
const DeniedMessage = "Action denied by user."

// Decision carries the effect and the rule that produced it, if any.
type Decision struct {
	Effect Effect
	Rule   *Rule
	Reason string
}

// Engine evaluates tool calls against a mode and rule set. Evaluation
// is pure: same call, same rules, same decision.
type Engine struct {
	mode   Mode
	rules  *Rules
	bypass map[string]bool
}

// NewEngine creates an engine. nil rules behave as an empty rule set.
func NewEngine(mode Mode, rules *Rules) *Engine {
	if rules == nil {
		rules = &Rules{}
	}
	return &Engine{mode: mode, rules: rules, bypass: make(map[string]bool)}
}

// Bypass registers tool names that never need approval, for tools the
// registry flags as always approved.
func (e *Engine) Bypass(names ...string) {
	for _, n := range names {
		e.bypass[n] = true
	}
}

// Mode returns the engine's current mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Decide evaluates one call. Internal bookkeeping tools bypass the
// policy entirely. Deny rules are consulted before allow rules in every
// mode that consults rules, so a call matching both lists is denied.
func (e *Engine) Decide(call tools.Call) Decision {
	if call.Internal() {
		return Decision{Effect: EffectAllow, Reason: "internal tool"}
	}
	if e.bypass[call.Name] {
		return Decision{Effect: EffectAllow, Reason: "always-approved tool"}
	}
	if e.mode == ModeAggressive {
		return Decision{Effect: EffectAllow, Reason: "aggressive mode"}
	}

	for i := range e.rules.AlwaysDeny {
		if e.rules.AlwaysDeny[i].Matches(call) {
			return Decision{
				Effect: EffectDeny,
				Rule:   &e.rules.AlwaysDeny[i],
				Reason: "deny rule " + e.rules.AlwaysDeny[i].String(),
			}
		}
	}

	if e.mode == ModeActive {
		return Decision{Effect: EffectAllow, Reason: "active mode, no deny rule matched"}
	}

	for i := range e.rules.AlwaysAllow {
		if e.rules.AlwaysAllow[i].Matches(call) {
			return Decision{
				Effect: EffectAllow,
				Rule:   &e.rules.AlwaysAllow[i],
				Reason: "allow rule " + e.rules.AlwaysAllow[i].String(),
			}
		}
	}
	return Decision{Effect: EffectAskUser, Reason: "no rule matched"}
}
