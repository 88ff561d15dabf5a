package rules

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
)

// Rule is one ordered priority rule: the first rule whose event type and
// entity pattern both match wins. An empty EventType matches any type.
type Rule struct {
	EventType event.Type
	Pattern   string
	Priority  event.Priority
}

type compiledRule struct {
	eventType event.Type
	pattern   *Pattern
	priority  event.Priority
}

// ruleSet is one immutable generation of compiled rules. Reload builds a new
// generation and swaps the pointer; in-flight evaluations keep the one they
// loaded.
type ruleSet struct {
	rules       []compiledRule
	defaultTier event.Priority
}

// Engine assigns priority tiers to events, first match wins.
type Engine struct {
	active atomic.Pointer[ruleSet]
}

// NewEngine compiles the initial rule set. Malformed patterns fail construction.
func NewEngine(rules []Rule, defaultTier event.Priority) (*Engine, error) {
	rs, err := compile(rules, defaultTier)
	if err != nil {
		return nil, err
	}
	e := &Engine{}
	e.active.Store(rs)
	return e, nil
}

// Evaluate returns the tier for ev: the priority of the first matching rule,
// or the default tier. Pure with respect to the active rule generation.
func (e *Engine) Evaluate(ev *event.Event) event.Priority {
	rs := e.active.Load()
	entity := ev.Entity()
	for _, r := range rs.rules {
		if r.eventType != "" && r.eventType != ev.Type {
			continue
		}
		if r.pattern.Match(entity) {
			return r.priority
		}
	}
	return rs.defaultTier
}

// Reload atomically swaps in a new rule set. On error the previous generation
// stays active.
func (e *Engine) Reload(rules []Rule, defaultTier event.Priority) error {
	rs, err := compile(rules, defaultTier)
	if err != nil {
		metrics.RuleReloads.WithLabelValues("rejected").Inc()
		return err
	}
	e.active.Store(rs)
	metrics.RuleReloads.WithLabelValues("ok").Inc()
	return nil
}

// Len returns the number of rules in the active generation.
func (e *Engine) Len() int {
	return len(e.active.Load().rules)
}

func compile(rules []Rule, defaultTier event.Priority) (*ruleSet, error) {
	if defaultTier == event.PriorityUnset {
		defaultTier = event.PriorityNormal
	}
	compiled := make([]compiledRule, 0, len(rules))
	var errs []string
	for i, r := range rules {
		if r.EventType != "" && !r.EventType.Known() {
			errs = append(errs, fmt.Sprintf("rules[%d]: unknown event type %q", i, r.EventType))
			continue
		}
		if r.Priority == event.PriorityUnset {
			errs = append(errs, fmt.Sprintf("rules[%d] (%s): priority is required", i, r.Pattern))
			continue
		}
		p, err := CompilePattern(r.Pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("rules[%d]: %s", i, err))
			continue
		}
		compiled = append(compiled, compiledRule{
			eventType: r.EventType,
			pattern:   p,
			priority:  r.Priority,
		})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("rule compilation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return &ruleSet{rules: compiled, defaultTier: defaultTier}, nil
}
