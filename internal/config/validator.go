package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/gate"
	"github.com/gyaneshwarpardhi/herald/internal/rules"
)

// Validate checks the whole configuration surface and reports every problem
// at once. A failing config is fatal at startup and rejected on reload.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Version == "" {
		errs = append(errs, "version is required")
	}

	if cfg.DefaultPriority != "" {
		if _, err := event.ParsePriority(cfg.DefaultPriority); err != nil {
			errs = append(errs, fmt.Sprintf("default_priority: %s", err))
		}
	}

	for i, r := range cfg.Rules {
		if r.EventType != "" && !event.Type(r.EventType).Known() {
			errs = append(errs, fmt.Sprintf("rules[%d]: unknown event type %q", i, r.EventType))
		}
		if _, err := rules.CompilePattern(r.Pattern); err != nil {
			errs = append(errs, fmt.Sprintf("rules[%d]: %s", i, err))
		}
		if _, err := event.ParsePriority(r.Priority); err != nil {
			errs = append(errs, fmt.Sprintf("rules[%d] (%s): %s", i, r.Pattern, err))
		}
	}

	if _, err := gate.ParseQuietHours(cfg.QuietHours.Start, cfg.QuietHours.End); err != nil {
		errs = append(errs, err.Error())
	}

	if cfg.Correlation.WindowMs <= 0 {
		errs = append(errs, "correlation.window_ms must be positive")
	}
	if cfg.Correlation.Threshold < 1 {
		errs = append(errs, "correlation.threshold must be at least 1")
	}
	seen := make(map[string]struct{})
	for i, g := range cfg.Correlation.Groups {
		if g.Name == "" {
			errs = append(errs, fmt.Sprintf("correlation.groups[%d]: name is required", i))
			continue
		}
		if _, dup := seen[g.Name]; dup {
			errs = append(errs, fmt.Sprintf("correlation.groups[%d]: duplicate name %q", i, g.Name))
		}
		seen[g.Name] = struct{}{}
		if len(g.EventTypes) == 0 {
			errs = append(errs, fmt.Sprintf("correlation group %s: event_types must not be empty", g.Name))
		}
		for _, t := range g.EventTypes {
			typ := event.Type(t)
			if !typ.Known() {
				errs = append(errs, fmt.Sprintf("correlation group %s: unknown event type %q", g.Name, t))
			}
			if typ == event.TypeCorrelated {
				errs = append(errs, fmt.Sprintf("correlation group %s: cannot correlate %q events", g.Name, t))
			}
		}
	}

	if cfg.Gate.MaxDeferMs <= 0 {
		errs = append(errs, "gate.max_defer_ms must be positive")
	}
	if cfg.Gate.SweepIntervalMs <= 0 {
		errs = append(errs, "gate.sweep_interval_ms must be positive")
	}
	if cfg.Gate.SessionIdleMs <= 0 {
		errs = append(errs, "gate.session_idle_ms must be positive")
	}

	if cfg.Bus.QueueDepth < 1 {
		errs = append(errs, "bus.queue_depth must be at least 1")
	}

	if cfg.NATS.URL != "" {
		for i, s := range cfg.NATS.Subscriptions {
			if s.Subject == "" {
				errs = append(errs, fmt.Sprintf("nats.subscriptions[%d]: subject is required", i))
			}
			if !event.Type(s.EventType).Known() || event.Type(s.EventType) == event.TypeCorrelated {
				errs = append(errs, fmt.Sprintf("nats.subscriptions[%d]: invalid event type %q", i, s.EventType))
			}
			if s.Source == "" {
				errs = append(errs, fmt.Sprintf("nats.subscriptions[%d]: source is required", i))
			}
		}
	}

	for i, s := range cfg.Schedules {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d]: name is required", i))
		}
		if s.IntervalMs <= 0 {
			errs = append(errs, fmt.Sprintf("schedules[%d] (%s): interval_ms must be positive", i, s.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RuleList converts the configured rules into engine form. Call Validate
// first; conversion assumes parseable priorities.
func (c *Config) RuleList() []rules.Rule {
	out := make([]rules.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		pri, err := event.ParsePriority(r.Priority)
		if err != nil {
			continue
		}
		out = append(out, rules.Rule{
			EventType: event.Type(r.EventType),
			Pattern:   r.Pattern,
			Priority:  pri,
		})
	}
	return out
}

// DefaultTier returns the configured default priority (normal when unset).
func (c *Config) DefaultTier() event.Priority {
	if c.DefaultPriority == "" {
		return event.PriorityNormal
	}
	pri, err := event.ParsePriority(c.DefaultPriority)
	if err != nil {
		return event.PriorityNormal
	}
	return pri
}
