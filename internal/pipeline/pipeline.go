// Package pipeline wires the stages together: rule evaluation at submit time,
// then bus delivery to the correlator, the timing gate, the session tracker,
// and any extra collaborators (history, etc.).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/herald/internal/bus"
	"github.com/gyaneshwarpardhi/herald/internal/correlate"
	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/gate"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
	"github.com/gyaneshwarpardhi/herald/internal/rules"
	"github.com/gyaneshwarpardhi/herald/internal/session"
)

// Pipeline owns the subscription wiring between bus stages.
type Pipeline struct {
	log        *slog.Logger
	bus        *bus.Bus
	engine     *rules.Engine
	correlator *correlate.Correlator
	gate       *gate.Gate
	tracker    *session.Tracker

	grouped map[event.Type]bool
}

// announceTypes are the candidates the gate considers for announcement.
// Interaction events (wake word, speech) only feed the session tracker.
var announceTypes = []event.Type{
	event.TypeHomeStateChanged,
	event.TypeScheduleTriggered,
	event.TypeMemoryUpdated,
	event.TypeCorrelated,
}

// New builds the pipeline and registers all stage subscriptions. Subscription
// is explicit, at wiring time; a bad topic fails here, before any traffic.
func New(log *slog.Logger, b *bus.Bus, engine *rules.Engine, c *correlate.Correlator, g *gate.Gate, t *session.Tracker) (*Pipeline, error) {
	p := &Pipeline{
		log:        log,
		bus:        b,
		engine:     engine,
		correlator: c,
		gate:       g,
		tracker:    t,
		grouped:    make(map[event.Type]bool),
	}

	for _, typ := range c.EventTypes() {
		p.grouped[typ] = true
		if _, err := b.Subscribe(typ, "correlator", c.Handle); err != nil {
			return nil, fmt.Errorf("wire correlator: %w", err)
		}
	}

	for _, typ := range announceTypes {
		if _, err := b.Subscribe(typ, "gate", p.gateHandler); err != nil {
			return nil, fmt.Errorf("wire gate: %w", err)
		}
	}

	for _, typ := range []event.Type{event.TypeWakeWordDetected, event.TypeSpeechRecognized} {
		if _, err := b.Subscribe(typ, "session", t.HandleInteraction); err != nil {
			return nil, fmt.Errorf("wire session tracker: %w", err)
		}
	}
	if _, err := b.Subscribe(event.TypeHomeStateChanged, "presence", t.HandlePresence); err != nil {
		return nil, fmt.Errorf("wire presence tracker: %w", err)
	}

	return p, nil
}

// Submit runs ev through the rule engine (synchronously, so priority
// assignment follows receipt order) and publishes it to the bus.
func (p *Pipeline) Submit(_ context.Context, ev *event.Event) error {
	if !ev.Type.Known() {
		return fmt.Errorf("submit: unknown event type %q", ev.Type)
	}
	if ev.Priority() == event.PriorityUnset {
		tier := p.engine.Evaluate(ev)
		if err := ev.SetPriority(tier); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		metrics.PriorityAssigned.WithLabelValues(tier.String()).Inc()
	}
	p.bus.Publish(ev)
	return nil
}

// gateHandler forwards announcement candidates to the gate, skipping raw
// events of grouped types: those are still owed to the correlator and will
// come back released.
func (p *Pipeline) gateHandler(ctx context.Context, ev *event.Event) {
	if p.grouped[ev.Type] && !ev.Released() {
		return
	}
	p.gate.Handle(ctx, ev)
}

// Subscribe exposes the bus for external collaborators (e.g. a history
// consumer); they subscribe like any other stage.
func (p *Pipeline) Subscribe(typ event.Type, name string, h bus.Handler) (*bus.Subscription, error) {
	return p.bus.Subscribe(typ, name, h)
}
