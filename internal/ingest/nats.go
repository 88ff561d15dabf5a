package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// SubjectMapping binds one NATS subject to an event type and source label.
// Message payloads become the event payload verbatim (after validation).
type SubjectMapping struct {
	Subject   string
	EventType string
	Source    string
}

// NATSAdapter reads external transport messages (e.g. MQTT-bridged home
// automation state changes) and feeds them through Normalize into the
// pipeline. The correlation/timing core itself stays transport-agnostic.
type NATSAdapter struct {
	log      *slog.Logger
	conn     *nats.Conn
	mappings []SubjectMapping
	submit   Submitter
	subs     []*nats.Subscription
}

// NewNATSAdapter creates an adapter; call Start to begin consuming.
func NewNATSAdapter(log *slog.Logger, conn *nats.Conn, mappings []SubjectMapping, submit Submitter) *NATSAdapter {
	return &NATSAdapter{log: log, conn: conn, mappings: mappings, submit: submit}
}

// Start subscribes to every configured subject.
func (a *NATSAdapter) Start(ctx context.Context) error {
	for _, m := range a.mappings {
		m := m
		sub, err := a.conn.Subscribe(m.Subject, func(msg *nats.Msg) {
			a.handle(ctx, m, msg)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", m.Subject, err)
		}
		a.subs = append(a.subs, sub)
		a.log.Info("ingest subject bound", "subject", m.Subject, "event_type", m.EventType)
	}
	return nil
}

func (a *NATSAdapter) handle(ctx context.Context, m SubjectMapping, msg *nats.Msg) {
	var payload map[string]any
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			a.log.Warn("undecodable message on ingest subject",
				"subject", msg.Subject, "err", err)
			return
		}
	}
	raw := &RawNotification{
		Type:    m.EventType,
		Source:  m.Source,
		Payload: payload,
	}
	ev, err := Normalize(raw)
	if err != nil {
		a.log.Warn("message rejected at ingest", "subject", msg.Subject, "err", err)
		return
	}
	if err := a.submit.Submit(ctx, ev); err != nil {
		a.log.Warn("event rejected by pipeline", "event_id", ev.ID, "err", err)
	}
}

// Stop unsubscribes from all subjects.
func (a *NATSAdapter) Stop() {
	for _, sub := range a.subs {
		_ = sub.Unsubscribe()
	}
	a.subs = nil
}
