// Package ingest normalizes heterogeneous inbound notifications into the
// canonical event shape, rejecting malformed payloads at the boundary instead
// of letting consumers discover them later.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
)

// Submitter accepts normalized events for pipeline processing.
type Submitter interface {
	Submit(ctx context.Context, ev *event.Event) error
}

// RawNotification is the wire shape accepted from any transport (webhook,
// NATS, scheduler). Priority must be absent: only the rule engine assigns it.
type RawNotification struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Priority  string         `json:"priority,omitempty"`
}

// Required payload fields per event type, checked at the boundary.
var requiredFields = map[event.Type][]string{
	event.TypeHomeStateChanged:  {"entity_id", "new_state"},
	event.TypeSpeechRecognized:  {"text"},
	event.TypeScheduleTriggered: {"schedule"},
	event.TypeMemoryUpdated:     {"key"},
}

// Normalize validates raw and builds an Event. A fresh UUID is always
// assigned; the timestamp defaults to now (UTC) when the source omitted it.
func Normalize(raw *RawNotification) (*event.Event, error) {
	typ := event.Type(raw.Type)
	if !typ.Known() {
		metrics.IngestRejected.WithLabelValues("unknown_type").Inc()
		return nil, fmt.Errorf("ingest: unknown event type %q", raw.Type)
	}
	if typ == event.TypeCorrelated {
		metrics.IngestRejected.WithLabelValues("reserved_type").Inc()
		return nil, fmt.Errorf("ingest: type %q is synthesized internally and cannot be ingested", raw.Type)
	}
	if raw.Source == "" {
		metrics.IngestRejected.WithLabelValues("missing_source").Inc()
		return nil, fmt.Errorf("ingest: source is required")
	}
	if raw.Priority != "" {
		metrics.IngestRejected.WithLabelValues("priority_preset").Inc()
		return nil, fmt.Errorf("ingest: priority must be unset at ingest, got %q", raw.Priority)
	}
	for _, field := range requiredFields[typ] {
		v, ok := raw.Payload[field]
		if !ok {
			metrics.IngestRejected.WithLabelValues("missing_field").Inc()
			return nil, fmt.Errorf("ingest: %s payload missing required field %q", typ, field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			metrics.IngestRejected.WithLabelValues("missing_field").Inc()
			return nil, fmt.Errorf("ingest: %s payload field %q is empty", typ, field)
		}
	}

	ev := event.New(typ, raw.Source, raw.Payload)
	if !raw.Timestamp.IsZero() {
		ev.Timestamp = raw.Timestamp.UTC()
	}
	metrics.EventsIngested.WithLabelValues(string(typ)).Inc()
	return ev, nil
}
