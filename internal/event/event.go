package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of notification flowing through the bus.
type Type string

const (
	TypeWakeWordDetected  Type = "wake_word_detected"
	TypeSpeechRecognized  Type = "speech_recognized"
	TypeHomeStateChanged  Type = "home_state_changed"
	TypeScheduleTriggered Type = "schedule_triggered"
	TypeMemoryUpdated     Type = "memory_updated"

	// TypeCorrelated is synthesized by the correlation window when it
	// collapses a burst of related events into one summary.
	TypeCorrelated Type = "correlated"
)

// KnownTypes returns every type the pipeline accepts.
func KnownTypes() []Type {
	return []Type{
		TypeWakeWordDetected,
		TypeSpeechRecognized,
		TypeHomeStateChanged,
		TypeScheduleTriggered,
		TypeMemoryUpdated,
		TypeCorrelated,
	}
}

// Known reports whether t is part of the accepted enumeration.
func (t Type) Known() bool {
	switch t {
	case TypeWakeWordDetected, TypeSpeechRecognized, TypeHomeStateChanged,
		TypeScheduleTriggered, TypeMemoryUpdated, TypeCorrelated:
		return true
	}
	return false
}

// Priority is the announcement tier assigned by the rule engine.
type Priority int8

const (
	PriorityUnset Priority = iota
	PriorityIgnore
	PriorityLow
	PriorityNormal
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityUnset:  "unset",
	PriorityIgnore: "ignore",
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return fmt.Sprintf("priority(%d)", int8(p))
}

// ParsePriority converts a config/wire string into a Priority.
// "unset" is not accepted: it is an internal state, never an input.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "ignore":
		return PriorityIgnore, nil
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityUnset, fmt.Errorf("unknown priority %q (want ignore|low|normal|high)", s)
}

// Event is the canonical record flowing through the bus. ID and Timestamp are
// immutable after creation; priority is write-once (the rule engine sets it).
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time
	Source    string
	Payload   map[string]any

	priority Priority
	released bool
}

// New creates an event with a fresh UUID and a UTC timestamp.
func New(typ Type, source string, payload map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Payload:   payload,
	}
}

// Priority returns the assigned tier (PriorityUnset before rule evaluation).
func (e *Event) Priority() Priority {
	return e.priority
}

// SetPriority assigns the tier exactly once.
func (e *Event) SetPriority(p Priority) error {
	if e.priority != PriorityUnset {
		return fmt.Errorf("event %s: priority already set to %s", e.ID, e.priority)
	}
	if p == PriorityUnset {
		return fmt.Errorf("event %s: cannot assign unset priority", e.ID)
	}
	e.priority = p
	return nil
}

// Release returns a shallow copy marked as having passed the correlation
// stage. The receiver stays unmarked: other subscribers may hold references
// to it concurrently and must never observe the mark.
func (e *Event) Release() *Event {
	c := *e
	c.released = true
	return &c
}

// Released reports whether the event already passed the correlation stage.
func (e *Event) Released() bool {
	return e.released
}

// Entity returns the identifier used for rule matching and correlation
// grouping: payload entity_id when present, otherwise the source label.
func (e *Event) Entity() string {
	if e.Payload != nil {
		if v, ok := e.Payload["entity_id"].(string); ok && v != "" {
			return v
		}
	}
	return e.Source
}

// NewCorrelated synthesizes a summary event from two or more members of the
// same correlation group. Its priority is the maximum across members and is
// assigned at synthesis (the rule engine never re-evaluates it).
func NewCorrelated(group string, members []*Event) *Event {
	dominant := PriorityUnset
	entities := make(map[string]struct{}, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.priority > dominant {
			dominant = m.priority
		}
		entities[m.Entity()] = struct{}{}
		ids = append(ids, m.ID)
	}
	list := make([]string, 0, len(entities))
	for ent := range entities {
		list = append(list, ent)
	}
	sort.Strings(list)

	ev := New(TypeCorrelated, "correlator", map[string]any{
		"group":      group,
		"count":      len(members),
		"entities":   list,
		"member_ids": ids,
	})
	ev.priority = dominant
	return ev
}

type wireEvent struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Priority  string         `json:"priority,omitempty"`
}

// MarshalJSON includes the priority tier as its string name.
func (e *Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Source:    e.Source,
		Payload:   e.Payload,
	}
	if e.priority != PriorityUnset {
		w.Priority = e.priority.String()
	}
	return json.Marshal(w)
}
