// Package session derives the interactive-session and presence flags the
// timing gate consults, from ordinary bus traffic.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/gate"
)

// Tracker watches wake-word and speech events to decide whether the user is
// mid-conversation, and presence entities to decide whether anyone is home.
// A session is considered over once no interaction arrives for idleTimeout.
type Tracker struct {
	idleTimeout time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	present      bool
}

// NewTracker creates a Tracker. Presence starts optimistic (someone home)
// until a presence entity reports otherwise.
func NewTracker(idleTimeout time.Duration) *Tracker {
	return &Tracker{idleTimeout: idleTimeout, present: true}
}

// HandleInteraction is the bus handler for wake_word_detected and
// speech_recognized events.
func (t *Tracker) HandleInteraction(_ context.Context, ev *event.Event) {
	t.mu.Lock()
	if ev.Timestamp.After(t.lastActivity) {
		t.lastActivity = ev.Timestamp
	}
	t.mu.Unlock()
}

// HandlePresence is the bus handler for home_state_changed events; only
// person.* and device_tracker.* entities affect the presence flag.
func (t *Tracker) HandlePresence(_ context.Context, ev *event.Event) {
	entity := ev.Entity()
	if !strings.HasPrefix(entity, "person.") && !strings.HasPrefix(entity, "device_tracker.") {
		return
	}
	state, _ := ev.Payload["new_state"].(string)
	if state == "" {
		return
	}
	t.mu.Lock()
	t.present = state == "home"
	t.mu.Unlock()
}

// Touch records interaction at now; used when the embedding process has a
// non-bus interaction source (e.g. an active TTS exchange).
func (t *Tracker) Touch(now time.Time) {
	t.mu.Lock()
	if now.After(t.lastActivity) {
		t.lastActivity = now
	}
	t.mu.Unlock()
}

// Activity implements gate.ActivitySource.
func (t *Tracker) Activity(now time.Time) gate.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessionEnd := t.lastActivity.Add(t.idleTimeout)
	return gate.Activity{
		Present:            t.present,
		InteractiveSession: !t.lastActivity.IsZero() && now.Before(sessionEnd),
		SessionEnd:         sessionEnd,
	}
}
