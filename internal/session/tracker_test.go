package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gyaneshwarpardhi/herald/internal/event"
)

func TestInteractionOpensSession(t *testing.T) {
	tr := NewTracker(30 * time.Second)
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	assert.False(t, tr.Activity(now).InteractiveSession, "no interaction yet")

	wake := event.New(event.TypeWakeWordDetected, "wakeword", nil)
	wake.Timestamp = now
	tr.HandleInteraction(context.Background(), wake)

	act := tr.Activity(now.Add(10 * time.Second))
	assert.True(t, act.InteractiveSession)
	assert.Equal(t, now.Add(30*time.Second), act.SessionEnd)

	assert.False(t, tr.Activity(now.Add(31*time.Second)).InteractiveSession,
		"session ends after idle timeout")
}

func TestSpeechExtendsSession(t *testing.T) {
	tr := NewTracker(30 * time.Second)
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	wake := event.New(event.TypeWakeWordDetected, "wakeword", nil)
	wake.Timestamp = base
	tr.HandleInteraction(context.Background(), wake)

	speech := event.New(event.TypeSpeechRecognized, "stt", map[string]any{"text": "turn on the lights"})
	speech.Timestamp = base.Add(25 * time.Second)
	tr.HandleInteraction(context.Background(), speech)

	assert.True(t, tr.Activity(base.Add(40*time.Second)).InteractiveSession)
	assert.Equal(t, base.Add(55*time.Second), tr.Activity(base).SessionEnd)
}

func TestPresenceTracking(t *testing.T) {
	tr := NewTracker(time.Second)
	now := time.Now()

	assert.True(t, tr.Activity(now).Present, "presence starts optimistic")

	away := event.New(event.TypeHomeStateChanged, "home-assistant", map[string]any{
		"entity_id": "person.alex",
		"new_state": "not_home",
	})
	tr.HandlePresence(context.Background(), away)
	assert.False(t, tr.Activity(now).Present)

	home := event.New(event.TypeHomeStateChanged, "home-assistant", map[string]any{
		"entity_id": "device_tracker.phone",
		"new_state": "home",
	})
	tr.HandlePresence(context.Background(), home)
	assert.True(t, tr.Activity(now).Present)
}

func TestNonPresenceEntitiesIgnored(t *testing.T) {
	tr := NewTracker(time.Second)
	now := time.Now()

	door := event.New(event.TypeHomeStateChanged, "home-assistant", map[string]any{
		"entity_id": "door.front",
		"new_state": "open",
	})
	tr.HandlePresence(context.Background(), door)
	assert.True(t, tr.Activity(now).Present, "door state must not affect presence")
}
