package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/herald/internal/event"
)

func TestNormalizeValid(t *testing.T) {
	raw := &RawNotification{
		Type:   "home_state_changed",
		Source: "home-assistant",
		Payload: map[string]any{
			"entity_id": "door.front",
			"new_state": "open",
			"old_state": "closed",
		},
	}
	ev, err := Normalize(raw)
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, event.TypeHomeStateChanged, ev.Type)
	assert.Equal(t, "home-assistant", ev.Source)
	assert.Equal(t, "door.front", ev.Entity())
	assert.Equal(t, event.PriorityUnset, ev.Priority())
	assert.WithinDuration(t, time.Now().UTC(), ev.Timestamp, 5*time.Second)
}

func TestNormalizeKeepsProvidedTimestamp(t *testing.T) {
	ts := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	raw := &RawNotification{
		Type:      "speech_recognized",
		Source:    "stt",
		Timestamp: ts,
		Payload:   map[string]any{"text": "hello"},
	}
	ev, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, ts.UTC(), ev.Timestamp)
}

func TestNormalizeRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  RawNotification
		want string
	}{
		{
			"unknown type",
			RawNotification{Type: "mystery", Source: "x"},
			"unknown event type",
		},
		{
			"reserved correlated type",
			RawNotification{Type: "correlated", Source: "x"},
			"synthesized internally",
		},
		{
			"missing source",
			RawNotification{Type: "wake_word_detected"},
			"source is required",
		},
		{
			"preset priority",
			RawNotification{Type: "wake_word_detected", Source: "x", Priority: "high"},
			"priority must be unset",
		},
		{
			"missing required field",
			RawNotification{Type: "home_state_changed", Source: "x",
				Payload: map[string]any{"entity_id": "door.front"}},
			`missing required field "new_state"`,
		},
		{
			"empty required field",
			RawNotification{Type: "schedule_triggered", Source: "x",
				Payload: map[string]any{"schedule": ""}},
			`field "schedule" is empty`,
		},
		{
			"missing payload entirely",
			RawNotification{Type: "memory_updated", Source: "x"},
			`missing required field "key"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(&tc.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
