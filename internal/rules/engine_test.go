package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/herald/internal/event"
)

func stateChange(entity string) *event.Event {
	return event.New(event.TypeHomeStateChanged, "home-assistant", map[string]any{
		"entity_id": entity,
		"new_state": "open",
	})
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	eng, err := NewEngine([]Rule{
		{Pattern: "door.front", Priority: event.PriorityIgnore},
		{Pattern: "door.*", Priority: event.PriorityHigh},
		{Pattern: "*", Priority: event.PriorityLow},
	}, event.PriorityNormal)
	require.NoError(t, err)

	assert.Equal(t, event.PriorityIgnore, eng.Evaluate(stateChange("door.front")))
	assert.Equal(t, event.PriorityHigh, eng.Evaluate(stateChange("door.back")))
	assert.Equal(t, event.PriorityLow, eng.Evaluate(stateChange("window.kitchen")))
}

func TestEvaluateDefaultTier(t *testing.T) {
	eng, err := NewEngine([]Rule{
		{Pattern: "door.*", Priority: event.PriorityHigh},
	}, event.PriorityLow)
	require.NoError(t, err)

	assert.Equal(t, event.PriorityLow, eng.Evaluate(stateChange("light.hall")))
}

func TestEvaluateTypeScopedRule(t *testing.T) {
	eng, err := NewEngine([]Rule{
		{EventType: event.TypeScheduleTriggered, Pattern: "*", Priority: event.PriorityLow},
	}, event.PriorityNormal)
	require.NoError(t, err)

	sched := event.New(event.TypeScheduleTriggered, "scheduler", map[string]any{"schedule": "standup"})
	assert.Equal(t, event.PriorityLow, eng.Evaluate(sched))
	// Same entity shape, different type: rule must not apply.
	assert.Equal(t, event.PriorityNormal, eng.Evaluate(stateChange("scheduler")))
}

func TestEvaluateDeterministic(t *testing.T) {
	eng, err := NewEngine([]Rule{
		{Pattern: "door.*", Priority: event.PriorityHigh},
	}, event.PriorityNormal)
	require.NoError(t, err)

	ev := stateChange("door.front")
	first := eng.Evaluate(ev)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, eng.Evaluate(ev))
	}
}

func TestReloadRejectedKeepsOldSet(t *testing.T) {
	eng, err := NewEngine([]Rule{
		{Pattern: "door.*", Priority: event.PriorityHigh},
	}, event.PriorityNormal)
	require.NoError(t, err)

	err = eng.Reload([]Rule{
		{Pattern: "bad**pattern", Priority: event.PriorityLow},
	}, event.PriorityNormal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules[0]")

	// Old generation still active.
	assert.Equal(t, event.PriorityHigh, eng.Evaluate(stateChange("door.front")))
}

func TestReloadSwapsAtomically(t *testing.T) {
	eng, err := NewEngine([]Rule{
		{Pattern: "door.*", Priority: event.PriorityHigh},
	}, event.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, eng.Reload([]Rule{
		{Pattern: "door.*", Priority: event.PriorityLow},
	}, event.PriorityNormal))
	assert.Equal(t, event.PriorityLow, eng.Evaluate(stateChange("door.front")))
}
