package sink

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/herald/internal/event"
)

// Format turns an event into the human-readable announcement record. The text
// is intentionally plain; phrasing nuance belongs to the renderer.
func Format(ev *event.Event, delayed bool) *Announcement {
	a := &Announcement{
		Priority:       ev.Priority().String(),
		SourceEventIDs: []string{ev.ID},
		Delayed:        delayed,
	}

	switch ev.Type {
	case event.TypeCorrelated:
		a.Correlated = true
		a.SourceEventIDs = memberIDs(ev)
		count, _ := ev.Payload["count"].(int)
		entities := entityList(ev)
		switch {
		case len(entities) > 0:
			a.Text = fmt.Sprintf("%d updates from %s", count, humanizeList(entities))
		default:
			a.Text = fmt.Sprintf("%d related updates", count)
		}
	case event.TypeHomeStateChanged:
		state, _ := ev.Payload["new_state"].(string)
		if state == "" {
			a.Text = fmt.Sprintf("%s changed", humanize(ev.Entity()))
		} else {
			a.Text = fmt.Sprintf("%s is %s", humanize(ev.Entity()), humanize(state))
		}
	case event.TypeScheduleTriggered:
		name, _ := ev.Payload["schedule"].(string)
		if msg, ok := ev.Payload["message"].(string); ok && msg != "" {
			a.Text = msg
		} else {
			a.Text = fmt.Sprintf("Reminder: %s", humanize(name))
		}
	case event.TypeMemoryUpdated:
		key, _ := ev.Payload["key"].(string)
		a.Text = fmt.Sprintf("Noted: %s updated", humanize(key))
	default:
		a.Text = fmt.Sprintf("%s from %s", humanize(string(ev.Type)), ev.Source)
	}

	if delayed {
		a.Text = "While you were busy: " + a.Text
	}
	return a
}

func memberIDs(ev *event.Event) []string {
	raw, ok := ev.Payload["member_ids"].([]string)
	if ok {
		return raw
	}
	// Payload may have round-tripped through JSON.
	anyList, ok := ev.Payload["member_ids"].([]any)
	if !ok {
		return []string{ev.ID}
	}
	out := make([]string, 0, len(anyList))
	for _, v := range anyList {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func entityList(ev *event.Event) []string {
	if list, ok := ev.Payload["entities"].([]string); ok {
		return list
	}
	anyList, ok := ev.Payload["entities"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(anyList))
	for _, v := range anyList {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// humanize turns identifiers like "door.front_left" into "door front left".
func humanize(id string) string {
	r := strings.NewReplacer(".", " ", "/", " ", "_", " ")
	return strings.Join(strings.Fields(r.Replace(id)), " ")
}

func humanizeList(items []string) string {
	human := make([]string, len(items))
	for i, it := range items {
		human[i] = humanize(it)
	}
	switch len(human) {
	case 1:
		return human[0]
	case 2:
		return human[0] + " and " + human[1]
	default:
		return strings.Join(human[:len(human)-1], ", ") + " and " + human[len(human)-1]
	}
}
