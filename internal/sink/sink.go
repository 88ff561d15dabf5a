// Package sink hands approved announcements to the external speech renderer.
// The core's responsibility ends at the handoff: deliveries get one bounded
// attempt each, failures are logged and never retried here.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Announcement is the outbound record handed to the renderer.
type Announcement struct {
	Text           string   `json:"text"`
	Priority       string   `json:"priority"`
	Correlated     bool     `json:"correlated"`
	SourceEventIDs []string `json:"source_event_ids"`
	Delayed        bool     `json:"delayed,omitempty"`
}

// Sink renders announcements. Implementations may block on I/O; the
// dispatcher bounds each call with its own timeout.
type Sink interface {
	Name() string
	Announce(ctx context.Context, a *Announcement) error
}

// LogSink writes announcements to the structured log. It doubles as the
// silent-log terminal for deployments without a speech renderer.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Announce(_ context.Context, a *Announcement) error {
	payload, _ := json.Marshal(a)
	s.log.Info("announcement", "priority", a.Priority, "text", a.Text, "record", string(payload))
	return nil
}
