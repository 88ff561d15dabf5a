package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes announcements to a subject consumed by the external
// speech renderer.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink creates a NATSSink publishing to subject.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string { return "nats:" + s.subject }

func (s *NATSSink) Announce(_ context.Context, a *Announcement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish announcement to %s: %w", s.subject, err)
	}
	return nil
}
