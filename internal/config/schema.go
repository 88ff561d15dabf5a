package config

// Config is the top-level YAML structure: the entire configuration surface
// the pipeline consumes at startup and on reload.
type Config struct {
	Version         string          `yaml:"version"`
	HTTPAddr        string          `yaml:"http_addr"`
	Bus             BusConf         `yaml:"bus"`
	DefaultPriority string          `yaml:"default_priority"`
	Rules           []RuleConf      `yaml:"rules"`
	QuietHours      QuietHoursConf  `yaml:"quiet_hours"`
	Correlation     CorrelationConf `yaml:"correlation"`
	Gate            GateConf        `yaml:"gate"`
	Sink            SinkConf        `yaml:"sink"`
	NATS            NATSConf        `yaml:"nats"`
	Schedules       []ScheduleConf  `yaml:"schedules"`
}

// BusConf holds dispatcher tunables.
type BusConf struct {
	QueueDepth      int `yaml:"queue_depth"`
	ShutdownGraceMs int `yaml:"shutdown_grace_ms"`
}

// RuleConf is one ordered priority rule. An empty event_type matches any.
type RuleConf struct {
	EventType string `yaml:"event_type"`
	Pattern   string `yaml:"pattern"`
	Priority  string `yaml:"priority"`
}

// QuietHoursConf is a daily "HH:MM" window; start after end wraps midnight.
// Both empty disables quiet hours.
type QuietHoursConf struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// CorrelationConf configures the sliding-window batching stage.
type CorrelationConf struct {
	WindowMs  int         `yaml:"window_ms"`
	Threshold int         `yaml:"threshold"`
	Groups    []GroupConf `yaml:"groups"`
}

// GroupConf describes one correlation group.
type GroupConf struct {
	Name           string   `yaml:"name"`
	EventTypes     []string `yaml:"event_types"`
	EntityPrefixes []string `yaml:"entity_prefixes"`
}

// GateConf configures the timing policy gate and session tracking.
type GateConf struct {
	MaxDeferMs      int `yaml:"max_defer_ms"`
	SweepIntervalMs int `yaml:"sweep_interval_ms"`
	SessionIdleMs   int `yaml:"session_idle_ms"`
}

// SinkConf configures the announcement dispatcher.
type SinkConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// NATSConf configures the optional transport adapter. An empty URL disables
// NATS entirely (webhook-only ingest, log-only sink).
type NATSConf struct {
	URL             string        `yaml:"url"`
	Token           string        `yaml:"token"`
	Subscriptions   []NATSSubConf `yaml:"subscriptions"`
	AnnounceSubject string        `yaml:"announce_subject"`
}

// NATSSubConf binds one subject to an event type and source label.
type NATSSubConf struct {
	Subject   string `yaml:"subject"`
	EventType string `yaml:"event_type"`
	Source    string `yaml:"source"`
}

// ScheduleConf is one periodic tick source.
type ScheduleConf struct {
	Name       string         `yaml:"name"`
	IntervalMs int            `yaml:"interval_ms"`
	Payload    map[string]any `yaml:"payload"`
}
