package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_events_ingested_total",
		Help: "Total number of events accepted at the ingest boundary, labelled by type.",
	}, []string{"type"})

	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_ingest_rejected_total",
		Help: "Total number of raw notifications rejected at the ingest boundary.",
	}, []string{"reason"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_events_published_total",
		Help: "Total number of events handed to the bus, labelled by type.",
	}, []string{"type"})

	QueueDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_subscriber_dropped_total",
		Help: "Total number of events evicted from a full subscriber queue, labelled by subscriber.",
	}, []string{"subscriber"})

	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_handler_failures_total",
		Help: "Total number of subscriber handler panics caught by the bus.",
	}, []string{"subscriber"})

	PriorityAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_priority_assigned_total",
		Help: "Total number of rule evaluations, labelled by the tier assigned.",
	}, []string{"tier"})

	RuleReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_rule_reloads_total",
		Help: "Total number of rule set reload attempts, labelled by status.",
	}, []string{"status"})

	CorrelationFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_correlation_flushes_total",
		Help: "Total number of correlation window flushes, labelled by trigger reason.",
	}, []string{"reason"})

	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_gate_decisions_total",
		Help: "Total number of timing gate decisions, labelled by outcome.",
	}, []string{"decision"})

	DeferredDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herald_deferred_queue_depth",
		Help: "Current number of announcements parked in the deferred queue.",
	})

	ForcedEmits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_forced_emits_total",
		Help: "Total number of deferred announcements force-emitted at the defer horizon.",
	})

	Announcements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_announcements_total",
		Help: "Total number of announcements handed to the sink, labelled by priority.",
	}, []string{"priority"})

	SinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_sink_failures_total",
		Help: "Total number of sink deliveries that errored or timed out.",
	})

	SinkDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_sink_dropped_total",
		Help: "Total number of announcements dropped because the sink dispatcher queue was full.",
	})
)
