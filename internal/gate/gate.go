// Package gate is the final arbiter of whether and when a prioritized,
// correlated event becomes a user-facing announcement.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
)

// Decision is the timing outcome for one event.
type Decision int

const (
	DecisionEmitNow Decision = iota
	DecisionDefer
	DecisionSuppress
)

func (d Decision) String() string {
	switch d {
	case DecisionEmitNow:
		return "emit_now"
	case DecisionDefer:
		return "defer"
	case DecisionSuppress:
		return "suppress"
	}
	return "unknown"
}

// Result pairs a Decision with its resume time (defer only) and reason.
type Result struct {
	Decision Decision
	ResumeAt time.Time
	Reason   string
}

// QuietHours is a daily window during which only high-priority events are
// announced immediately. Start after End means the window wraps midnight.
// The zero value disables quiet hours.
type QuietHours struct {
	startMin int // minutes past midnight
	endMin   int
	enabled  bool
}

// ParseQuietHours parses "HH:MM" start/end clock times. Both empty disables.
func ParseQuietHours(start, end string) (QuietHours, error) {
	if start == "" && end == "" {
		return QuietHours{}, nil
	}
	if start == "" || end == "" {
		return QuietHours{}, fmt.Errorf("quiet hours: both start and end are required")
	}
	s, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	if s == e {
		return QuietHours{}, fmt.Errorf("quiet hours: start and end must differ")
	}
	return QuietHours{startMin: s, endMin: e, enabled: true}, nil
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.enabled {
		return false
	}
	min := t.Hour()*60 + t.Minute()
	if q.startMin < q.endMin {
		return min >= q.startMin && min < q.endMin
	}
	// Wraps midnight.
	return min >= q.startMin || min < q.endMin
}

// End returns the next quiet-hours end at or after t.
func (q QuietHours) End(t time.Time) time.Time {
	end := time.Date(t.Year(), t.Month(), t.Day(), q.endMin/60, q.endMin%60, 0, 0, t.Location())
	if !end.After(t) {
		end = end.Add(24 * time.Hour)
	}
	return end
}

// Activity is the presence/session snapshot the gate evaluates against.
type Activity struct {
	Present            bool
	InteractiveSession bool
	SessionEnd         time.Time // estimate; meaningful while InteractiveSession
}

// ActivitySource supplies the current Activity (e.g. the session tracker).
type ActivitySource interface {
	Activity(now time.Time) Activity
}

// EmitFunc receives events approved for announcement. delayed is true when the
// event sat past its defer horizon and was force-emitted.
type EmitFunc func(ev *event.Event, delayed bool)

// Gate applies the fixed policy order and owns the deferred queue.
type Gate struct {
	log    *slog.Logger
	src    ActivitySource
	emit   EmitFunc
	sweep  time.Duration
	stopCh chan struct{}
	wg     sync.WaitGroup

	cfgMu    sync.RWMutex
	quiet    QuietHours
	maxDefer time.Duration

	queue *deferredQueue
}

// New creates a Gate. Call Start to begin the deferred-queue sweep.
func New(log *slog.Logger, src ActivitySource, emit EmitFunc, quiet QuietHours, maxDefer, sweep time.Duration) *Gate {
	return &Gate{
		log:      log,
		src:      src,
		emit:     emit,
		sweep:    sweep,
		stopCh:   make(chan struct{}),
		quiet:    quiet,
		maxDefer: maxDefer,
		queue:    newDeferredQueue(),
	}
}

// SetPolicy swaps the quiet-hours window and defer horizon (hot reload).
func (g *Gate) SetPolicy(quiet QuietHours, maxDefer time.Duration) {
	g.cfgMu.Lock()
	g.quiet = quiet
	g.maxDefer = maxDefer
	g.cfgMu.Unlock()
}

// Decide applies the policy rules in fixed order, first applicable wins.
// Pure: it inspects only its arguments.
func Decide(ev *event.Event, now time.Time, quiet QuietHours, act Activity) Result {
	pri := ev.Priority()

	if pri == event.PriorityIgnore {
		return Result{Decision: DecisionSuppress, Reason: "priority_ignore"}
	}
	if act.InteractiveSession && pri != event.PriorityHigh {
		resume := act.SessionEnd
		if !resume.After(now) {
			resume = now.Add(time.Minute)
		}
		return Result{Decision: DecisionDefer, ResumeAt: resume, Reason: "interactive_session"}
	}
	if quiet.Contains(now) && (pri == event.PriorityLow || pri == event.PriorityNormal) {
		return Result{Decision: DecisionDefer, ResumeAt: quiet.End(now), Reason: "quiet_hours"}
	}
	return Result{Decision: DecisionEmitNow, Reason: "clear"}
}

// Handle is the bus handler for announcement candidates.
func (g *Gate) Handle(_ context.Context, ev *event.Event) {
	g.submit(ev, time.Now())
}

// submit runs ev through the policy. firstSeen tracking enforces the defer
// horizon across repeated deferrals.
func (g *Gate) submit(ev *event.Event, now time.Time) {
	g.cfgMu.RLock()
	quiet, maxDefer := g.quiet, g.maxDefer
	g.cfgMu.RUnlock()

	res := Decide(ev, now, quiet, g.src.Activity(now))
	metrics.GateDecisions.WithLabelValues(res.Decision.String()).Inc()

	switch res.Decision {
	case DecisionSuppress:
		g.log.Debug("announcement suppressed", "event_id", ev.ID, "reason", res.Reason)
	case DecisionEmitNow:
		g.queue.forget(ev.ID)
		g.emit(ev, false)
	case DecisionDefer:
		firstSeen := g.queue.firstSeen(ev.ID, now)
		if now.Sub(firstSeen) >= maxDefer {
			// Horizon exhausted: no event is held back indefinitely.
			metrics.ForcedEmits.Inc()
			g.queue.forget(ev.ID)
			g.log.Warn("defer horizon reached, force-emitting",
				"event_id", ev.ID, "held_for", now.Sub(firstSeen))
			g.emit(ev, true)
			return
		}
		resume := res.ResumeAt
		if horizon := firstSeen.Add(maxDefer); resume.After(horizon) {
			resume = horizon
		}
		g.queue.park(ev, resume, firstSeen)
		g.log.Debug("announcement deferred",
			"event_id", ev.ID, "reason", res.Reason, "resume_at", resume)
	}
}

// Start launches the periodic sweep that re-submits due deferred events with
// fresh context.
func (g *Gate) Start() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.resubmitDue(time.Now())
			case <-g.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweep. Parked events are logged and abandoned; the embedding
// process decides whether losing them matters.
func (g *Gate) Stop() {
	close(g.stopCh)
	g.wg.Wait()
	if n := g.queue.len(); n > 0 {
		g.log.Warn("gate stopped with deferred announcements pending", "count", n)
	}
}

func (g *Gate) resubmitDue(now time.Time) {
	for _, item := range g.queue.popDue(now) {
		g.submit(item.ev, now)
	}
}

// DeferredItem is a read-only view of one parked announcement.
type DeferredItem struct {
	EventID  string    `json:"event_id"`
	Type     string    `json:"type"`
	Priority string    `json:"priority"`
	ResumeAt time.Time `json:"resume_at"`
	Since    time.Time `json:"since"`
}

// Deferred returns a snapshot of the parked announcements, soonest first.
func (g *Gate) Deferred() []DeferredItem {
	return g.queue.snapshot()
}
