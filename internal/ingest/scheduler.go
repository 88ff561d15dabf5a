package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
)

// Schedule is one periodic tick source (reminders, recurring check-ins).
type Schedule struct {
	Name     string
	Interval time.Duration
	Payload  map[string]any
}

// Scheduler emits schedule_triggered events at fixed intervals through the
// same Normalize path every other transport uses.
type Scheduler struct {
	log       *slog.Logger
	schedules []Schedule
	submit    Submitter
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewScheduler creates a Scheduler; call Start to begin ticking.
func NewScheduler(log *slog.Logger, schedules []Schedule, submit Submitter) *Scheduler {
	return &Scheduler{log: log, schedules: schedules, submit: submit}
}

// Start launches one ticker goroutine per schedule.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, sched := range s.schedules {
		sched := sched
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(sched.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.fire(ctx, sched)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

func (s *Scheduler) fire(ctx context.Context, sched Schedule) {
	payload := map[string]any{"schedule": sched.Name}
	for k, v := range sched.Payload {
		payload[k] = v
	}
	raw := &RawNotification{
		Type:    string(event.TypeScheduleTriggered),
		Source:  "scheduler",
		Payload: payload,
	}
	ev, err := Normalize(raw)
	if err != nil {
		s.log.Error("scheduler produced invalid event", "schedule", sched.Name, "err", err)
		return
	}
	if err := s.submit.Submit(ctx, ev); err != nil {
		s.log.Warn("scheduled event rejected by pipeline", "schedule", sched.Name, "err", err)
	}
}

// Stop halts all tickers and waits for in-flight fires.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
