// Package scheduler fires the category discovery engine on a daily cadence
// and exposes a manual fire-and-forget trigger.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/catosphere/catosphere-go/internal/discovery"
)

// Scheduler owns the daily discovery schedule. It holds no state beyond the
// schedule itself and a running flag for observability; it deliberately does
// not dedupe a manual trigger against an in-flight scheduled run.
type Scheduler struct {
	cron    *cron.Cron
	engine  *discovery.Engine
	running atomic.Bool
	logger  *slog.Logger
}

// New creates a Scheduler that runs discovery daily at timeOfDay ("HH:MM",
// server-local time).
func New(engine *discovery.Engine, timeOfDay string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	at, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("parse discovery time %q: %w", timeOfDay, err)
	}

	s := &Scheduler{
		cron:   cron.New(),
		engine: engine,
		logger: logger,
	}

	spec := fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())
	if _, err := s.cron.AddFunc(spec, func() { s.fire("scheduled") }); err != nil {
		return nil, fmt.Errorf("add cron entry: %w", err)
	}

	logger.Info("discovery scheduled", "time", timeOfDay, "cron", spec)
	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight cron callback.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger fires a discovery run out-of-band. It returns immediately; the
// run completes asynchronously.
func (s *Scheduler) Trigger() {
	go s.fire("manual")
}

// Running reports whether a discovery run is currently in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) fire(trigger string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("discovery run panicked", "trigger", trigger, "panic", r)
		}
		s.running.Store(false)
	}()
	s.running.Store(true)

	if _, err := s.engine.Run(context.Background(), trigger); err != nil {
		s.logger.Error("discovery run failed", "trigger", trigger, "error", err)
	}
}
