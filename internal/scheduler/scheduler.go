// Package scheduler runs a periodic background loop with an explicit
// start/stop lifecycle. Each tick re-queries fresh state; a panicking
// or failing tick never takes the loop down.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)
	log      *slog.Logger

	running atomic.Bool
	ticks   atomic.Int64
	lastRun atomic.Int64 // unix nanos of last completed tick

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, tickFn func(context.Context), log *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		log:      log,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the loop and runs one immediate tick. It reports
// false when the loop is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", slog.String("interval", s.interval.String()))

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Ticks returns the number of completed ticks since construction.
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

// LastTick returns when the last tick completed, or a zero time if
// none has run yet.
func (s *Scheduler) LastTick() time.Time {
	n := s.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", slog.Any("panic", r))
		}
	}()

	start := time.Now()
	s.tickFn(ctx)
	s.ticks.Add(1)
	s.lastRun.Store(time.Now().UnixNano())
	s.log.Debug("scheduler tick completed",
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}
