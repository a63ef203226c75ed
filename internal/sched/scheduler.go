// Package sched drives reconciliation passes: one gating pass at startup,
// then a full pass on a fixed interval, with at most one pass in flight.
package sched

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the documented periodic sync cadence.
const DefaultInterval = 15 * time.Minute

type State int32

const (
	StateNotStarted State = iota
	StateFirstPass
	StateReady
	StatePeriodicPass
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateFirstPass:
		return "first_pass"
	case StateReady:
		return "ready"
	case StatePeriodicPass:
		return "periodic_pass"
	default:
		return "unknown"
	}
}

// Scheduler is the single driver of reconciliation. Command handlers block on
// WaitUntilReady exactly once per process lifetime; the gate never re-engages
// after periodic passes.
type Scheduler struct {
	pass     func(ctx context.Context) error
	interval time.Duration
	log      *log.Logger

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
}

func New(pass func(ctx context.Context) error, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		pass:     pass,
		interval: interval,
		log:      logger,
		ready:    make(chan struct{}),
	}
}

// State reports the current scheduler state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// WaitUntilReady blocks until the first pass has completed (or failed and
// released the gate in degraded mode), or until ctx is done.
func (s *Scheduler) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) releaseGate() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Run executes the first pass, releases the startup gate, and then repeats
// the pass on every interval tick until ctx is done. A failing pass is logged
// and retried on the next tick; the scheduler itself never wedges. A failing
// first pass still releases the gate so command execution degrades instead of
// deadlocking.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateNotStarted), int32(StateFirstPass)) {
		return errors.New("sched: already started")
	}

	if err := s.pass(ctx); err != nil {
		s.log.Printf("first pass failed: %v (releasing startup gate degraded)", err)
	} else {
		s.log.Printf("first pass complete")
	}
	s.state.Store(int32(StateReady))
	s.releaseGate()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// The loop is sequential, but a tick that fires while a pass is
			// somehow still marked running is dropped, never queued.
			if !s.state.CompareAndSwap(int32(StateReady), int32(StatePeriodicPass)) {
				s.log.Printf("pass in flight, dropping tick")
				continue
			}
			if err := s.pass(ctx); err != nil {
				s.log.Printf("pass failed: %v", err)
			}
			s.state.Store(int32(StateReady))
		}
	}
}
