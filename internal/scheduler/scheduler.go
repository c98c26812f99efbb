// Package scheduler implements the cooperative per-stream workflow state
// machine (spec §4.4): IDLE / RUNNING / WINDING-DOWN, with at most one
// in-flight pipeline iteration per vstream_key (spec §5 "being_processed_vstreams").
// Grounded on the teacher's automation Scheduler (packages/com.r3e.services.automation/scheduler.go):
// same ticker-goroutine-per-worker shape, generalized from "one poll loop
// over all jobs" to "one goroutine per active stream key," since spec §5
// requires independent, serially-ordered iteration per key rather than a
// single shared poll tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/metrics"
)

// State is a workflow's lifecycle state (spec §4.4 table).
type State int

const (
	StateIdle State = iota
	StateRunning
	StateWindingDown
)

// IterationFunc runs one pipeline iteration for key and reports whether it
// succeeded (re-arm) or failed fatally (spec §4.3 "Pipeline failure
// policy"). The returned delay is the wait before the next iteration on
// success.
type IterationFunc func(ctx context.Context, key string) (success bool, delay time.Duration)

type workflow struct {
	mu        sync.Mutex
	state     State
	active    bool
	cancel    context.CancelFunc
	deadline  time.Time
	hasTimeout bool
}

// Scheduler owns the set of active per-stream workflows.
type Scheduler struct {
	mu        sync.Mutex
	workflows map[string]*workflow
	run       IterationFunc
	log       *logging.Logger
}

func New(run IterationFunc, log *logging.Logger) *Scheduler {
	return &Scheduler{workflows: map[string]*workflow{}, run: run, log: log}
}

// StartWorkflow marks key active; only spawns an iteration if none is
// already in flight (spec §4.4: "only if no iteration is in flight does it
// spawn one").
func (s *Scheduler) StartWorkflow(ctx context.Context, key string, timeout time.Duration) {
	s.mu.Lock()
	wf, ok := s.workflows[key]
	if !ok {
		wf = &workflow{}
		s.workflows[key] = wf
	}
	s.mu.Unlock()

	wf.mu.Lock()
	// A winding-down workflow still has its loop and iteration in flight;
	// reactivating it lets that loop re-arm instead of spawning a second one.
	wasActive := wf.active || wf.state == StateWindingDown
	wf.active = true
	wf.state = StateRunning
	if timeout > 0 {
		wf.deadline = time.Now().Add(timeout)
		wf.hasTimeout = true
	} else {
		wf.hasTimeout = false
	}
	runCtx, cancel := context.WithCancel(ctx)
	wf.cancel = cancel
	wf.mu.Unlock()

	if wasActive {
		return
	}
	s.updateGauge()
	go s.loop(runCtx, key, wf)
}

// StopWorkflow stops key. External stop transitions RUNNING to
// WINDING-DOWN (the in-flight iteration finishes but does not re-arm);
// internal stop (post-iteration cleanup) removes the key outright (spec
// §4.4).
func (s *Scheduler) StopWorkflow(key string, external bool) {
	s.mu.Lock()
	wf, ok := s.workflows[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	if !external {
		delete(s.workflows, key)
	}
	s.mu.Unlock()

	wf.mu.Lock()
	if external {
		wf.active = false
		wf.state = StateWindingDown
	} else if wf.cancel != nil {
		wf.cancel()
	}
	wf.mu.Unlock()
	s.updateGauge()
}

func (s *Scheduler) updateGauge() {
	s.mu.Lock()
	n := 0
	for _, wf := range s.workflows {
		wf.mu.Lock()
		if wf.state == StateRunning {
			n++
		}
		wf.mu.Unlock()
	}
	s.mu.Unlock()
	metrics.SetActiveWorkflows(n)
}

func (s *Scheduler) loop(ctx context.Context, key string, wf *workflow) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		success, delay := s.run(ctx, key)
		metrics.ObservePipeline("RECOGNIZE", outcomeLabel(success))

		wf.mu.Lock()
		timedOut := wf.hasTimeout && time.Now().After(wf.deadline)
		stillActive := wf.active
		winding := wf.state == StateWindingDown
		wf.mu.Unlock()

		if timedOut {
			s.log.WithField("vstream_key", key).Info("Stopping by timeout")
			s.StopWorkflow(key, false)
			return
		}
		if winding {
			s.StopWorkflow(key, false)
			return
		}
		if !success {
			s.StopWorkflow(key, false)
			return
		}
		if !stillActive {
			s.StopWorkflow(key, false)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// State reports the current state of key, if tracked.
func (s *Scheduler) State(key string) (State, bool) {
	s.mu.Lock()
	wf, ok := s.workflows[key]
	s.mu.Unlock()
	if !ok {
		return StateIdle, false
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.state, true
}

// ActiveKeys lists all currently tracked vstream keys.
func (s *Scheduler) ActiveKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.workflows))
	for k := range s.workflows {
		out = append(out, k)
	}
	return out
}
